// Package config loads application configuration from HCL files and
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

// Config holds all tunables. Values come from config.hcl / config.local.hcl
// with BYTEBITE_-prefixed environment overrides.
type Config struct {
	DataDir         string        `hcl:"data_dir" env:"DATA_DIR" default:"data"`
	ListenAddr      string        `hcl:"listen_addr" env:"LISTEN_ADDR" default:":8080"`
	FetchTimeout    time.Duration `hcl:"fetch_timeout" env:"FETCH_TIMEOUT" default:"30s"`
	MaxInFlight     int           `hcl:"max_in_flight" env:"MAX_IN_FLIGHT" default:"8"`
	RefreshInterval time.Duration `hcl:"refresh_interval" env:"REFRESH_INTERVAL" default:"15m"` // 0 disables the poller
}

// Load reads the configuration.
func Load() (Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BYTEBITE",
		Files:     []string{"./config.hcl", "./config.local.hcl"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
