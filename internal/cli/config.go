package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the termctl client configuration.
type Config struct {
	Hub     HubConfig     `mapstructure:"hub"`
	Backend BackendConfig `mapstructure:"backend"`
}

type HubConfig struct {
	URL string `mapstructure:"url"`
}

type BackendConfig struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// loadConfig reads config.yaml from the usual places (or cfgFile when set),
// then applies TERMCTL_* environment overrides and flag values bound on v.
func loadConfig(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.termctl")
		v.AddConfigPath("/etc/termctl/")
	}

	// TERMCTL_HUB_URL, TERMCTL_BACKEND_URL, ...
	v.SetEnvPrefix("TERMCTL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.BindEnv("hub.url")
	v.BindEnv("backend.url")
	v.BindEnv("backend.handshake_timeout")

	v.SetDefault("hub.url", "http://localhost:8080")
	v.SetDefault("backend.url", "http://localhost:3000")
	v.SetDefault("backend.handshake_timeout", "15s")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Hub.URL = strings.TrimRight(cfg.Hub.URL, "/")
	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")
	return &cfg, nil
}
