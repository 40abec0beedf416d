// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Debrid    DebridConfig    `mapstructure:"debrid"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DownloadsConfig holds the managed directory and monitored volume.
type DownloadsConfig struct {
	Dir    string `mapstructure:"dir"`    // managed output directory
	Volume string `mapstructure:"volume"` // volume monitored for capacity
}

// DebridConfig holds the link-host token exchange configuration.
type DebridConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"apiKey"`
}

// CatalogConfig holds the movie catalog lookup configuration.
// An empty API key disables metadata enrichment entirely.
type CatalogConfig struct {
	BaseURL string `mapstructure:"baseURL"`
	APIKey  string `mapstructure:"apiKey"`
}

// AuthConfig holds bearer-token verification configuration.
// An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

// LoadOptions configures how configuration is loaded.
type LoadOptions struct {
	// ConfigFile is an explicit config file path. If empty, default
	// locations are searched.
	ConfigFile string
}

// Load reads configuration from file and environment variables.
// If opts.ConfigFile is set, that file is used directly. Otherwise default
// locations are searched: $HOME, current directory, /config for files named
// .reelvault.yaml, reelvault.yaml or config.yaml.
//
// Environment variables with prefix REELVAULT_ override file values, e.g.
// REELVAULT_DEBRID_APIKEY.
func Load(opts LoadOptions) (Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("/config")
		v.SetConfigType("yaml")
		v.SetConfigName(".reelvault")
		v.SetConfigName("reelvault")
		v.SetConfigName("config")
	}

	// Environment variables
	v.SetEnvPrefix("REELVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("server.listen", "[::]:8280")
	v.SetDefault("store.path", "reelvault.db")
	v.SetDefault("downloads.dir", "./downloads")
	v.SetDefault("downloads.volume", "/")

	// Read config file (ignore error if not found)
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validate checks that the configuration is valid. The debrid key is
// required because nothing works without it; the catalog key and auth
// secret are optional capabilities.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if cfg.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if cfg.Downloads.Dir == "" {
		errs = append(errs, errors.New("downloads.dir is required"))
	}
	if cfg.Downloads.Volume == "" {
		errs = append(errs, errors.New("downloads.volume is required"))
	}

	if cfg.Debrid.APIKey == "" {
		errs = append(errs, errors.New("debrid.apiKey is required"))
	}
	if cfg.Debrid.Endpoint != "" {
		if _, err := url.Parse(cfg.Debrid.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("debrid.endpoint: invalid url: %w", err))
		}
	}
	if cfg.Catalog.BaseURL != "" {
		if _, err := url.Parse(cfg.Catalog.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("catalog.baseURL: invalid url: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
