package main

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/virtualgta/go-accounts"
)

type ServerConfig struct {
	Address string `mapstructure:"address"`
	Debug   bool   `mapstructure:"debug"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ProviderConfig struct {
	// Kind selects the identity backend, "local" or "hosted".
	Kind            string `mapstructure:"kind"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	JWKSURL         string `mapstructure:"jwks_url"`
	EmailRedirectTo string `mapstructure:"email_redirect_to"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Provider ProviderConfig `mapstructure:"provider"`
	Log      LogConfig      `mapstructure:"log"`
}

var _ accounts.Config = (*AppConfig)(nil)

// LoadConfig reads config.yaml plus GTA_ prefixed environment
// overrides, e.g. GTA_SERVER_ADDRESS=:9000.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("GTA")
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.dsn", "file:accounts.db?cache=shared&_pragma=foreign_keys(1)")
	v.SetDefault("provider.kind", "local")
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		// The defaults are complete, a missing file is not fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c AppConfig
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &c, nil
}

func (c *AppConfig) GetSignInPath() string {
	return accounts.RouteSignIn
}

func (c *AppConfig) GetUnauthorizedPath() string {
	return accounts.RouteUnauthorized
}

func (c *AppConfig) GetRejectedRouteKey() string {
	return "rejected_route"
}

func (c *AppConfig) GetEmailRedirectTo() string {
	if c.Provider.EmailRedirectTo != "" {
		return c.Provider.EmailRedirectTo
	}
	return accounts.RouteConfirmation
}
