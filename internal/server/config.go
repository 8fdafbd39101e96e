package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"` // Extra websocket origins, host patterns
	RateLimit      float64  `mapstructure:"rate_limit"`      // Requests per second per client IP
	RateBurst      int      `mapstructure:"rate_burst"`
	TrustProxy     bool     `mapstructure:"trust_proxy"` // Rate limit by X-Forwarded-For
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:      "127.0.0.1",
		Port:      8645,
		RateLimit: 20,
		RateBurst: 40,
	}
}

// LoadConfig reads configuration from file and environment variables.
// Every key has a default, so a missing config file is not an error.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("server.host", def.Host)
	v.SetDefault("server.port", def.Port)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit", def.RateLimit)
	v.SetDefault("server.rate_burst", def.RateBurst)
	v.SetDefault("server.trust_proxy", def.TrustProxy)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/sleepcast.db")

	v.SetDefault("predict.granularity", "1h")
	v.SetDefault("predict.uncertainty_growth", 1.1)
	v.SetDefault("predict.horizon", 14)

	v.SetDefault("refresh.schedule", "5 0 * * *")
	v.SetDefault("refresh.snapshot_retention", "720h")
	v.SetDefault("refresh.run_on_start", true)
	v.SetDefault("refresh.timeout", "30s")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sleepcast")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/sleepcast")
	}

	// SC_SERVER_PORT=9090 overrides server.port.
	v.SetEnvPrefix("SC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}
