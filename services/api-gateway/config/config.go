package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the API gateway service.
type Config struct {
	LogLevel        string
	HTTPPort        string
	PostgresDSN     string
	RedisAddr       string
	RateLimit       int
	RateLimitWindow time.Duration
	MetricsAddr     string
	OTelEndpoint    string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		HTTPPort:        v.GetString("http_port"),
		PostgresDSN:     v.GetString("postgres_dsn"),
		RedisAddr:       v.GetString("redis_addr"),
		RateLimit:       v.GetInt("rate_limit"),
		RateLimitWindow: v.GetDuration("rate_limit_window"),
		MetricsAddr:     v.GetString("metrics_addr"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
	}
}
