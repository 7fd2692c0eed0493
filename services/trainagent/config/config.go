package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the trainer agent.
type Config struct {
	LogLevel     string
	PostgresDSN  string
	KafkaBrokers string
	GroupID      string

	Epochs        int
	EpochDuration time.Duration

	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		GroupID:      v.GetString("group_id"),

		Epochs:        v.GetInt("epochs"),
		EpochDuration: v.GetDuration("epoch_duration"),

		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
