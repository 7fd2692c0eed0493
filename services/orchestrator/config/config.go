package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the orchestrator service.
type Config struct {
	LogLevel     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string

	PollInterval   time.Duration
	ErrorInterval  time.Duration
	ClaimLimit     int
	EnqueueWait    time.Duration
	QueueCapacity  int
	DepthThreshold int
	Concurrency    int
	HandlerTimeout time.Duration
	RelayTimeout   time.Duration

	MonitorInterval time.Duration
	StuckAfter      time.Duration

	RecurringJobs bool

	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		RedisAddr:    v.GetString("redis_addr"),
		KafkaBrokers: v.GetString("kafka_brokers"),

		PollInterval:   v.GetDuration("poll_interval"),
		ErrorInterval:  v.GetDuration("error_interval"),
		ClaimLimit:     v.GetInt("claim_limit"),
		EnqueueWait:    v.GetDuration("enqueue_wait"),
		QueueCapacity:  v.GetInt("queue_capacity"),
		DepthThreshold: v.GetInt("depth_threshold"),
		Concurrency:    v.GetInt("dispatcher_concurrency"),
		HandlerTimeout: v.GetDuration("handler_timeout"),
		RelayTimeout:   v.GetDuration("relay_timeout"),

		MonitorInterval: v.GetDuration("monitor_interval"),
		StuckAfter:      v.GetDuration("stuck_after"),

		RecurringJobs: v.GetBool("recurring_jobs"),

		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
