package config

import (
	"github.com/indexvault-go/pkg/database"
	"github.com/indexvault-go/pkg/events"
	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/resilience"
	"github.com/indexvault-go/pkg/telemetry"
)

// ToLoggerConfig converts LoggerConfig to logger.Config
func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddCaller:  c.AddCaller,
		Stacktrace: c.Stacktrace,
	}
}

// ToDatabaseConfig converts StateConfig to database.Config
func (c StateConfig) ToDatabaseConfig() database.Config {
	return database.Config{
		Driver:       c.Driver,
		DSN:          c.DSN,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
	}
}

// ToKafkaConfig converts EventsConfig to events.KafkaConfig
func (c EventsConfig) ToKafkaConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers: c.Brokers,
		Topic:   c.Topic,
	}
}

// ToTelemetryConfig converts TelemetryConfig to telemetry.Config
func (c TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Enabled,
		JaegerURL:    c.JaegerURL,
		ServiceName:  c.ServiceName,
		SamplingRate: c.SamplingRate,
	}
}

// ToRetryConfig converts the search retry settings to resilience.RetryConfig
func (c SearchConfig) ToRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.MaxAttempts
	if c.InitialBackoff > 0 {
		cfg.InitialDelay = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		cfg.MaxDelay = c.MaxBackoff
	}
	return cfg
}

// ToCircuitBreakerConfig converts the search breaker settings to resilience.CircuitBreakerConfig
func (c SearchConfig) ToCircuitBreakerConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig("search-api")
	if c.BreakerFailureRatio > 0 {
		cfg.FailureRatio = c.BreakerFailureRatio
	}
	if c.BreakerMinRequests > 0 {
		cfg.MinRequests = c.BreakerMinRequests
	}
	if c.BreakerTimeout > 0 {
		cfg.Timeout = c.BreakerTimeout
	}
	return cfg
}
