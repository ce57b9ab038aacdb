package config

import (
	"log/slog"
	"strings"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

const defaultObservabilityName = "gatehouse"

// ObservabilityConfig groups configuration that controls metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig
	Metrics ObservabilityMetricsConfig
	Tracing ObservabilityTracingConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Logging.Sanitize()
	c.Metrics.Sanitize()
	c.Tracing.Sanitize()
}

// LoggingConfig selects the slog handler. Level accepts slog names such as "debug" or "warn+2".
type LoggingConfig struct {
	Level  slog.Level `env:"LOG_LEVEL"  envDefault:"info"`
	Format string     `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize falls back to JSON for unknown formats.
func (c *LoggingConfig) Sanitize() {
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != LogFormatText {
		c.Format = LogFormatJSON
	}
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"gatehouse"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityTracingConfig controls OTLP trace export.
type ObservabilityTracingConfig struct {
	Enabled     bool   `env:"OBSERVABILITY_TRACING_ENABLED"      envDefault:"false"`
	Endpoint    string `env:"OBSERVABILITY_TRACING_ENDPOINT"`
	ServiceName string `env:"OBSERVABILITY_TRACING_SERVICE_NAME" envDefault:"gatehouse"`
}

// Sanitize disables tracing without an endpoint.
func (c *ObservabilityTracingConfig) Sanitize() {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		c.Enabled = false
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = defaultObservabilityName
	}
}
