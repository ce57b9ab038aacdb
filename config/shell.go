package config

import (
	"fmt"
	"strings"
	"time"
)

// ChangeBusMode selects how session changes reach open views.
type ChangeBusMode string

const (
	// ChangeBusRedis fans changes out over Redis pub/sub, across replicas.
	ChangeBusRedis ChangeBusMode = "redis"
	// ChangeBusMemory keeps changes in process (single replica or development).
	ChangeBusMemory ChangeBusMode = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for ChangeBusMode.
func (m *ChangeBusMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "redis", "memory":
		*m = ChangeBusMode(v)
		return nil
	default:
		return fmt.Errorf("invalid ChangeBusMode: %q (valid options: redis, memory)", v)
	}
}

// ShellConfig controls the view routers mounted for browser views.
type ShellConfig struct {
	// FetchTimeout bounds the initial session lookup of a view.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	// IdleTTL is how long an unwatched view survives.
	IdleTTL time.Duration `env:"IDLE_TTL" envDefault:"2m"`
	// SweepInterval is how often idle views are swept.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`

	// ChangeBus selects the change event transport.
	ChangeBus ChangeBusMode `env:"CHANGE_BUS" envDefault:"redis"`
	// ChangePrefix namespaces Redis change channels.
	ChangePrefix string `env:"CHANGE_PREFIX" envDefault:"auth:changes:"`
	// ListenerBackoff is the wait before a failed change listener reconnects.
	ListenerBackoff time.Duration `env:"LISTENER_BACKOFF" envDefault:"250ms"`
	// ReadyTimeout bounds how long a new subscription waits for its listener.
	ReadyTimeout time.Duration `env:"READY_TIMEOUT" envDefault:"2s"`
}

// Sanitize applies defaults to unset or invalid values.
func (c *ShellConfig) Sanitize() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 2 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.ChangeBus == "" {
		c.ChangeBus = ChangeBusRedis
	}
	if strings.TrimSpace(c.ChangePrefix) == "" {
		c.ChangePrefix = "auth:changes:"
	}
	if c.ListenerBackoff <= 0 {
		c.ListenerBackoff = 250 * time.Millisecond
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 2 * time.Second
	}
}
