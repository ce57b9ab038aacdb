package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeJournalReaper prunes old auth events from the journal.
	ServiceModeJournalReaper ServiceMode = "journal-reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeJournalReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeJournalReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, journal-reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// JournalConfig controls retention of the auth event journal.
type JournalConfig struct {
	Retention     time.Duration `env:"RETENTION"      envDefault:"720h"`
	PruneInterval time.Duration `env:"PRUNE_INTERVAL" envDefault:"1h"`
}

// Sanitize applies defaults to unset or invalid values.
func (c *JournalConfig) Sanitize() {
	if c.Retention <= 0 {
		c.Retention = 720 * time.Hour
	}
	if c.PruneInterval < time.Minute {
		c.PruneInterval = time.Minute
	}
}
