package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gatehouse/gatehouse/config"
	"github.com/gatehouse/gatehouse/internal/data"
	"github.com/gatehouse/gatehouse/internal/observability/statsd"
	"github.com/gatehouse/gatehouse/internal/observability/tracing"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/gatehouse/gatehouse/internal/service"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	// Auth and Views are nil when the HTTP service is disabled.
	Auth  *AuthComponents
	Views *service.ViewRegistry
	// Journal is nil when the journal database is disabled.
	Journal       *data.AuthEventRepo
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	TracingShutdown func(context.Context) error
}

// sink returns the metrics sink as an interface, nil when metrics are off.
//
//nolint:ireturn // statsd.Sink is the seam every service accepts.
func (o ObservabilityContainer) sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// Close flushes traces and releases the metrics socket.
func (o ObservabilityContainer) Close(ctx context.Context) error {
	var errs []error
	if o.TracingShutdown != nil {
		if err := o.TracingShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if err := o.MetricsSink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close statsd: %w", err))
	}
	return errors.Join(errs...)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	// DB is nil when the journal database is disabled.
	DB *sql.DB
	// RedisClient is nil when the HTTP service is disabled.
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and tracing. Failures degrade to no-ops.
func buildObservability(ctx context.Context, logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		obsLogger.Error("failed to initialise tracing", "error", err)
	} else if cfg.Tracing.Enabled {
		obsLogger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		TracingShutdown: shutdown,
	}
}

// NewServices initializes all application services.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps require a config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	container := ServiceContainer{
		Observability: buildObservability(ctx, logger, cfg.Observability),
	}

	var journal ports.AuthEventJournal
	if deps.DB != nil {
		container.Journal = data.NewAuthEventRepo(deps.DB)
		journal = container.Journal
	}

	if deps.RedisClient == nil {
		return container, nil
	}

	auth, err := BuildAuth(AuthConfig{
		Auth:          cfg.Auth,
		Shell:         cfg.Shell,
		RedisClient:   deps.RedisClient,
		SessionPrefix: cfg.Redis.SessionPrefix,
		BaseURL:       cfg.HTTP.BaseURL,
		Journal:       journal,
		Metrics:       container.Observability.sink(),
		Logger:        logger,
	})
	if err != nil {
		return container, fmt.Errorf("build auth: %w", err)
	}
	container.Auth = auth

	container.Views = service.NewViewRegistry(service.ViewRegistryOptions{
		Clients: service.AuthClientFactory{
			Sessions: auth.Service,
			Hub:      auth.Hub,
			Tracer:   tracing.Tracer(),
		},
		Logger:        logger,
		Metrics:       container.Observability.sink(),
		FetchTimeout:  cfg.Shell.FetchTimeout,
		IdleTTL:       cfg.Shell.IdleTTL,
		SweepInterval: cfg.Shell.SweepInterval,
	})

	return container, nil
}

// ServiceOrchestrationConfig contains dependencies for running services.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// RunServicesWithShutdown runs the enabled services until SIGINT/SIGTERM or until one
// of them fails, then stops the rest.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServices(ctx, cfg, logger)
}

func runServices(ctx context.Context, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	started := 0

	if enabledServices[config.ServiceModeHTTP] {
		if err := startHTTP(gctx, group, cfg, logger); err != nil {
			return err
		}
		started++
	}

	if cfg.Config.IsJournalReaperEnabled() {
		reaper, err := newJournalReaper(cfg, logger)
		if err != nil {
			return err
		}
		group.Go(func() error {
			if runErr := reaper.Run(gctx); runErr != nil {
				return fmt.Errorf("journal reaper failed: %w", runErr)
			}
			return nil
		})
		logger.InfoContext(ctx, "background service started", "service", "journal reaper", "mode", config.ServiceModeJournalReaper)
		started++
	} else if enabledServices[config.ServiceModeJournalReaper] {
		logger.WarnContext(ctx, "journal reaper requested but the journal database is disabled")
	}

	if started == 0 {
		return errors.New("no runnable services enabled")
	}

	err = group.Wait()
	logger.Info("services stopped")
	return err
}

func startHTTP(ctx context.Context, group *errgroup.Group, cfg *ServiceOrchestrationConfig, logger *slog.Logger) error {
	if cfg.Services.Views == nil || cfg.Services.Auth == nil {
		return errors.New("http service requires the auth stack and view registry")
	}

	server, err := BuildHTTPServer(&HTTPServerConfig{
		Config:      cfg.Config,
		Services:    cfg.Services,
		DB:          cfg.DB,
		RedisClient: cfg.RedisClient,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	group.Go(func() error {
		return serveHTTP(server, logger)
	})
	group.Go(func() error {
		return cfg.Services.Views.Run(ctx)
	})
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down services...")
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.WithoutCancel(ctx),
			Server:  server,
			Views:   cfg.Services.Views,
			Hub:     cfg.Services.Auth.Hub,
			Timeout: cfg.Config.HTTP.ShutdownTimeout,
			Logger:  logger,
		})
	})
	return nil
}

func newJournalReaper(cfg *ServiceOrchestrationConfig, logger *slog.Logger) (*service.JournalReaper, error) {
	if cfg.Services.Journal == nil {
		return nil, errors.New("journal reaper requires the journal database")
	}
	reaper, err := service.NewJournalReaper(service.JournalReaperOptions{
		Pruner:    cfg.Services.Journal,
		Retention: cfg.Config.Journal.Retention,
		Interval:  cfg.Config.Journal.PruneInterval,
		Logger:    logger,
		Metrics:   cfg.Services.Observability.sink(),
	})
	if err != nil {
		return nil, fmt.Errorf("build journal reaper: %w", err)
	}
	return reaper, nil
}
