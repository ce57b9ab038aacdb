package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/config"
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	httpx "github.com/gatehouse/gatehouse/internal/http"
	"github.com/gatehouse/gatehouse/internal/service"
	"github.com/redis/go-redis/v9"
)

const defaultShutdownTimeout = 15 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildHTTPServer creates the HTTP server without starting it.
func BuildHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler, err := httpx.NewRouter(buildRouterServices(cfg, appCfg, logger))
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	if appCfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", appCfg.HTTP.CompressionLevel)
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// Only the header read is bounded; view streams stay open for the life of the page.
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func buildRouterServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	services := httpx.RouterServices{
		HealthChecks:       healthChecks(cfg.DB, cfg.RedisClient),
		CookieDomain:       appCfg.HTTP.CookieDomain,
		CompressionEnabled: appCfg.HTTP.CompressionEnabled,
		CompressionLevel:   appCfg.HTTP.CompressionLevel,
		IsDev:              appCfg.IsDev,
		Logger:             logger,
	}
	// Interface fields stay nil rather than holding typed nil pointers.
	if cfg.Services.Views != nil {
		services.Views = cfg.Services.Views
	}
	if cfg.Services.Journal != nil {
		services.Journal = cfg.Services.Journal
	}
	if auth := cfg.Services.Auth; auth != nil {
		services.Auth = auth.Service
		services.ProviderLogoutURL = auth.LogoutURL
		if auth.Tokens != nil {
			services.Tokens = auth.Tokens
		}
	}
	return services
}

func healthChecks(db *sql.DB, redisClient redis.UniversalClient) []httpx.HealthCheck {
	var checks []httpx.HealthCheck
	if redisClient != nil {
		checks = append(checks, httpx.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}
	if db != nil {
		checks = append(checks, httpx.HealthCheck{
			Name:  "postgres",
			Check: db.PingContext,
		})
	}
	return checks
}

func serveHTTP(server *http.Server, logger *slog.Logger) error {
	logger.Info("starting HTTP server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Views   *service.ViewRegistry
	Hub     domainauth.Hub
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server. Views are unmounted first so
// open streams end before the server waits on them.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if cfg.Views != nil {
		cfg.Views.Close()
	}
	if cfg.Hub != nil {
		cfg.Hub.StopAll()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
