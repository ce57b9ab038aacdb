package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gatehouse/gatehouse/config"
	"github.com/gatehouse/gatehouse/internal/adapters/authroles"
	"github.com/gatehouse/gatehouse/internal/adapters/devauth"
	"github.com/gatehouse/gatehouse/internal/adapters/jwttoken"
	"github.com/gatehouse/gatehouse/internal/adapters/memory"
	"github.com/gatehouse/gatehouse/internal/adapters/oidc"
	redisadapter "github.com/gatehouse/gatehouse/internal/adapters/redis"
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/observability/statsd"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/gatehouse/gatehouse/internal/service"
	"github.com/redis/go-redis/v9"
)

// AuthConfig contains configuration for the auth stack.
type AuthConfig struct {
	Auth  config.AuthConfig
	Shell config.ShellConfig

	RedisClient   redis.UniversalClient
	SessionPrefix string
	BaseURL       string

	// Journal records every published session change. Optional.
	Journal ports.AuthEventJournal

	Metrics statsd.Sink
	Logger  *slog.Logger
}

// AuthComponents is the wired auth stack shared by the HTTP handlers and the view registry.
type AuthComponents struct {
	Service *service.AuthService
	// Tokens is nil when access tokens are disabled.
	Tokens *jwttoken.Issuer
	Hub    *domainauth.ChangeHub
	// LoginEnabled is false when no identity provider could be built.
	LoginEnabled bool
	// LogoutURL is the identity provider's end-session URL, if any.
	LogoutURL string
}

// changeBus is implemented by both the redis and in-memory buses.
type changeBus interface {
	domainauth.Listener
	ports.ChangePublisher
}

// BuildAuth wires sessions, the identity provider, access tokens, and the change bus.
// A missing or broken identity provider only disables login; the rest of the stack
// is still returned so views can render the sign-in branch.
func BuildAuth(cfg AuthConfig) (*AuthComponents, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("auth requires a redis client")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefix := cfg.SessionPrefix
	if prefix == "" {
		prefix = "session:"
	}
	sessionStore := redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, prefix)

	roleMapper := authroles.StaticRoleMapper{
		AdminGroups: cfg.Auth.AdminGroups,
		UserGroups:  cfg.Auth.UserGroups,
	}

	var tokens *jwttoken.Issuer
	var tokenIssuer ports.TokenIssuer
	if cfg.Auth.Token.Enabled() {
		issuer, err := jwttoken.NewIssuer(jwttoken.Config{
			Secret:   []byte(cfg.Auth.Token.Secret),
			Issuer:   cfg.Auth.Token.Issuer,
			Audience: cfg.Auth.Token.Audience,
			TTL:      cfg.Auth.Token.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("build token issuer: %w", err)
		}
		tokens = issuer
		tokenIssuer = issuer
	}

	bus, err := buildChangeBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	hub, err := domainauth.NewChangeHub(domainauth.HubOptions{
		Listener:     bus,
		Backoff:      cfg.Shell.ListenerBackoff,
		ReadyTimeout: cfg.Shell.ReadyTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build change hub: %w", err)
	}

	var publisher ports.ChangePublisher = bus
	if cfg.Journal != nil {
		publisher = service.NewJournalingPublisher(service.JournalingPublisherOptions{
			Next:    bus,
			Journal: cfg.Journal,
			Logger:  logger,
			Metrics: cfg.Metrics,
		})
	}

	provider, logoutURL := buildProvider(cfg, logger)

	out := &AuthComponents{
		Tokens:       tokens,
		Hub:          hub,
		LoginEnabled: provider != nil,
		LogoutURL:    logoutURL,
	}
	out.Service = service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Sessions:  sessionStore,
		Bindings:  sessionStore,
		Roles:     roleMapper,
		Tokens:    tokenIssuer,
		Publisher: publisher,
		Logger:    logger,

		RefreshLifetime: cfg.Auth.RefreshLifetime,
	})
	return out, nil
}

//nolint:ireturn // the bus implementation is picked from config.
func buildChangeBus(cfg AuthConfig, logger *slog.Logger) (changeBus, error) {
	switch cfg.Shell.ChangeBus {
	case config.ChangeBusMemory:
		logger.Warn("using in-process change bus; changes do not reach other replicas")
		return memory.NewChangeBus(), nil
	default:
		bus, err := redisadapter.NewChangeBus(redisadapter.ChangeBusOptions{
			Client: cfg.RedisClient,
			Prefix: cfg.Shell.ChangePrefix,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build redis change bus: %w", err)
		}
		return bus, nil
	}
}

// buildProvider returns nil when the configured mode cannot produce a provider.
//
//nolint:ireturn // provider implementation depends on the auth mode.
func buildProvider(cfg AuthConfig, logger *slog.Logger) (ports.AuthProvider, string) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		dev := cfg.Auth.DevAuth
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:          dev.UserID,
			Email:           dev.Email,
			FirstName:       dev.FirstName,
			LastName:        dev.LastName,
			Groups:          dev.Groups,
			SessionDuration: dev.SessionDuration,
		})
		if err != nil {
			logger.Warn("failed to create dev auth provider, login disabled", "error", err)
			return nil, ""
		}
		return prov, ""

	case config.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
			logger.Warn("AuthModeOAuth selected but required config missing; login disabled",
				"discovery_url_empty", oauth.DiscoveryURL == "",
				"client_id_empty", oauth.ClientID == "",
				"client_secret_empty", oauth.ClientSecret == "",
			)
			return nil, ""
		}

		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			GroupsClaim:  oauth.GroupsClaim,
		})
		if err != nil {
			logger.Warn("failed to create OIDC provider, login disabled", "error", err)
			return nil, ""
		}

		logoutURL := oauth.LogoutURL
		if logoutURL == "" {
			logoutURL = prov.EndSessionURL(strings.TrimRight(cfg.BaseURL, "/") + "/")
		}
		return prov, logoutURL

	default:
		return nil, ""
	}
}
