package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// GroupsClaim is a JMESPath expression over the ID token claims, e.g. "realm_access.roles".
	GroupsClaim  string `env:"GROUPS_CLAIM"  envDefault:"groups"`
	// LogoutURL overrides the provider's end_session_endpoint.
	LogoutURL string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID          string        `env:"USER_ID"          envDefault:"dev-user"`
	Email           string        `env:"EMAIL"            envDefault:"dev@example.com"`
	FirstName       string        `env:"FIRST_NAME"       envDefault:"Dev"`
	LastName        string        `env:"LAST_NAME"        envDefault:"User"`
	Groups          []string      `env:"GROUPS"           envDefault:"admins"          envSeparator:";"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
}

// TokenConfig controls the access tokens minted for sessions.
type TokenConfig struct {
	// Secret signs access tokens (HS256). At least 32 bytes.
	Secret   string        `env:"SECRET"`
	Issuer   string        `env:"ISSUER"   envDefault:"gatehouse"`
	Audience string        `env:"AUDIENCE" envDefault:"gatehouse"`
	TTL      time.Duration `env:"TTL"      envDefault:"15m"`
}

// Enabled reports whether access tokens should be minted.
func (t TokenConfig) Enabled() bool {
	return t.Secret != ""
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Token configuration for minted access tokens.
	Token TokenConfig `envPrefix:"AUTH_TOKEN_"`

	// AdminGroups lists IdP groups granted the admin role.
	AdminGroups []string `env:"ADMIN_GROUPS" envSeparator:";" envDefault:"admins"`

	// UserGroups lists IdP groups granted the user role.
	UserGroups []string `env:"USER_GROUPS" envSeparator:";" envDefault:"users"`

	// RefreshLifetime is the expiry window a session gets each time it is refreshed.
	RefreshLifetime time.Duration `env:"AUTH_REFRESH_LIFETIME" envDefault:"8h"`
}

// Sanitize trims group lists.
func (c *AuthConfig) Sanitize() {
	c.AdminGroups = trimAll(c.AdminGroups)
	c.UserGroups = trimAll(c.UserGroups)
	c.Token.Secret = strings.TrimSpace(c.Token.Secret)
	if c.Token.TTL <= 0 {
		c.Token.TTL = 15 * time.Minute
	}
	if c.RefreshLifetime <= 0 {
		c.RefreshLifetime = 8 * time.Hour
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
