// Package oidc authenticates users against an OpenID Connect identity provider.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/jmespath-community/go-jmespath"
	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
	"golang.org/x/oauth2"
)

const defaultGroupsClaim = "groups"

// Provider implements ports.AuthProvider using the authorization code flow.
type Provider struct {
	config      *oauth2.Config
	httpClient  *http.Client
	groupsClaim string

	oidcProvider  *gooidc.Provider
	verifier      *gooidc.IDTokenVerifier
	endSessionURL string
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	GroupsClaim  string       // JMESPath over the claims, e.g. "groups" or "realm_access.roles"; default "groups"
	HTTPClient   *http.Client // Optional, defaults to a 30s client
}

// DiscoveryDocument is the subset of the discovery document we read.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// NewProvider performs discovery and constructs a Provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	groupsClaim := strings.TrimSpace(config.GroupsClaim)
	if groupsClaim == "" {
		groupsClaim = defaultGroupsClaim
	}
	if _, err := jmespath.Compile(groupsClaim); err != nil {
		return nil, fmt.Errorf("invalid groups claim expression %q: %w", groupsClaim, err)
	}

	ctx := gooidc.ClientContext(context.Background(), httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	var extra struct {
		EndSession string `json:"end_session_endpoint"`
	}
	if claimsErr := op.Claims(&extra); claimsErr != nil {
		return nil, fmt.Errorf("decode discovery document: %w", claimsErr)
	}

	scopes := strings.Fields(config.Scope)
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		httpClient:    httpClient,
		groupsClaim:   groupsClaim,
		oidcProvider:  op,
		verifier:      op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		endSessionURL: extra.EndSession,
	}, nil
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured callback; the post-login target travels in a cookie.
	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	fields, err := p.claimsFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	if fields.userID == "" || fields.email == "" {
		ui, uiErr := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		var raw map[string]any
		if claimsErr := ui.Claims(&raw); claimsErr != nil {
			return domainauth.Identity{}, fmt.Errorf("decode user info: %w", claimsErr)
		}
		fields.fillMissing(mapClaims(raw, p.groupsClaim))
	}
	if fields.userID == "" {
		return domainauth.Identity{}, errors.New("identity has no subject")
	}

	expiresAt := time.Now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}

	return domainauth.Identity{
		UserID:    fields.userID,
		FirstName: fields.givenName,
		LastName:  fields.familyName,
		Email:     fields.email,
		Groups:    fields.groups,
		ExpiresAt: expiresAt,
	}, nil
}

// EndSessionURL returns the IdP logout URL that sends the browser back to returnTo,
// or "" when the IdP does not advertise one.
func (p *Provider) EndSessionURL(returnTo string) string {
	if p.endSessionURL == "" {
		return ""
	}
	u, err := url.Parse(p.endSessionURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("client_id", p.config.ClientID)
	if returnTo != "" {
		q.Set("post_logout_redirect_uri", returnTo)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type idFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	groups     []string
}

func (f *idFields) fillMissing(o idFields) {
	if f.userID == "" {
		f.userID = o.userID
	}
	if f.email == "" {
		f.email = o.email
	}
	if f.givenName == "" {
		f.givenName = o.givenName
	}
	if f.familyName == "" {
		f.familyName = o.familyName
	}
	if len(f.groups) == 0 {
		f.groups = o.groups
	}
}

func (p *Provider) claimsFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	if !slices.Contains(p.config.Scopes, gooidc.ScopeOpenID) {
		return idFields{}, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return idFields{}, errors.New("invalid nonce")
	}
	var raw map[string]any
	if claimsErr := idTok.Claims(&raw); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return mapClaims(raw, p.groupsClaim), nil
}

// mapClaims reads the standard OIDC profile claims plus the groups selected by
// the groupsClaim expression. Groups may be a list or a single space/comma separated string.
func mapClaims(raw map[string]any, groupsClaim string) idFields {
	str := func(key string) string {
		s, _ := raw[key].(string)
		return s
	}
	f := idFields{
		userID:     str("sub"),
		email:      str("email"),
		givenName:  str("given_name"),
		familyName: str("family_name"),
	}
	if f.givenName == "" && f.familyName == "" {
		if name := strings.Fields(str("name")); len(name) > 0 {
			f.givenName = name[0]
			f.familyName = strings.Join(name[1:], " ")
		}
	}
	selected, err := jmespath.Search(groupsClaim, raw)
	if err != nil {
		return f
	}
	switch v := selected.(type) {
	case []any:
		for _, g := range v {
			if s, ok := g.(string); ok && s != "" {
				f.groups = append(f.groups, s)
			}
		}
	case string:
		f.groups = strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return f
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}

var _ ports.AuthProvider = (*Provider)(nil)
