package service

import (
	"context"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/observability/tracing"
	"github.com/gatehouse/gatehouse/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClientSessions resolves the session a browser client currently holds.
type ClientSessions interface {
	ClientSession(ctx context.Context, clientID string) (*domainauth.Session, error)
}

// AuthClientFactory builds per-client AuthClients over a shared session source and hub.
type AuthClientFactory struct {
	Sessions ClientSessions
	Hub      domainauth.Hub
	Tracer   trace.Tracer
}

// For returns the AuthClient for clientID.
func (f AuthClientFactory) For(clientID string) ports.AuthClient {
	tracer := f.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	return &AuthClient{
		clientID: clientID,
		sessions: f.Sessions,
		hub:      f.Hub,
		tracer:   tracer,
	}
}

// AuthClient is the auth view of a single browser client.
type AuthClient struct {
	clientID string
	sessions ClientSessions
	hub      domainauth.Hub
	tracer   trace.Tracer
}

var _ ports.AuthClient = (*AuthClient)(nil)

// GetSession looks up the client's session. A signed-out client yields nil, nil.
func (c *AuthClient) GetSession(ctx context.Context) (*domainauth.Session, error) {
	ctx, span := c.tracer.Start(ctx, "authclient.GetSession")
	defer span.End()

	sess, err := c.sessions.ClientSession(ctx, c.clientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session lookup failed")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("gatehouse.signed_in", sess != nil))
	return sess, nil
}

// Subscribe registers for the client's change events.
func (c *AuthClient) Subscribe() (func(), <-chan domainauth.ChangeEvent) {
	return c.hub.Subscribe(c.clientID)
}
