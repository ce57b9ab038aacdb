package httpx

import "context"

// clientKey is an unexported context key type to avoid collisions across packages.
type clientKey struct{}

// SetClientIDInContext returns a child context that carries the browser client id.
// An empty id returns ctx unchanged.
func SetClientIDInContext(ctx context.Context, clientID string) context.Context {
	if clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientKey{}, clientID)
}

// GetClientIDFromContext returns the browser client id and whether one was set.
func GetClientIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(clientKey{}).(string)
	return id, ok && id != ""
}

// ClientID returns the browser client id from ctx, or "".
func ClientID(ctx context.Context) string {
	id, _ := GetClientIDFromContext(ctx)
	return id
}
