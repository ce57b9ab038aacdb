package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/ports"
	"github.com/redis/go-redis/v9"
)

// ChangeBus carries session change events between gatehouse instances over Redis pub/sub.
// Each client has its own channel so a listener only receives its own events.
type ChangeBus struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// ChangeBusOptions configure a ChangeBus.
type ChangeBusOptions struct {
	Client redis.UniversalClient
	Prefix string
	Logger *slog.Logger
}

// NewChangeBus constructs a ChangeBus.
func NewChangeBus(opts ChangeBusOptions) (*ChangeBus, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "auth:changes:"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeBus{client: opts.Client, prefix: prefix, logger: logger}, nil
}

// Channel returns the pub/sub channel name for clientID.
func (b *ChangeBus) Channel(clientID string) string { return b.prefix + clientID }

// Publish sends ev to every listener of clientID.
func (b *ChangeBus) Publish(ctx context.Context, clientID string, ev domainauth.ChangeEvent) error {
	if clientID == "" {
		return errors.New("client ID is required")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel(clientID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen subscribes to clientID's channel and delivers events until ctx is cancelled
// or the subscription fails. Undecodable payloads are logged and skipped.
func (b *ChangeBus) Listen(ctx context.Context, clientID string, deliver func(domainauth.ChangeEvent), ready func()) error {
	pubsub := b.client.Subscribe(ctx, b.Channel(clientID))
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Debug("close pubsub", "client_id", clientID, "error", err)
		}
	}()

	// Receive blocks until Redis confirms the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	if ready != nil {
		ready()
	}

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var ev domainauth.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("discarding malformed change event", "client_id", clientID, "error", err)
				continue
			}
			deliver(ev)
		}
	}
}

var (
	_ ports.ChangePublisher = (*ChangeBus)(nil)
	_ domainauth.Listener   = (*ChangeBus)(nil)
)
