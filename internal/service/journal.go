package service

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/gatehouse/gatehouse/internal/domain/auth"
	"github.com/gatehouse/gatehouse/internal/observability/metrics"
	"github.com/gatehouse/gatehouse/internal/observability/statsd"
	"github.com/gatehouse/gatehouse/internal/ports"
)

// JournalingPublisherOptions configure a JournalingPublisher.
type JournalingPublisherOptions struct {
	Next    ports.ChangePublisher
	Journal ports.AuthEventJournal
	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// JournalingPublisher records every published change before handing it on.
// A journal failure never blocks the announcement.
type JournalingPublisher struct {
	next    ports.ChangePublisher
	journal ports.AuthEventJournal
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

var _ ports.ChangePublisher = (*JournalingPublisher)(nil)

// NewJournalingPublisher wraps opts.Next. A nil journal only adds metrics.
func NewJournalingPublisher(opts JournalingPublisherOptions) *JournalingPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JournalingPublisher{
		next:    opts.Next,
		journal: opts.Journal,
		logger:  logger.With("component", "auth_journal"),
		metrics: opts.Metrics,
		now:     now,
	}
}

// Publish journals ev and forwards it to the wrapped publisher.
func (p *JournalingPublisher) Publish(ctx context.Context, clientID string, ev domainauth.ChangeEvent) error {
	start := p.now()
	if ev.At.IsZero() {
		ev.At = start
	}

	if p.journal != nil {
		if err := p.journal.Record(ctx, toAuthEvent(clientID, ev)); err != nil {
			p.logger.Warn("failed to journal session change",
				"client_id", clientID,
				"kind", ev.Kind,
				"error", err,
			)
		}
	}

	err := p.next.Publish(ctx, clientID, ev)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthChange(p.metrics, metrics.AuthChange{
		Kind:     string(ev.Kind),
		Result:   result,
		Duration: p.now().Sub(start),
		Err:      err,
	})
	return err
}

func toAuthEvent(clientID string, ev domainauth.ChangeEvent) domainauth.AuthEvent {
	out := domainauth.AuthEvent{
		ClientID:   clientID,
		UserID:     ev.Subject,
		Kind:       ev.Kind,
		OccurredAt: ev.At,
	}
	if ev.Session != nil {
		out.SessionID = ev.Session.ID
		if out.UserID == "" {
			out.UserID = ev.Session.UserID
		}
	}
	return out
}
