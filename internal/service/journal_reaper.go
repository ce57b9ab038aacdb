package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/gatehouse/gatehouse/internal/observability/metrics"
	"github.com/gatehouse/gatehouse/internal/observability/statsd"
)

// JournalPruner deletes journaled auth events older than a cutoff.
type JournalPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalReaperOptions groups dependencies for JournalReaper.
type JournalReaperOptions struct {
	Pruner    JournalPruner // Required
	Retention time.Duration // Events older than this are deleted; defaults to 30 days
	Interval  time.Duration // Defaults to one hour
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Now       func() time.Time
}

// JournalReaper periodically prunes the auth event journal.
type JournalReaper struct {
	pruner    JournalPruner
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// NewJournalReaper constructs a JournalReaper.
func NewJournalReaper(opts JournalReaperOptions) (*JournalReaper, error) {
	if opts.Pruner == nil {
		return nil, errors.New("journal pruner is required")
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JournalReaper{
		pruner:    opts.Pruner,
		retention: retention,
		interval:  interval,
		logger:    logger.With("component", "journal_reaper"),
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// Run prunes once after a short jitter and then on every interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (r *JournalReaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting journal reaper", "interval", r.interval, "retention", r.retention)

	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Prune(ctx); err != nil && !isContextCancellation(err) {
			r.logger.ErrorContext(ctx, "journal prune failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "journal reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Prune deletes events older than the retention window.
func (r *JournalReaper) Prune(ctx context.Context) (int64, error) {
	start := r.now()
	count, err := r.pruner.PruneBefore(ctx, start.Add(-r.retention))

	if r.metrics != nil {
		tags := map[string]string{"result": metrics.ResultSuccess}
		switch {
		case err != nil && !isContextCancellation(err):
			tags["result"] = metrics.ResultError
			tags["error_class"] = metrics.ErrorClass(err)
		case count == 0:
			tags["result"] = metrics.ResultNoop
		}
		r.metrics.Count("journal.pruned", count, tags)
		r.metrics.Timing("journal.prune.duration", r.now().Sub(start), metrics.CloneTags(tags))
	}

	if err != nil {
		return count, err
	}
	if count > 0 {
		r.logger.InfoContext(ctx, "pruned auth events", "count", count)
	}
	return count, nil
}

// waitWithJitter adds a random delay up to 10% of the interval so replicas do not prune together.
func (r *JournalReaper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
