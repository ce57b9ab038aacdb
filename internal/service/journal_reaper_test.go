package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	count   int64
	err     error
}

func (p *stubPruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.count, p.err
}

func (p *stubPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestNewJournalReaper_RequiresPruner(t *testing.T) {
	_, err := NewJournalReaper(JournalReaperOptions{})
	require.Error(t, err)
}

func TestJournalReaper_PruneUsesRetention(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	pruner := &stubPruner{count: 4}
	sink := newCountingSink()
	reaper, err := NewJournalReaper(JournalReaperOptions{
		Pruner:    pruner,
		Retention: 48 * time.Hour,
		Metrics:   sink,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	n, err := reaper.Prune(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), pruner.cutoffs[0])
	assert.Equal(t, int64(4), sink.count("journal.pruned"))
}

// tagSink keeps the tags of the last counter it saw.
type tagSink struct {
	mu   sync.Mutex
	tags map[string]string
}

func (s *tagSink) Count(_ string, _ int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = tags
}

func (s *tagSink) Gauge(string, float64, map[string]string)        {}
func (s *tagSink) Timing(string, time.Duration, map[string]string) {}

func TestJournalReaper_PruneReturnsError(t *testing.T) {
	pruner := &stubPruner{err: errors.New("db down")}
	sink := &tagSink{}
	reaper, err := NewJournalReaper(JournalReaperOptions{Pruner: pruner, Metrics: sink})
	require.NoError(t, err)

	_, err = reaper.Prune(context.Background())

	require.EqualError(t, err, "db down")
	assert.Equal(t, "error", sink.tags["result"])
	assert.Equal(t, "errors_errorstring", sink.tags["error_class"])
}

func TestJournalReaper_RunPrunesUntilCancelled(t *testing.T) {
	pruner := &stubPruner{}
	reaper, err := NewJournalReaper(JournalReaperOptions{Pruner: pruner, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()

	assert.Eventually(t, func() bool { return pruner.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
