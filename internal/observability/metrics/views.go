// Package metrics turns gatehouse events into StatsD metrics.
package metrics

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/gatehouse/gatehouse/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// ViewTransition captures a change in the rendered branch of a view.
type ViewTransition struct {
	From string
	To   string
}

// EmitViewTransition counts branch changes of mounted views.
func EmitViewTransition(sink statsd.Sink, in ViewTransition) {
	if sink == nil {
		return
	}
	sink.Count("view.transition", 1, map[string]string{
		"from": in.From,
		"to":   in.To,
	})
}

// EmitViewsMounted reports how many views are currently mounted.
func EmitViewsMounted(sink statsd.Sink, n int) {
	if sink == nil {
		return
	}
	sink.Gauge("view.mounted", float64(n), nil)
}

// AuthChange captures a published session change.
type AuthChange struct {
	Kind     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitAuthChange emits standardised session change metrics.
func EmitAuthChange(sink statsd.Sink, in AuthChange) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":   in.Kind,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := ErrorClass(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.change", 1, tags)

	if in.Duration > 0 {
		sink.Timing("auth.change.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// ErrorClass names err for tagging. Context errors get fixed names; anything else is
// named after the innermost wrapped type, e.g. "pgconn_pgerror".
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	for next := errors.Unwrap(err); next != nil; next = errors.Unwrap(err) {
		err = next
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
