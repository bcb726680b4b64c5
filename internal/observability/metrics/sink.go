// Package metrics emits client metrics through a small Sink abstraction.
package metrics

import "time"

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultStale   = "stale"
	ResultIgnored = "ignored"
)

// Sink describes the minimal interface required to emit metrics.
// Tag keys for a given metric name must be the same on every call.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Noop discards everything.
type Noop struct{}

var _ Sink = Noop{}

func (Noop) Count(string, int64, map[string]string)          {}
func (Noop) Gauge(string, float64, map[string]string)        {}
func (Noop) Timing(string, time.Duration, map[string]string) {}

// OrNoop returns s, or Noop when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return Noop{}
	}
	return s
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
