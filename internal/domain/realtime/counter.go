package realtime

import "time"

// UpdateSource identifies which path delivered a counter update.
type UpdateSource string

const (
	SourceNone   UpdateSource = ""
	SourceStream UpdateSource = "stream"
	SourcePoll   UpdateSource = "poll"
)

// Update is a single observation of the total.
// ObservedAt is the stream arrival time, or the poll request start time.
type Update struct {
	Value      int64
	ObservedAt time.Time
	Source     UpdateSource
}

// CounterValue is the single shared value shown to consumers.
type CounterValue struct {
	Value      int64
	LastUpdate time.Time
	Source     UpdateSource
}

// Apply returns the value after applying u, and whether u was accepted.
// Updates observed before the held value are stale and dropped, so a slow poll
// response can never overwrite a newer stream message.
func (c CounterValue) Apply(u Update) (CounterValue, bool) {
	if !c.LastUpdate.IsZero() && u.ObservedAt.Before(c.LastUpdate) {
		return c, false
	}
	return CounterValue{Value: u.Value, LastUpdate: u.ObservedAt, Source: u.Source}, true
}

// Snapshot is a consistent read of the counter for consumers.
type Snapshot struct {
	Value      int64
	LastUpdate time.Time
	Source     UpdateSource
	Connected  bool
	State      ConnectionState
}
