// Package realtime holds the domain model of the live steps counter: connection
// states, wire messages and the last-writer-wins counter value.
package realtime

// ConnectionState is the state of the counter's streaming connection.
type ConnectionState int

const (
	// StateConnecting is dialing the stream.
	StateConnecting ConnectionState = iota
	// StateOpen has a live stream delivering updates.
	StateOpen
	// StateReconnecting is waiting before the next dial after an unexpected close.
	StateReconnecting
	// StateFailed means the counter could not be started at all.
	StateFailed
	// StatePollingFallback gave up on the stream and polls the REST endpoint.
	StatePollingFallback
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StatePollingFallback:
		return "polling_fallback"
	default:
		return "unknown"
	}
}

// CanTransition reports whether from -> to is an edge of the counter state machine.
// PollingFallback -> Open is only legal when re-upgrading is enabled.
func CanTransition(from, to ConnectionState, reUpgrade bool) bool {
	switch from {
	case StateConnecting:
		return to == StateOpen || to == StateReconnecting || to == StateFailed
	case StateOpen:
		return to == StateReconnecting
	case StateReconnecting:
		return to == StateConnecting || to == StatePollingFallback
	case StatePollingFallback:
		return reUpgrade && to == StateOpen
	default:
		return false
	}
}
