package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types exchanged on the steps channel.
const (
	TypeSubscribe         = "subscribe"
	TypeWelcome           = "welcome"
	TypeTotalUpdate       = "total_update"
	TypeStepUpdate        = "step_update"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypePong              = "pong"
)

// DefaultChannels are subscribed to when no channels are configured.
var DefaultChannels = []string{"total_updates", "step_updates", "leaderboard_updates"}

// SubscribeMessage is sent once the stream opens.
type SubscribeMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// NewSubscribeMessage builds a subscribe message, falling back to DefaultChannels.
func NewSubscribeMessage(channels []string) SubscribeMessage {
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	return SubscribeMessage{Type: TypeSubscribe, Channels: channels}
}

// Envelope is the common header of every inbound message.
type Envelope struct {
	Type string `json:"type"`
}

// TotalUpdate is the payload of a total_update message and of the poll endpoint.
type TotalUpdate struct {
	Type       string `json:"type,omitempty"`
	TotalSteps *int64 `json:"total_steps"`
}

var (
	errEmptyType    = errors.New("message has no type")
	errMissingTotal = errors.New("total_steps missing or not a number")
)

// Decoded is the result of decoding an inbound message.
// Total is set only for total_update messages.
type Decoded struct {
	Type  string
	Total *int64
}

// Decode parses an inbound frame. Unknown types decode fine with Total == nil;
// a total_update without a numeric total_steps is an error.
func Decode(data []byte) (Decoded, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Decoded{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Decoded{}, errEmptyType
	}
	if env.Type != TypeTotalUpdate {
		return Decoded{Type: env.Type}, nil
	}
	total, err := DecodeTotal(data)
	if err != nil {
		return Decoded{}, err
	}
	return Decoded{Type: env.Type, Total: &total}, nil
}

// DecodeTotal extracts total_steps from a total_update message or a poll response body.
func DecodeTotal(data []byte) (int64, error) {
	var msg TotalUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, fmt.Errorf("decode total: %w", err)
	}
	if msg.TotalSteps == nil {
		return 0, errMissingTotal
	}
	return *msg.TotalSteps, nil
}
