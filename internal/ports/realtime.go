package ports

import (
	"context"
	"errors"
)

// ErrStreamClosedByServer is returned by Receive when the server ended the
// stream with a normal-closure frame.
var ErrStreamClosedByServer = errors.New("stream closed normally by server")

// StreamConn is one open streaming connection.
// Receive blocks until a frame arrives or the connection ends; Close unblocks it.
type StreamConn interface {
	Send(ctx context.Context, v any) error
	// Receive wraps ErrStreamClosedByServer when the server closes with code 1000.
	Receive() ([]byte, error)
	// Close sends a normal-closure frame and releases the connection.
	Close() error
}

// StreamDialer opens streaming connections to the steps channel.
type StreamDialer interface {
	Dial(ctx context.Context) (StreamConn, error)
}

// TotalFetcher reads the current total over plain HTTP.
type TotalFetcher interface {
	FetchTotal(ctx context.Context) (int64, error)
}
