// Package realtime contains hand-written, scriptable doubles for the stream and poll ports.
package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkl/dkl-client/internal/ports"
)

var (
	_ ports.StreamDialer = (*FakeStreamDialer)(nil)
	_ ports.StreamConn   = (*FakeStreamConn)(nil)
	_ ports.TotalFetcher = (*FakeTotalFetcher)(nil)
)

var (
	// ErrDialRefused is the default dial failure once the script is exhausted.
	ErrDialRefused = errors.New("fake dial refused")
	// ErrClosedByClient is what Receive returns after Close.
	ErrClosedByClient = errors.New("fake connection closed by client")
	// ErrDropped is a convenient server-side close reason.
	ErrDropped = errors.New("fake connection dropped")
)

// DialResult is one scripted Dial outcome.
type DialResult struct {
	Conn *FakeStreamConn
	Err  error
}

// FakeStreamDialer hands out scripted results in order. When the script is
// exhausted it keeps failing with ErrDialRefused.
type FakeStreamDialer struct {
	mu     sync.Mutex
	script []DialResult
	dials  atomic.Int32
	// Dialed receives one value per Dial, without blocking, if non-nil.
	Dialed chan struct{}
}

// NewFakeStreamDialer builds a dialer with the given script.
func NewFakeStreamDialer(script ...DialResult) *FakeStreamDialer {
	return &FakeStreamDialer{script: script}
}

// Enqueue appends results to the script.
func (d *FakeStreamDialer) Enqueue(results ...DialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

func (d *FakeStreamDialer) Dial(ctx context.Context) (ports.StreamConn, error) {
	d.dials.Add(1)
	if d.Dialed != nil {
		select {
		case d.Dialed <- struct{}{}:
		default:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.script) == 0 {
		return nil, ErrDialRefused
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return next.Conn, nil
}

// Dials returns how many times Dial was invoked.
func (d *FakeStreamDialer) Dials() int { return int(d.dials.Load()) }

// FakeStreamConn is an in-memory connection. Push feeds frames to Receive,
// Drop simulates the server closing the connection.
type FakeStreamConn struct {
	inbound chan []byte
	done    chan struct{}
	once    sync.Once
	err     error

	mu         sync.Mutex
	sent       []any
	closeCalls int
	// SendErr is returned by Send when set.
	SendErr error
}

// NewFakeStreamConn returns an open connection.
func NewFakeStreamConn() *FakeStreamConn {
	return &FakeStreamConn{
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

// Push delivers a frame. It is dropped if the connection has ended.
func (c *FakeStreamConn) Push(frame string) {
	select {
	case c.inbound <- []byte(frame):
	case <-c.done:
	}
}

// Drop ends the connection from the server side.
func (c *FakeStreamConn) Drop(err error) {
	if err == nil {
		err = ErrDropped
	}
	c.finish(err)
}

func (c *FakeStreamConn) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *FakeStreamConn) Send(_ context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, v)
	return c.SendErr
}

// Receive prefers queued frames over the end-of-connection signal.
func (c *FakeStreamConn) Receive() ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame, nil
	default:
	}
	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.done:
		return nil, c.err
	}
}

func (c *FakeStreamConn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.finish(ErrClosedByClient)
	return nil
}

// Sent returns the messages written so far.
func (c *FakeStreamConn) Sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

// Closed reports whether the client closed the connection.
func (c *FakeStreamConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls > 0
}

// FakeTotalFetcher returns Total, or Err, and counts calls.
type FakeTotalFetcher struct {
	// FetchFunc overrides the default behavior when set.
	FetchFunc func(ctx context.Context) (int64, error)

	total atomic.Int64
	calls atomic.Int32

	mu  sync.Mutex
	err error
}

// SetTotal changes the value returned by later fetches.
func (f *FakeTotalFetcher) SetTotal(v int64) { f.total.Store(v) }

// SetErr makes later fetches fail with err (nil restores success).
func (f *FakeTotalFetcher) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeTotalFetcher) FetchTotal(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx)
	}
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.total.Load(), nil
}

// Calls returns how many times FetchTotal was invoked.
func (f *FakeTotalFetcher) Calls() int { return int(f.calls.Load()) }
