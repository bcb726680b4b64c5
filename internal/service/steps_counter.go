package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dkl/dkl-client/internal/domain/realtime"
	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/observability/metrics"
	"github.com/dkl/dkl-client/internal/ports"
)

const (
	defaultReconnectInterval    = 2 * time.Second
	defaultMaxReconnectAttempts = 3
	defaultPollInterval         = 10 * time.Second
	defaultStableConnection     = 30 * time.Second
	subscribeTimeout            = 5 * time.Second
)

var (
	// ErrCounterStarted is returned by a second Start.
	ErrCounterStarted = errors.New("steps counter already started")
	// ErrCounterUnavailable is returned by Start when no stream endpoint could be built.
	ErrCounterUnavailable = errors.New("steps counter has no stream endpoint")
)

// StepsCounterConfig tunes reconnects and the polling fallback.
type StepsCounterConfig struct {
	Channels             []string
	ReconnectInterval    time.Duration
	ReconnectBackoff     float64 // 1 keeps the interval fixed
	MaxReconnectInterval time.Duration
	MaxReconnectAttempts int
	// StableConnection is how long a connection must stay open before the
	// attempt counter resets; shorter-lived connections count as failures.
	StableConnection time.Duration
	PollInterval     time.Duration
	// ReUpgradeInterval > 0 retries the stream from the polling fallback; 0 never does.
	ReUpgradeInterval time.Duration
}

// StepsCounterOptions groups dependencies for StepsCounter.
type StepsCounterOptions struct {
	Dialer  ports.StreamDialer // Optional: nil leaves the counter in the Failed state
	Fetcher ports.TotalFetcher // Required: polling fallback
	Config  StepsCounterConfig
	Logger  *slog.Logger
	Metrics metrics.Sink
	// OnStateChange and OnValue run on the counter goroutine and must not block.
	OnStateChange func(from, to realtime.ConnectionState)
	OnValue       func(realtime.CounterValue)
}

// StepsCounter keeps one live total fed by the steps stream, reconnecting a bounded
// number of times and then falling back to polling.
//
// All connection state is driven by a single goroutine; readers get snapshots.
type StepsCounter struct {
	dialer        ports.StreamDialer
	fetcher       ports.TotalFetcher
	cfg           StepsCounterConfig
	logger        *slog.Logger
	metrics       metrics.Sink
	onStateChange func(from, to realtime.ConnectionState)
	onValue       func(realtime.CounterValue)
	now           func() time.Time

	mu        sync.RWMutex
	value     realtime.CounterValue
	state     realtime.ConnectionState
	connected bool

	lifecycle sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStepsCounter constructs a StepsCounter in the Connecting state. Call Start to run it.
func NewStepsCounter(opts StepsCounterOptions) *StepsCounter {
	if opts.Fetcher == nil {
		panic("TotalFetcher is required")
	}

	cfg := opts.Config
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.ReconnectBackoff < 1 {
		cfg.ReconnectBackoff = 1
	}
	if cfg.MaxReconnectInterval < cfg.ReconnectInterval {
		cfg.MaxReconnectInterval = cfg.ReconnectInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.StableConnection <= 0 {
		cfg.StableConnection = defaultStableConnection
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReUpgradeInterval < 0 {
		cfg.ReUpgradeInterval = 0
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StepsCounter{
		dialer:        opts.Dialer,
		fetcher:       opts.Fetcher,
		cfg:           cfg,
		logger:        logger.With("component", "steps_counter"),
		metrics:       metrics.OrNoop(opts.Metrics),
		onStateChange: opts.OnStateChange,
		onValue:       opts.OnValue,
		now:           time.Now,
		state:         realtime.StateConnecting,
		done:          make(chan struct{}),
	}
}

// Start launches the counter goroutine. It runs until ctx ends or Close is called.
func (c *StepsCounter) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started {
		return ErrCounterStarted
	}
	c.started = true

	if c.dialer == nil {
		close(c.done)
		c.transition(realtime.StateFailed)
		return ErrCounterUnavailable
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// Close tears the counter down: the stream is closed normally, timers stop and no
// further state changes, hooks or network calls happen once it returns.
func (c *StepsCounter) Close() {
	c.lifecycle.Lock()
	if !c.started {
		c.started = true
		close(c.done)
		c.lifecycle.Unlock()
		return
	}
	cancel := c.cancel
	c.lifecycle.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.done
}

// Done is closed when the counter goroutine has exited.
func (c *StepsCounter) Done() <-chan struct{} { return c.done }

// Snapshot returns a consistent view of the value and connectivity.
func (c *StepsCounter) Snapshot() realtime.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return realtime.Snapshot{
		Value:      c.value.Value,
		LastUpdate: c.value.LastUpdate,
		Source:     c.value.Source,
		Connected:  c.connected,
		State:      c.state,
	}
}

// Value returns the current total.
func (c *StepsCounter) Value() int64 { return c.Snapshot().Value }

// Connected reports whether the stream is open.
func (c *StepsCounter) Connected() bool { return c.Snapshot().Connected }

// State returns the connection state.
func (c *StepsCounter) State() realtime.ConnectionState { return c.Snapshot().State }

func (c *StepsCounter) run(ctx context.Context) {
	defer close(c.done)

	attempts := 0
	var conn ports.StreamConn
	for {
		if conn == nil {
			c.transition(realtime.StateConnecting)
			var err error
			conn, err = c.dialer.Dial(ctx)
			if ctx.Err() != nil {
				closeConn(conn)
				return
			}
			if err != nil {
				c.logger.WarnContext(ctx, "stream dial failed", "attempt", attempts+1, "error", err)
				conn = nil
			}
		}

		if conn != nil {
			openedAt := c.now()
			err := c.serve(ctx, conn)
			conn = nil
			if ctx.Err() != nil {
				return
			}
			if c.now().Sub(openedAt) >= c.cfg.StableConnection {
				attempts = 0
			}
			if errors.Is(err, ports.ErrStreamClosedByServer) {
				// A deliberate server close does not count against the reconnect budget.
				c.logger.InfoContext(ctx, "stream closed by server, reconnecting")
				c.transition(realtime.StateReconnecting)
				if !sleepCtx(ctx, c.cfg.ReconnectInterval) {
					return
				}
				continue
			}
			c.logger.WarnContext(ctx, "stream closed unexpectedly", "error", err)
		}

		c.transition(realtime.StateReconnecting)
		attempts++
		if attempts >= c.cfg.MaxReconnectAttempts {
			c.logger.WarnContext(ctx, "reconnect attempts exhausted, polling instead",
				"attempts", attempts, "poll_interval", c.cfg.PollInterval.String())
			conn = c.poll(ctx)
			if conn == nil {
				return
			}
			continue
		}

		if !sleepCtx(ctx, c.reconnectDelay(attempts)) {
			return
		}
	}
}

type frame struct {
	data []byte
	at   time.Time
}

// serve drives one open connection until it ends. The connection is always closed on return.
func (c *StepsCounter) serve(ctx context.Context, conn ports.StreamConn) error {
	c.transition(realtime.StateOpen)
	c.logger.InfoContext(ctx, "stream open")

	subCtx, cancel := context.WithTimeout(ctx, subscribeTimeout)
	err := conn.Send(subCtx, realtime.NewSubscribeMessage(c.cfg.Channels))
	cancel()
	if err != nil {
		closeConn(conn)
		return apperrors.StreamUnavailable(err)
	}

	frames := make(chan frame)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			data, err := conn.Receive()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- frame{data: data, at: c.now()}:
			case <-stop:
				return
			}
		}
	}()

	defer func() {
		close(stop)
		closeConn(conn)
		<-readerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case f := <-frames:
			c.handleFrame(ctx, f)
		}
	}
}

func (c *StepsCounter) handleFrame(ctx context.Context, f frame) {
	msg, err := realtime.Decode(f.data)
	if err != nil {
		merr := apperrors.MalformedMessage("dropping malformed stream message", err)
		c.logger.WarnContext(ctx, "malformed stream message", "error", merr, "size", len(f.data))
		metrics.EmitStreamMessage(c.metrics, "unknown", metrics.ResultError)
		return
	}
	if msg.Total == nil {
		c.logger.DebugContext(ctx, "ignoring stream message", "type", msg.Type)
		metrics.EmitStreamMessage(c.metrics, msg.Type, metrics.ResultIgnored)
		return
	}
	metrics.EmitStreamMessage(c.metrics, msg.Type, metrics.ResultSuccess)
	c.apply(ctx, realtime.Update{Value: *msg.Total, ObservedAt: f.at, Source: realtime.SourceStream})
}

// poll runs the fallback until ctx ends or, with re-upgrade enabled, a stream
// dial succeeds; the new connection is returned.
func (c *StepsCounter) poll(ctx context.Context) ports.StreamConn {
	c.transition(realtime.StatePollingFallback)
	c.pollOnce(ctx)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var reUpgrade <-chan time.Time
	if c.cfg.ReUpgradeInterval > 0 {
		t := time.NewTicker(c.cfg.ReUpgradeInterval)
		defer t.Stop()
		reUpgrade = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.pollOnce(ctx)
		case <-reUpgrade:
			conn, err := c.dialer.Dial(ctx)
			if ctx.Err() != nil {
				closeConn(conn)
				return nil
			}
			if err == nil {
				c.logger.InfoContext(ctx, "stream re-established, leaving polling fallback")
				return conn
			}
			c.logger.DebugContext(ctx, "re-upgrade dial failed", "error", err)
		}
	}
}

func (c *StepsCounter) pollOnce(ctx context.Context) {
	start := c.now()
	total, err := c.fetcher.FetchTotal(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.WarnContext(ctx, "poll failed, keeping last value", "error", err)
		metrics.EmitPoll(c.metrics, metrics.ResultError)
		return
	}
	metrics.EmitPoll(c.metrics, metrics.ResultSuccess)
	c.apply(ctx, realtime.Update{Value: total, ObservedAt: start, Source: realtime.SourcePoll})
}

func (c *StepsCounter) apply(ctx context.Context, u realtime.Update) {
	c.mu.Lock()
	next, ok := c.value.Apply(u)
	if ok {
		c.value = next
	}
	c.mu.Unlock()

	if !ok {
		c.logger.DebugContext(ctx, "dropping stale update", "source", string(u.Source))
		metrics.EmitStreamMessage(c.metrics, string(u.Source), metrics.ResultStale)
		return
	}
	metrics.EmitCounterValue(c.metrics, next.Value, string(next.Source))
	if c.onValue != nil {
		c.onValue(next)
	}
}

func (c *StepsCounter) transition(to realtime.ConnectionState) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.connected = to == realtime.StateOpen
	c.mu.Unlock()

	if !realtime.CanTransition(from, to, c.cfg.ReUpgradeInterval > 0) {
		c.logger.Warn("illegal state transition", "from", from.String(), "to", to.String())
		metrics.EmitIllegalTransition(c.metrics, from.String(), to.String())
	}
	c.logger.Debug("state transition", "from", from.String(), "to", to.String())
	metrics.EmitStateTransition(c.metrics, from.String(), to.String())
	if c.onStateChange != nil {
		c.onStateChange(from, to)
	}
}

// reconnectDelay grows by the backoff factor per attempt, capped at MaxReconnectInterval.
func (c *StepsCounter) reconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.cfg.ReconnectInterval) * math.Pow(c.cfg.ReconnectBackoff, float64(attempt-1))
	if d > float64(c.cfg.MaxReconnectInterval) {
		return c.cfg.MaxReconnectInterval
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func closeConn(conn ports.StreamConn) {
	if conn != nil {
		_ = conn.Close()
	}
}
