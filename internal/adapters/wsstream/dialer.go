// Package wsstream is the WebSocket transport for the live steps channel.
package wsstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/dkl/dkl-client/internal/errors"
	"github.com/dkl/dkl-client/internal/ports"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultUserID           = "public"
	closeWriteTimeout       = time.Second
	maxMessageSize          = 64 << 10
)

// DialerOptions configures a Dialer.
type DialerOptions struct {
	// BaseURL is the HTTP(S) API base; the scheme is switched to ws/wss.
	BaseURL string // required
	Path    string // required
	// UserID defaults to the public identity.
	UserID           string
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dialer opens gorilla/websocket connections to the steps channel.
type Dialer struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
}

var _ ports.StreamDialer = (*Dialer)(nil)

// NewDialer validates the endpoint and builds a Dialer.
func NewDialer(opts DialerOptions) (*Dialer, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("Path is required")
	}
	streamURL, err := StreamURL(opts.BaseURL, opts.Path, opts.UserID)
	if err != nil {
		return nil, err
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	return &Dialer{
		url:    streamURL,
		header: opts.Header.Clone(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
	}, nil
}

// URL returns the stream endpoint.
func (d *Dialer) URL() string { return d.url }

// StreamURL derives ws(s)://host/path?user_id=<id>&token= from an HTTP(S) base URL.
// The token parameter is intentionally empty; the channel is public.
func StreamURL(baseURL, path, userID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("base url has no host")
	}
	if userID == "" {
		userID = defaultUserID
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawQuery = "user_id=" + url.QueryEscape(userID) + "&token="
	u.Fragment = ""
	return u.String(), nil
}

// Dial opens a connection. Failures are reported as StreamUnavailable.
func (d *Dialer) Dial(ctx context.Context) (ports.StreamConn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, apperrors.StreamUnavailable(err)
	}
	conn.SetReadLimit(maxMessageSize)
	return &Conn{conn: conn}, nil
}

// Conn is one open WebSocket connection. Send and Close may be called
// concurrently with a blocked Receive.
type Conn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ ports.StreamConn = (*Conn)(nil)

// Send writes v as a JSON text frame.
func (c *Conn) Send(ctx context.Context, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Zero clears any previous deadline.
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return apperrors.StreamUnavailable(err)
	}
	return nil
}

// Receive returns the next text or binary frame payload.
func (c *Conn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			err = fmt.Errorf("%w: %w", ports.ErrStreamClosedByServer, err)
		}
		return nil, apperrors.StreamUnavailable(err)
	}
	return data, nil
}

// Close sends a normal-closure frame and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
		writeErr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()

		closeErr := c.conn.Close()
		if writeErr != nil && !errors.Is(writeErr, websocket.ErrCloseSent) {
			c.closeErr = errors.Join(fmt.Errorf("write close frame: %w", writeErr), closeErr)
			return
		}
		c.closeErr = closeErr
	})
	return c.closeErr
}
