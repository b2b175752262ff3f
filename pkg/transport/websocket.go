package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrUnreachable = errors.New("peer unreachable")

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeGracePeriod        = time.Second
)

type wsConn struct {
	ws *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.ws.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := w.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	_ = w.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	return w.ws.Close()
}

func (w *wsConn) RemoteAddr() string {
	return w.ws.RemoteAddr().String()
}

func isNormalWebsocketClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

type DialOptions struct {
	HandshakeTimeout time.Duration
	Header           http.Header
	// Listeners are registered before the connection opens, so they observe
	// the connecting -> open transition.
	Listeners []StateListener
}

// Dial opens a websocket connection to url. Failures are classified as
// types.ErrTimeout when ctx or the handshake timeout expired, otherwise as
// ErrUnreachable wrapping types.ErrTransport.
func Dial(ctx context.Context, url string, opts *DialOptions, logger *zap.Logger) (*Connection, error) {
	if opts == nil {
		opts = &DialOptions{}
	}
	timeout := opts.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	logger.Sugar().Debugw("Dialing peer", "url", url)
	ws, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		for _, l := range opts.Listeners {
			l(StateConnecting, StateErrored)
		}
		return nil, classifyDialError(ctx, url, err)
	}

	conn := newConnection(&wsConn{ws: ws}, logger, opts.Listeners...)
	conn.open()
	logger.Sugar().Infow("Connected to peer", "url", url)
	return conn, nil
}

func classifyDialError(ctx context.Context, url string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: dial %s: %v", types.ErrTimeout, url, err)
	}
	return fmt.Errorf("%w: %w: dial %s: %v", types.ErrTransport, ErrUnreachable, url, err)
}

// DialWithRetry dials with exponential backoff until an attempt succeeds,
// the attempts are exhausted or ctx is done.
func DialWithRetry(ctx context.Context, url string, opts *DialOptions, retry RetryConfig, logger *zap.Logger) (*Connection, error) {
	var conn *Connection
	err := retry.Do(ctx, func(attempt int) error {
		c, err := Dial(ctx, url, opts, logger)
		if err != nil {
			logger.Sugar().Warnw("Dial attempt failed", "url", url, "attempt", attempt+1, "error", err)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}
