package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Layr-Labs/workorder-peering-go/pkg/types"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Connection
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// StateListener is notified of every state transition
type StateListener func(from, to State)

// messageConn is a bidirectional message oriented channel, satisfied by a
// websocket and by one end of an in-memory pipe.
type messageConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
	RemoteAddr() string
}

const inboundBufferSize = 64

// Connection is one bidirectional message channel to a single peer.
// Inbound payloads are delivered in arrival order on Inbound(), which is
// closed once the connection reaches a terminal state.
type Connection struct {
	conn   messageConn
	logger *zap.Logger

	inbound chan []byte
	done    chan struct{}

	mu        sync.Mutex
	state     State
	err       error
	listeners []StateListener

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnection(conn messageConn, logger *zap.Logger, listeners ...StateListener) *Connection {
	return &Connection{
		conn:      conn,
		logger:    logger.With(zap.String("remote", conn.RemoteAddr())),
		inbound:   make(chan []byte, inboundBufferSize),
		done:      make(chan struct{}),
		state:     StateConnecting,
		listeners: listeners,
	}
}

// open moves the connection to StateOpen and starts delivering inbound messages
func (c *Connection) open() {
	c.transition(StateOpen, nil)
	go c.readLoop()
}

func (c *Connection) readLoop() {
	defer close(c.inbound)

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			if isClosure(err) {
				c.finish(StateClosed, nil)
			} else {
				c.finish(StateErrored, fmt.Errorf("%w: read failed: %v", types.ErrTransport, err))
			}
			return
		}

		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}

// Send writes one payload. It fails with types.ErrConnectionClosed once the
// connection is terminal.
func (c *Connection) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return types.ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(ctx, payload); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: send: %v", types.ErrTimeout, ctx.Err())
		}
		select {
		case <-c.done:
			return types.ErrConnectionClosed
		default:
		}
		sendErr := fmt.Errorf("%w: write failed: %v", types.ErrTransport, err)
		c.finish(StateErrored, sendErr)
		return sendErr
	}
	return nil
}

func (c *Connection) Inbound() <-chan []byte {
	return c.inbound
}

// Done is closed when the connection reaches a terminal state
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that moved the connection to StateErrored, or nil
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr()
}

// OnStateChange registers a listener for later transitions
func (c *Connection) OnStateChange(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Close is idempotent and always releases the underlying socket
func (c *Connection) Close() error {
	c.finish(StateClosed, nil)
	return nil
}

func (c *Connection) finish(state State, err error) {
	if !c.transition(state, err) {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
		if cerr := c.conn.Close(); cerr != nil {
			c.logger.Sugar().Debugw("Error closing underlying connection", "error", cerr)
		}
	})
}

func (c *Connection) transition(to State, err error) bool {
	c.mu.Lock()
	from := c.state
	if from.Terminal() || from == to {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.err = err
	listeners := make([]StateListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if err != nil {
		c.logger.Sugar().Warnw("Connection state changed", "from", from.String(), "to", to.String(), "error", err)
	} else {
		c.logger.Sugar().Debugw("Connection state changed", "from", from.String(), "to", to.String())
	}
	for _, l := range listeners {
		l(from, to)
	}
	return true
}

func isClosure(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, errPipeClosed) || isNormalWebsocketClose(err)
}
