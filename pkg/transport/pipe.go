package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var errPipeClosed = errors.New("pipe closed")

type pipeShared struct {
	closed    chan struct{}
	closeOnce sync.Once
}

type pipeEnd struct {
	name   string
	in     <-chan []byte
	out    chan<- []byte
	shared *pipeShared
}

// NewPipe returns two connected in-memory Connections that are already open.
// Closing either end closes both.
func NewPipe(logger *zap.Logger) (*Connection, *Connection) {
	ab := make(chan []byte, inboundBufferSize)
	ba := make(chan []byte, inboundBufferSize)
	shared := &pipeShared{closed: make(chan struct{})}

	a := newConnection(&pipeEnd{name: "pipe-a", in: ba, out: ab, shared: shared}, logger)
	b := newConnection(&pipeEnd{name: "pipe-b", in: ab, out: ba, shared: shared}, logger)
	a.open()
	b.open()
	return a, b
}

func (p *pipeEnd) ReadMessage() ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.shared.closed:
		// drain what was written before the close
		select {
		case data := <-p.in:
			return data, nil
		default:
			return nil, errPipeClosed
		}
	}
}

func (p *pipeEnd) WriteMessage(ctx context.Context, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)

	select {
	case <-p.shared.closed:
		return errPipeClosed
	default:
	}

	select {
	case p.out <- cp:
		return nil
	case <-p.shared.closed:
		return errPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.shared.closeOnce.Do(func() {
		close(p.shared.closed)
	})
	return nil
}

func (p *pipeEnd) RemoteAddr() string {
	return p.name
}
