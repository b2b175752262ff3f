package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ListenerConfig struct {
	// Path the websocket upgrade is served on
	Path string
	// AcceptRate limits new inbound connections per second; zero disables limiting
	AcceptRate  float64
	AcceptBurst int

	ReadBufferSize  int
	WriteBufferSize int
}

func DefaultListenerConfig() *ListenerConfig {
	return &ListenerConfig{
		Path:            "/",
		AcceptRate:      50,
		AcceptBurst:     100,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// ConnectHandler is invoked on its own goroutine for every accepted connection
type ConnectHandler func(conn *Connection)

// Listener accepts inbound websocket connections
type Listener struct {
	config   *ListenerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	conns      map[*Connection]struct{}
	onConnect  ConnectHandler
}

func NewListener(cfg *ListenerConfig, logger *zap.Logger) *Listener {
	if cfg == nil {
		cfg = DefaultListenerConfig()
	}
	l := &Listener{
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// peers are authenticated by the handshake, not by origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*Connection]struct{}),
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return l
}

// Start binds host:port (port 0 picks a free port) and serves in the background
func (l *Listener) Start(host string, port int, onConnect ConnectHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.httpServer != nil {
		return fmt.Errorf("listener already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to listen on %s:%d: %w", host, port, err)
	}

	path := l.config.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)

	l.listener = ln
	l.onConnect = onConnect
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.httpServer = server

	// Stop may clear l.httpServer before this goroutine runs
	go func() {
		l.logger.Sugar().Infow("Starting websocket listener", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.logger.Sugar().Errorw("Websocket listener error", "error", err)
		}
	}()
	return nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if l.limiter != nil && !l.limiter.Allow() {
		l.logger.Sugar().Warnw("Rejecting connection, accept rate exceeded", "remote", r.RemoteAddr)
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Sugar().Warnw("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConnection(&wsConn{ws: ws}, l.logger)
	conn.OnStateChange(func(from, to State) {
		if to.Terminal() {
			l.mu.Lock()
			delete(l.conns, conn)
			l.mu.Unlock()
		}
	})

	l.mu.Lock()
	if l.httpServer == nil {
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.conns[conn] = struct{}{}
	onConnect := l.onConnect
	l.mu.Unlock()

	conn.open()
	l.logger.Sugar().Infow("Accepted connection", "remote", conn.RemoteAddr())
	if onConnect != nil {
		go onConnect(conn)
	}
}

// Addr returns the bound address, or nil before Start
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// URL returns the ws:// url peers dial
func (l *Listener) URL() string {
	addr := l.Addr()
	if addr == nil {
		return ""
	}
	path := l.config.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("ws://%s%s", addr.String(), path)
}

// ActiveConnections returns the number of open accepted connections
func (l *Listener) ActiveConnections() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}

// Stop shuts the server down and closes every accepted connection
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	server := l.httpServer
	l.httpServer = nil
	conns := make([]*Connection, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.Unlock()

	if server == nil {
		return nil
	}

	for _, c := range conns {
		_ = c.Close()
	}
	return server.Shutdown(ctx)
}
