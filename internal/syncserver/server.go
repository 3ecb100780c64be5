// Package syncserver provides the real-time WebSocket server that keeps every
// connected client in sync with the shared document.
//
// A client connects to /ws and immediately receives {"content": ...}. Any
// client presenting the shared password may replace the content; the new
// value is persisted and then broadcast to every connected client, including
// the writer. Plain HTTP endpoints offer a snapshot read (/load), a
// credential check (/verify), health (/health) and metrics (/metrics).
package syncserver

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on (default: 8000, 0 picks a free port)
	Port int

	// SendTimeout bounds each WebSocket write (default: 5s)
	SendTimeout time.Duration

	// MaxMessageBytes limits inbound message size (default: 8 MiB)
	MaxMessageBytes int64

	// OutboxSize is the number of queued messages a client may fall behind
	// before it is dropped (default: 64)
	OutboxSize int

	// AllowedOrigins are host patterns accepted for cross-origin WebSocket
	// upgrades (default: all origins)
	AllowedOrigins []string

	// IndexFile is served at / when it exists
	IndexFile string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:            8000,
		SendTimeout:     5 * time.Second,
		MaxMessageBytes: 8 << 20,
		OutboxSize:      64,
		AllowedOrigins:  []string{"*"},
		IndexFile:       "index.html",
		Logger:          log.Default(),
	}
}

// Server serves the synchronization protocol over HTTP and WebSocket.
type Server struct {
	config   *Config
	engine   *Engine
	listener net.Listener
	server   *http.Server

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopping bool

	logger *log.Logger
}

// NewServer creates a server for engine.
func NewServer(config *Config, engine *Engine) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if config.OutboxSize <= 0 {
		config.OutboxSize = defaults.OutboxSize
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = defaults.AllowedOrigins
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config: config,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
		logger: config.Logger,
	}
}

// Engine returns the engine the server drives.
func (s *Server) Engine() *Engine {
	return s.engine
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/load", s.handleLoad)
	mux.HandleFunc("/verify", s.handleVerify)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.engine.Metrics().Handler())
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins listening and serving in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down gracefully
func (s *Server) Stop() error {
	s.logger.Println("Stopping sync server")

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	s.cancel()
	s.engine.registry.CloseAll(reasonShutdown)

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Sync server stopped")
	return nil
}

// track registers one connection handler with the shutdown WaitGroup. It
// fails once Stop has begun, so no Add can race Stop's Wait.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.wg.Add(1)
	return true
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	return s.engine.ClientCount()
}
