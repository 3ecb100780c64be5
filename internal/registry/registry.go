// Package registry tracks the live set of subscribers and fans messages out
// to them.
package registry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
)

var (
	// ErrSlowConsumer is returned by Conn.Send when a subscriber cannot
	// accept another message without blocking.
	ErrSlowConsumer = errors.New("subscriber is not keeping up")

	// ErrClosed is returned by Conn.Send after the connection has closed.
	ErrClosed = errors.New("connection closed")
)

// Conn is one live subscriber.
type Conn interface {
	// ID uniquely identifies the connection within a registry.
	ID() string

	// Send delivers msg or reports why it could not. It must honor ctx.
	Send(ctx context.Context, msg []byte) error

	// Close terminates the connection. It must be safe to call more than once.
	Close(reason string) error
}

// Delivery is the outcome of sending one broadcast to one subscriber.
type Delivery struct {
	Conn Conn
	Err  error
}

// Config holds registry configuration
type Config struct {
	// SendTimeout bounds each individual send (default: 5s)
	SendTimeout time.Duration

	// MaxParallel bounds concurrent sends per broadcast (default: 32)
	MaxParallel int

	// Logger for registry activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		SendTimeout: 5 * time.Second,
		MaxParallel: 32,
		Logger:      log.Default(),
	}
}

// Registry is the authoritative set of live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn

	sendTimeout time.Duration
	maxParallel int
	logger      *log.Logger
}

// New creates an empty registry.
func New(config *Config) *Registry {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = defaults.MaxParallel
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Registry{
		conns:       make(map[string]Conn),
		sendTimeout: config.SendTimeout,
		maxParallel: config.MaxParallel,
		logger:      config.Logger,
	}
}

// Add registers conn for future broadcasts and returns the new member count.
func (r *Registry) Add(conn Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
	return len(r.conns)
}

// Remove deregisters conn. It reports whether conn was a member; removing a
// connection that is already gone is a no-op.
func (r *Registry) Remove(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.conns[conn.ID()]
	if !ok || existing != conn {
		return false
	}
	delete(r.conns, conn.ID())
	return true
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns the current members. Later membership changes do not
// affect the returned slice.
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast sends msg to every member except exclude, which may be nil.
//
// Membership is captured before any send starts. Sends run concurrently and
// each is bounded by the send timeout, so one stalled subscriber cannot hold
// up the others. Every member whose delivery failed is removed and closed
// before Broadcast returns.
func (r *Registry) Broadcast(ctx context.Context, msg []byte, exclude Conn) []Delivery {
	targets := r.Snapshot()

	p := pool.NewWithResults[Delivery]().WithMaxGoroutines(r.maxParallel)
	for _, conn := range targets {
		if exclude != nil && conn.ID() == exclude.ID() {
			continue
		}
		p.Go(func() Delivery {
			sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
			defer cancel()
			return Delivery{Conn: conn, Err: conn.Send(sendCtx, msg)}
		})
	}
	deliveries := p.Wait()

	for _, d := range deliveries {
		if d.Err != nil {
			r.drop(d.Conn, d.Err)
		}
	}

	return deliveries
}

// drop removes a connection after a failed delivery.
func (r *Registry) drop(conn Conn, cause error) {
	if !r.Remove(conn) {
		return
	}
	_ = conn.Close("send failed")
	r.logger.Printf("Removed subscriber %s: %v (total: %d)", conn.ID(), cause, r.Len())
}

// CloseAll removes and closes every member.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(reason)
	}
}

// Failed returns the deliveries that did not succeed.
func Failed(deliveries []Delivery) []Delivery {
	var failed []Delivery
	for _, d := range deliveries {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}
