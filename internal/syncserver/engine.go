package syncserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/steveyegge/livedoc/internal/auth"
	"github.com/steveyegge/livedoc/internal/document"
	"github.com/steveyegge/livedoc/internal/protocol"
	"github.com/steveyegge/livedoc/internal/registry"
	"github.com/steveyegge/livedoc/internal/store"
)

// ErrUnsavedChanges is returned by Reload while the in-memory document holds
// an update that has not reached the store.
var ErrUnsavedChanges = errors.New("in-memory document has unsaved changes")

// ErrSaveTimeout is reported when a store write outlives SaveTimeout. The
// write may still finish later.
var ErrSaveTimeout = errors.New("store write timed out")

// Update results recorded in metrics and logs.
const (
	resultAccepted      = "accepted"
	resultDenied        = "denied"
	resultMisconfigured = "misconfigured"
	resultIgnored       = "ignored"
	resultMalformed     = "malformed"
)

// EngineConfig holds the collaborators an Engine owns.
type EngineConfig struct {
	// Document is the in-memory state (default: empty document)
	Document *document.State

	// Store persists accepted updates (default: memory store)
	Store store.Store

	// Gate authorizes updates (default: misconfigured gate)
	Gate *auth.Gate

	// Registry tracks subscribers (default: registry.New(nil))
	Registry *registry.Registry

	// SaveTimeout bounds how long a commit waits for the store, whether or
	// not the store honors its context (default: 10s)
	SaveTimeout time.Duration

	// Logger for engine activity (default: stderr logger)
	Logger *log.Logger
}

// Engine runs the synchronization protocol for every connection.
//
// The commit lock serializes joins, commits and reloads. A joiner therefore
// receives the latest committed content as its first message, every member
// sees broadcasts in commit order, and nothing reaches a joiner before it has
// been handed to the store.
//
// Snapshot readers (Content, Revision) see the published copy, which a
// commit updates only after its save step.
type Engine struct {
	doc      *document.State
	store    store.Store
	gate     *auth.Gate
	registry *registry.Registry
	metrics  *Metrics
	logger   *log.Logger

	saveTimeout time.Duration

	commitMu   sync.Mutex
	saveFailed bool

	pubMu      sync.RWMutex
	pubContent string
	pubRev     uint64
}

// NewEngine creates an engine from config.
func NewEngine(config EngineConfig) *Engine {
	if config.Document == nil {
		config.Document = document.New("")
	}
	if config.Store == nil {
		config.Store = store.NewMemoryStore(config.Document.Get())
	}
	if config.Gate == nil {
		config.Gate = auth.NewGate("")
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Registry == nil {
		config.Registry = registry.New(&registry.Config{Logger: config.Logger})
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = 10 * time.Second
	}

	e := &Engine{
		doc:         config.Document,
		store:       config.Store,
		gate:        config.Gate,
		registry:    config.Registry,
		logger:      config.Logger,
		saveTimeout: config.SaveTimeout,
	}
	e.pubContent, e.pubRev = e.doc.Snapshot()
	e.metrics = newMetrics(func() float64 { return float64(e.registry.Len()) })
	return e
}

// Content returns the last committed document content.
func (e *Engine) Content() string {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	return e.pubContent
}

// Revision returns the revision of the last committed content.
func (e *Engine) Revision() uint64 {
	e.pubMu.RLock()
	defer e.pubMu.RUnlock()
	return e.pubRev
}

// publish exposes content to snapshot readers. Callers hold commitMu.
func (e *Engine) publish(content string, rev uint64) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.pubContent = content
	e.pubRev = rev
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// ClientCount returns the number of registered connections.
func (e *Engine) ClientCount() int {
	return e.registry.Len()
}

// Configured reports whether updates can be authorized at all.
func (e *Engine) Configured() bool {
	return e.gate.Configured()
}

// LastSaveOK reports whether the most recent store write succeeded.
func (e *Engine) LastSaveOK() bool {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()
	return !e.saveFailed
}

// Join registers conn and sends it the current content. The initial message
// is queued before any broadcast that commits after registration.
func (e *Engine) Join(ctx context.Context, conn registry.Conn) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	total := e.registry.Add(conn)

	msg, err := protocol.EncodeContent(e.doc.Get())
	if err != nil {
		e.registry.Remove(conn)
		return fmt.Errorf("failed to encode initial content: %w", err)
	}
	if err := conn.Send(ctx, msg); err != nil {
		e.registry.Remove(conn)
		return fmt.Errorf("failed to send initial content: %w", err)
	}

	e.logger.Printf("Client %s connected (total: %d)", conn.ID(), total)
	return nil
}

// Leave deregisters conn. It is safe to call more than once.
func (e *Engine) Leave(conn registry.Conn) {
	if e.registry.Remove(conn) {
		e.logger.Printf("Client %s disconnected (total: %d)", conn.ID(), e.registry.Len())
	}
}

// Handle processes one raw inbound message from conn.
//
// Probes are answered to conn alone. Updates with a valid password are
// committed; everything else is dropped without a reply.
func (e *Engine) Handle(ctx context.Context, conn registry.Conn, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		e.metrics.updates.WithLabelValues(resultMalformed).Inc()
		e.logger.Printf("Ignoring message from %s: %v", conn.ID(), err)
		return
	}

	if msg.IsProbe() {
		e.probe(ctx, conn, msg.Password)
		return
	}

	if msg.Content == nil {
		e.metrics.updates.WithLabelValues(resultIgnored).Inc()
		return
	}

	switch result := e.gate.Check(msg.Password); result {
	case auth.Authorized:
		e.Commit(ctx, *msg.Content)
	case auth.Misconfigured:
		e.metrics.updates.WithLabelValues(resultMisconfigured).Inc()
		e.logger.Printf("Rejected update from %s: %v", conn.ID(), result.Err())
	default:
		e.metrics.updates.WithLabelValues(resultDenied).Inc()
		e.logger.Printf("Rejected update from %s: %v", conn.ID(), result.Err())
	}
}

// Commit applies an authorized update: set, save, then broadcast to every
// member including the writer. A failed save is logged and the in-memory
// value stays authoritative.
func (e *Engine) Commit(ctx context.Context, content string) []registry.Delivery {
	// The writer disconnecting must not abort its own update.
	ctx = context.WithoutCancel(ctx)

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	rev := e.doc.Set(content)
	e.metrics.updates.WithLabelValues(resultAccepted).Inc()

	if err := e.save(ctx, content); err != nil {
		e.saveFailed = true
		e.metrics.saveFailures.Inc()
		e.logger.Printf("Warning: failed to persist revision %d: %v", rev, err)
	} else {
		e.saveFailed = false
	}
	e.publish(content, rev)

	e.logger.Printf("Accepted revision %d (%d bytes)", rev, len(content))
	return e.broadcast(ctx, content)
}

// Reload replaces the in-memory document with the stored one when they
// differ and broadcasts the change. It reports whether anything changed.
//
// Reload refuses to run while a failed save has left memory ahead of the
// store, since the store would otherwise roll the document back.
func (e *Engine) Reload(ctx context.Context) (bool, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if e.saveFailed {
		return false, ErrUnsavedChanges
	}

	content, err := e.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reload document: %w", err)
	}
	if content == e.doc.Get() {
		return false, nil
	}

	rev := e.doc.Set(content)
	e.publish(content, rev)
	e.logger.Printf("Reloaded revision %d from store (%d bytes)", rev, len(content))
	e.broadcast(ctx, content)
	return true, nil
}

// Verify checks password for the HTTP verification endpoint.
func (e *Engine) Verify(password string) protocol.VerifyResponse {
	result := e.gate.Check(password)
	e.metrics.probes.WithLabelValues(result.String()).Inc()

	switch result {
	case auth.Authorized:
		return protocol.VerifyResponse{OK: true}
	case auth.Misconfigured:
		return protocol.VerifyResponse{OK: false, Error: result.Err().Error()}
	default:
		return protocol.VerifyResponse{OK: false}
	}
}

// probe answers a credential check to conn without touching the document.
func (e *Engine) probe(ctx context.Context, conn registry.Conn, password string) {
	resp := e.Verify(password)

	reply := protocol.AuthReply{Auth: protocol.AuthFail, Error: resp.Error}
	if resp.OK {
		reply.Auth = protocol.AuthOK
	}

	if err := sendJSON(ctx, conn, reply); err != nil {
		e.logger.Printf("Failed to answer probe from %s: %v", conn.ID(), err)
		e.Leave(conn)
		_ = conn.Close("send failed")
	}
}

// save writes content to the store and waits at most saveTimeout for it.
// A write that overruns keeps going in the background; the store's own
// locking orders it before any later write.
func (e *Engine) save(ctx context.Context, content string) error {
	ctx, cancel := context.WithTimeout(ctx, e.saveTimeout)

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer cancel()
		err := e.store.Save(ctx, content)
		e.metrics.saveDuration.Observe(time.Since(start).Seconds())
		done <- err
	}()

	timer := time.NewTimer(e.saveTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrSaveTimeout, e.saveTimeout)
	}
}

// broadcast fans content out to all members. Callers hold commitMu.
func (e *Engine) broadcast(ctx context.Context, content string) []registry.Delivery {
	msg, err := protocol.EncodeContent(content)
	if err != nil {
		e.logger.Printf("Failed to marshal broadcast: %v", err)
		return nil
	}

	deliveries := e.registry.Broadcast(ctx, msg, nil)
	for _, d := range deliveries {
		if d.Err != nil {
			e.metrics.deliveries.WithLabelValues("failed").Inc()
		} else {
			e.metrics.deliveries.WithLabelValues("ok").Inc()
		}
	}
	return deliveries
}
