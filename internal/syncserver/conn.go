package syncserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/steveyegge/livedoc/internal/registry"
)

// reasonShutdown is the close reason used when the server stops.
const reasonShutdown = "server shutting down"

// wsConn adapts a WebSocket to registry.Conn.
//
// Send only enqueues; a dedicated writer goroutine drains the outbox in
// order, so a slow peer fills its own outbox instead of blocking the
// broadcaster.
type wsConn struct {
	id           string
	ws           *websocket.Conn
	outbox       chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newWSConn(id string, ws *websocket.Conn, outboxSize int, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           id,
		ws:           ws,
		outbox:       make(chan []byte, outboxSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) ID() string {
	return c.id
}

// Send queues msg for delivery. It never blocks: a full outbox yields
// registry.ErrSlowConsumer.
func (c *wsConn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.done:
		return registry.ErrClosed
	default:
	}

	select {
	case c.outbox <- msg:
		return nil
	case <-c.done:
		return registry.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return registry.ErrSlowConsumer
	}
}

// Close stops the writer and closes the WebSocket. The close handshake runs
// in the background so callers holding locks are not held up by the peer.
func (c *wsConn) Close(reason string) error {
	c.closeOnce.Do(func() {
		close(c.done)

		status := websocket.StatusNormalClosure
		if reason == reasonShutdown {
			status = websocket.StatusGoingAway
		}
		go func() {
			_ = c.ws.Close(status, reason)
		}()
	})
	return nil
}

// writeLoop drains the outbox until the connection closes or a write fails.
func (c *wsConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
		}
	}
}

// sendJSON marshals v and sends it to conn.
func sendJSON(ctx context.Context, conn registry.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return conn.Send(ctx, data)
}
