package syncserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/steveyegge/livedoc/internal/protocol"
)

// handleWebSocket upgrades the request and runs the connection until it
// closes: register and send the initial content, then process inbound
// messages in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, reasonShutdown, http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.AllowedOrigins,
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	ws.SetReadLimit(s.config.MaxMessageBytes)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	conn := newWSConn(uuid.NewString(), ws, s.config.OutboxSize, s.config.SendTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := conn.writeLoop(ctx); err != nil && ctx.Err() == nil {
			s.logger.Printf("Client %s: %v", conn.ID(), err)
			s.engine.Leave(conn)
			_ = conn.Close("write failed")
		}
	}()

	if err := s.engine.Join(ctx, conn); err != nil {
		s.logger.Printf("Client %s: %v", conn.ID(), err)
		_ = conn.Close("initial sync failed")
		return
	}
	defer func() {
		s.engine.Leave(conn)
		_ = conn.Close("")
	}()

	s.readLoop(ctx, conn)
}

// readLoop hands each inbound message to the engine until the connection
// fails or closes.
func (s *Server) readLoop(ctx context.Context, conn *wsConn) {
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					s.logger.Printf("Client %s read error: %v", conn.ID(), err)
				}
			}
			return
		}
		s.engine.Handle(ctx, conn, data)
	}
}

// handleLoad returns a snapshot of the current document
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, protocol.ContentMessage{Content: s.engine.Content()})
}

// handleVerify checks a password without changing anything
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req protocol.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Verify(req.Password))
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "ok",
		"clients":             s.engine.ClientCount(),
		"revision":            s.engine.Revision(),
		"password_configured": s.engine.Configured(),
		"last_save_ok":        s.engine.LastSaveOK(),
	})
}

// handleRoot serves the configured index page, or basic server information
// when there is none
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.config.IndexFile != "" {
		if info, err := os.Stat(s.config.IndexFile); err == nil && !info.IsDir() {
			http.ServeFile(w, r, s.config.IndexFile)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>livedoc</title>
</head>
<body>
    <h1>livedoc sync server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Snapshot: <a href="/load">/load</a></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
