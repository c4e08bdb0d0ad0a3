package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/docsplit/internal/batch"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The status surface is meant for local operator UIs.
		return true
	},
}

// statusPollInterval bounds how often snapshots are compared and pushed.
const statusPollInterval = 250 * time.Millisecond

// WebSocketStatusMessage is one pushed job update.
type WebSocketStatusMessage struct {
	Type string       `json:"type"` // "status" or "error"
	Job  batch.Status `json:"job,omitempty"`
	Err  string       `json:"error,omitempty"`
}

// jobWebSocketHandler streams status snapshots for one job until it
// reaches a terminal state or the client disconnects.
func (s *Server) jobWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.runner.Job(id); err != nil {
		s.writeJobError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "job", id, "remote_addr", r.RemoteAddr)

	// Reader goroutine: drain control frames and detect disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	var last batch.Status
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			status, err := s.runner.Job(id)
			if err != nil {
				s.sendStatusMessage(conn, WebSocketStatusMessage{Type: "error", Err: err.Error()})
				return
			}
			if reflect.DeepEqual(status, last) {
				continue
			}
			last = status
			s.sendStatusMessage(conn, WebSocketStatusMessage{Type: "status", Job: status})
			if status.State.Terminal() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
		}
	}
}

func (s *Server) sendStatusMessage(conn *websocket.Conn, msg WebSocketStatusMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
