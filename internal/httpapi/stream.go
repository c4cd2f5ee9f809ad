package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starnet/starwatch/internal/state"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamMessage is one frame on /api/v1/stream.
type StreamMessage struct {
	Type      string          `json:"type"` // "snapshot"
	Data      *state.Snapshot `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleStream sends the current snapshot, then every newer version. A slow
// client only ever gets the latest snapshot; intermediate versions are
// dropped rather than queued.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := make(chan state.Snapshot, 1)
	unsubscribe := s.dash.Subscribe(func(snap state.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("stream client connected")
	defer s.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("stream client disconnected")

	current := s.dash.CurrentSnapshot()
	if err := writeSnapshot(conn, current); err != nil {
		return
	}
	sent := current.Version

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			return
		case snap := <-updates:
			if snap.Version <= sent {
				continue
			}
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
			sent = snap.Version
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap state.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(StreamMessage{Type: "snapshot", Data: &snap, Timestamp: time.Now().UTC()})
}
