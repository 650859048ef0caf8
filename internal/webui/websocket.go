package webui

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// wsClientMessage is sent by the page to pause or resume its own updates.
type wsClientMessage struct {
	Paused bool `json:"paused"`
}

// wsUpdate is the server-sent frame. The page refetches its table fragment
// when Generation moves.
type wsUpdate struct {
	Generation uint64   `json:"generation"`
	Paused     bool     `json:"paused"`
	Loaded     bool     `json:"loaded"`
	Page       int      `json:"page"`
	NewIDs     []string `json:"new_ids,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// handleWebSocket upgrades to WebSocket and tells the page whenever the feed
// changes, plus a keepalive frame so the page knows the server is alive.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // localhost dashboard, any origin
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	notifyCh, unsubscribe := s.feed.Subscribe()
	defer unsubscribe()

	var paused bool

	clientCh := make(chan wsClientMessage, 4)
	go func() {
		defer close(clientCh)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg wsClientMessage
			if json.Unmarshal(data, &msg) == nil {
				select {
				case clientCh <- msg:
				default:
				}
			}
		}
	}()

	s.sendWSUpdate(ctx, conn)

	keepalive := time.NewTicker(s.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return

		case msg, ok := <-clientCh:
			if !ok {
				return
			}
			paused = msg.Paused
			if !paused {
				s.sendWSUpdate(ctx, conn)
			}

		case <-notifyCh:
			if paused {
				continue
			}
			s.sendWSUpdate(ctx, conn)

		case <-keepalive.C:
			if paused {
				continue
			}
			s.sendWSUpdate(ctx, conn)
		}
	}
}

func (s *Server) sendWSUpdate(ctx context.Context, conn *websocket.Conn) {
	snap := s.feed.Snapshot()
	update := wsUpdate{
		Generation: snap.Generation,
		Paused:     s.controls.Paused(),
		Loaded:     snap.Loaded,
		Page:       s.controls.Page(),
		NewIDs:     snap.NewIDs,
		Error:      snap.Err,
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("webui: failed to marshal update: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// a failed write means the socket is gone; the read loop ends the handler
	_ = conn.Write(writeCtx, websocket.MessageText, data)
}
