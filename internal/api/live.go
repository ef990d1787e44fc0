package api

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/tutu/internal/domain"
)

// liveHub fans ProcessResults out to any open /live websocket connections
// for the same user. A decision engine's whole point is per-event
// reactivity, so streaming results as they're produced is the natural
// transport alongside the request/response /api/events endpoint.
type liveHub struct {
	mu    sync.Mutex
	conns map[string][]*websocket.Conn
}

func newLiveHub() *liveHub {
	return &liveHub{conns: make(map[string][]*websocket.Conn)}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLive upgrades the connection and streams every ProcessResult
// produced for this user from here on. It does not replay history.
// GET /api/users/{userID}/live
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.live.add(userID, conn)
	defer s.live.remove(userID, conn)

	// Block reading (and discarding) control frames until the client
	// disconnects; that's the signal to unregister.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *liveHub) add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = append(h.conns[userID], conn)
}

func (h *liveHub) remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[userID]
	for i, c := range conns {
		if c == conn {
			h.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	conn.Close()
}

func (h *liveHub) broadcast(userID string, result *domain.ProcessResult) {
	h.mu.Lock()
	conns := append([]*websocket.Conn(nil), h.conns[userID]...)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.WriteJSON(result)
	}
}
