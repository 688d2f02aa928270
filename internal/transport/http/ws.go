package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"mathquest-service/internal/app"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// serveProgressWS streams XP/streak updates for one user: a snapshot on
// connect, then one progress event per accepted submission.
func (h *Handler) serveProgressWS(w http.ResponseWriter, r *http.Request) {
	userID := h.demoUserID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "userId must be an integer", http.StatusBadRequest)
			return
		}
		userID = parsed
	}

	user, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(userID)
	defer cancel()

	snapshot := app.ProgressUpdate{
		UserID:        user.ID,
		TotalXP:       user.TotalXP,
		CurrentStreak: user.CurrentStreak,
		BestStreak:    user.BestStreak,
	}
	if err := conn.WriteJSON(outboundMessage[app.ProgressUpdate]{Type: "snapshot", Payload: snapshot}); err != nil {
		return
	}

	// Reader goroutine only detects disconnects; clients do not send data.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[app.ProgressUpdate]{Type: "progress", Payload: update}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
