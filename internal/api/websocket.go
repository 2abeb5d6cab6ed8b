package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// pongWait is the longest the server waits for any client traffic
	// before dropping the connection.
	pongWait = 30 * time.Second
	// writeWait bounds control-frame writes back to the client.
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWs upgrades the connection and subscribes it to the caller's own
// department, taken from the token rather than any client-supplied field.
func (h *Handler) serveWs(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		respondError(w, http.StatusUnauthorized, "token is required")
		return
	}
	claims, err := h.parseToken(tokenString)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	dept := claims.Department

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("failed to upgrade connection: %v", err)
		return
	}

	h.hub.Subscribe(dept, conn)
	defer func() {
		h.hub.Unsubscribe(dept, conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("unexpected close for %s: %v", dept, err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
