package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// The desktop shell connects from a file:// or app:// origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHandler upgrades to a websocket and forwards change events. The same
// signals flow over SSE; websocket exists for clients that already hold a
// socket to the shell.
func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("api: websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		client := make(chan SSEEvent, 4)
		s.sseHub.register <- client
		defer func() { s.sseHub.unregister <- client }()

		// Drain reads so close frames and pings are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					conn.Close()
					return
				}
			}
		}()

		for event := range client {
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
