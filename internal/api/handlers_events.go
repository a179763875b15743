package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventsRecent serves GET /events/recent and GET /events/live, both
// backed by the same append-only event store; live feed clients use it once
// on connect before switching to the WebSocket stream.
func (s *Server) handleEventsRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)

	events, err := s.events.ListRecent(r.Context(), nil, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": events})
}

const wsWriteTimeout = 10 * time.Second

// handleEventsWebSocket serves GET /events/ws/live, streaming newline-
// delimited LiveEvent frames for every broadcast event after connect.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub, unsubscribe := s.broadcaster.Subscribe()
	defer unsubscribe()

	for event := range sub {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}
