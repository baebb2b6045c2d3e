package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tidebell/tidebell/session"
)

const wsBufferSize = 1024

// HandleWebSocket upgrades GET /ws?user=<id> and registers the connection as
// the user's session on this instance. Authentication happens upstream; the
// id is taken as presented.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed",
			"user_id", userID,
			"error", err)
		return
	}

	client := session.NewClient(conn, userID, s.logger)
	client.OnClose = s.sessions.Unregister
	s.sessions.Register(client)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.WritePump(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		client.ReadPump()
	}()

	s.logger.Infow("WebSocket connected", "user_id", userID)
}
