package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"strategy-engine/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents pushes engine events to the client over a websocket: signal
// lifecycle transitions, position opens/closes, reconciler closures, and
// evaluation outcomes.
func (s *Server) streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.Subscribe(100,
		events.EventSignalCreated,
		events.EventSignalDelivered,
		events.EventSignalFailed,
		events.EventSignalExpired,
		events.EventPositionOpened,
		events.EventPositionClosed,
		events.EventReconcileClosure,
		events.EventEvaluation,
	)
	defer unsub()

	for msg := range stream {
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Debug().Err(err).Msg("ws write error")
			return
		}
	}
}
