package main

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 🔭 AMPC 轮次进度调试流
// =============================================================================

// handleAMPCWatch upgrades the request to a WebSocket connection and
// streams every ampc.RoundEvent published on s.ampcHub as JSON text
// frames until the client disconnects or the server shuts down.
//
// Mirrors the teacher's agent/streaming WebSocketStreamConnection
// adapter: one write at a time, ctx-scoped read/write, normal-closure
// on a clean exit.
func (s *Server) handleAMPCWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("ampc watch: accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	sub, cancel := s.ampcHub.Subscribe()
	defer cancel()

	for {
		ev, err := sub.Receive(ctx)
		if err != nil {
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		}

		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("ampc watch: marshal event failed", zap.Error(err))
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			s.logger.Debug("ampc watch: write failed", zap.Error(err))
			return
		}
	}
}
