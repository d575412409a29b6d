package api

import (
	"net/http"

	"github.com/thrasher-corp/candlereplay/internal/broadcaster"
	"github.com/thrasher-corp/candlereplay/internal/replaylog"
)

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		replaylog.Warnf(replaylog.APISys, "websocket upgrade failed: %v", err)
		return
	}

	conn := broadcaster.NewConn(ws)
	s.session.AttachConn(conn)

	state := s.session.Debug()
	if err := conn.Send(broadcaster.Message{
		Kind: broadcaster.KindInitialChartData,
		Payload: map[string]interface{}{
			"timeframe":   state.Timeframe,
			"cursor_time": state.CursorTime,
			"playing":     state.Playing,
		},
	}); err != nil {
		replaylog.Warnf(replaylog.APISys, "sending initial_chart_data failed: %v", err)
	}

	// The duplex channel is otherwise output-only from the server's
	// perspective; the one inbound message the client ever sends is the
	// recreation_ack that unblocks a DESTRUCT phase waiting on it.
	go func() {
		for {
			var msg broadcaster.Message
			if err := ws.ReadJSON(&msg); err != nil {
				conn.Close()
				return
			}
			if msg.Kind != broadcaster.KindRecreationAck {
				continue
			}
			txID, _ := msg.Payload.(map[string]interface{})["transaction_id"].(string)
			if txID != "" {
				s.session.AckRecreation(txID)
			}
		}
	}()
}
