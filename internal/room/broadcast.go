package room

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/codebreaker-backend/internal/engine"
	"github.com/DoyleJ11/codebreaker-backend/internal/types"
)

func (r *Room) publishState() {
	r.publish(types.StateMessage(r.code, engine.Sanitize(r.state)))
}

func (r *Room) publishNotification(text string) {
	r.publish(types.NotificationMessage(text))
}

func (r *Room) publishTurnStarted() {
	r.publish(types.TurnStartedMessage(r.state.Turn))
}

// publish delivers msg to every participant in turn order. A connection that
// is closed or backed up is skipped; disconnects arrive separately as Leave.
func (r *Room) publish(msg types.ServerMessage) int {
	sent := 0
	for _, p := range r.state.Participants {
		conn := r.clients[p.ID]
		if conn == nil {
			continue
		}
		if !conn.Send(msg) {
			r.log.Debug("skipped undeliverable message", zap.String("player", p.ID), zap.String("type", msg.Type))
			continue
		}
		sent++
	}
	return sent
}
