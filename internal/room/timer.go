package room

import (
	"time"

	"go.uber.org/zap"
)

// armTimer cancels any outstanding turn timer and schedules a fresh one for
// the current turn. Only called from the room goroutine.
func (r *Room) armTimer() {
	r.disarmTimer()

	gen := r.timerGen
	r.state.TurnDeadline = time.Now().Add(r.opts.TurnTimeout)
	r.timer = time.AfterFunc(r.opts.TurnTimeout, func() {
		r.send(TimerFired{Gen: gen})
	})
	r.log.Debug("turn timer armed", zap.Uint64("gen", gen), zap.Int("turn", r.state.Turn))

	r.publishTurnStarted()
}

// disarmTimer stops the outstanding timer and bumps the generation, so a
// fire that already reached the inbox is recognised as stale.
func (r *Room) disarmTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerGen++
}
