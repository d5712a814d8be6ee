package room

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/codebreaker-backend/internal/archive"
	"github.com/DoyleJ11/codebreaker-backend/internal/engine"
	"github.com/DoyleJ11/codebreaker-backend/internal/types"
)

var ErrRoomNotFound = errors.New("room not found")

// Conn is the outbound half of a participant's connection. Send must not
// block; it reports false when the message could not be queued.
type Conn interface {
	Send(msg types.ServerMessage) bool
}

// Seat is a participant arriving with its connection.
type Seat struct {
	PlayerID string
	Name     string
	Conn     Conn
}

type Msg interface{ isRoomMsg() }

type Join struct {
	Seat  Seat
	Reply chan error
}

func (Join) isRoomMsg() {}

type Leave struct{ PlayerID string }

func (Leave) isRoomMsg() {}

type FromClient struct {
	Cmd   engine.Command
	Reply chan error // optional
}

func (FromClient) isRoomMsg() {}

// TimerFired is posted by the turn timer. Gen must match the room's current
// timer generation or the message is dropped.
type TimerFired struct{ Gen uint64 }

func (TimerFired) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type View struct {
	Code       string
	Version    int
	NumClients int
	State      engine.State
	TimerArmed bool
	TimerGen   uint64
}

type Options struct {
	Logger      *zap.Logger
	TurnTimeout time.Duration
	Recorder    archive.Recorder
	// Secrets samples a new secret code. Defaults to engine.NewSecret over a
	// room-local rng.
	Secrets func() string
	// OnEmpty runs on the room goroutine after the last participant left
	// and the room has shut down.
	OnEmpty func(code string, r *Room)
}

type Room struct {
	code     string
	inbox    chan Msg
	state    engine.State
	version  int
	clients  map[string]Conn
	timer    *time.Timer
	timerGen uint64
	opts     Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func NewRoom(parent context.Context, code string, admin Seat, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = engine.TurnTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = archive.Nop{}
	}
	if opts.Secrets == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		opts.Secrets = func() string { return engine.NewSecret(rng) }
	}

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(opts.Secrets(), admin.PlayerID, admin.Name),
		clients: map[string]Conn{admin.PlayerID: admin.Conn},
		opts:    opts,
		log:     opts.Logger.With(zap.String("room", code)),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.stopped)

	r.log.Info("room opened", zap.String("admin", r.state.AdminID))
	r.publishState()

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			// Messages still queued when the room is cancelled are dropped,
			// a pending TimerFired included.
			if r.ctx.Err() != nil {
				r.shutdown()
				return
			}
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.handleJoin(msg.Seat)

			case Leave:
				if r.handleLeave(msg.PlayerID) {
					return
				}

			case FromClient:
				err := r.handleCommand(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case TimerFired:
				r.handleTimer(msg.Gen)

			case GetState:
				msg.Reply <- View{
					Code:       r.code,
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state.Clone(),
					TimerArmed: r.timer != nil,
					TimerGen:   r.timerGen,
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) apply(cmd engine.Command) ([]engine.Event, error) {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return nil, err
	}
	r.state = next
	r.version++
	return events, nil
}

func (r *Room) handleJoin(seat Seat) error {
	events, err := r.apply(engine.Command{Type: engine.CmdJoin, PlayerID: seat.PlayerID, Name: seat.Name})
	if err != nil {
		r.log.Debug("join rejected", zap.String("player", seat.PlayerID), zap.Error(err))
		return err
	}
	r.clients[seat.PlayerID] = seat.Conn
	r.log.Info("player joined", zap.String("player", seat.PlayerID), zap.Int("players", len(r.state.Participants)))

	r.publishNotification(seat.Name + " joined the game")
	r.settle(events)
	return nil
}

// handleLeave reports whether the room shut down because it emptied.
func (r *Room) handleLeave(playerID string) bool {
	events, err := r.apply(engine.Command{Type: engine.CmdLeave, PlayerID: playerID})
	if err != nil {
		return false
	}
	delete(r.clients, playerID)

	if engine.ContainsEvent(events, engine.EvtRoomEmptied) {
		r.log.Info("room empty, closing")
		r.shutdown()
		if r.opts.OnEmpty != nil {
			r.opts.OnEmpty(r.code, r)
		}
		return true
	}

	for _, e := range events {
		if e.Type == engine.EvtPlayerLeft {
			r.log.Info("player left", zap.String("player", e.PlayerID), zap.Int("players", len(r.state.Participants)))
			r.publishNotification(e.Name + " left the game")
		}
	}
	r.settle(events)
	return false
}

func (r *Room) handleCommand(cmd engine.Command) error {
	if cmd.Type == engine.CmdRetryGame {
		cmd.Secret = r.opts.Secrets()
	}
	events, err := r.apply(cmd)
	if err != nil {
		r.log.Debug("command rejected", zap.String("cmd", string(cmd.Type)), zap.String("player", cmd.PlayerID), zap.Error(err))
		return err
	}
	r.settle(events)
	return nil
}

func (r *Room) handleTimer(gen uint64) {
	if gen != r.timerGen || r.timer == nil {
		r.log.Debug("stale timer dropped", zap.Uint64("gen", gen), zap.Uint64("current", r.timerGen))
		return
	}
	r.timer = nil

	events, err := r.apply(engine.Command{Type: engine.CmdTimeoutAdvance})
	if err != nil {
		return
	}
	r.log.Debug("turn timed out", zap.Int("turn", r.state.Turn), zap.Int("round", r.state.Round))
	r.settle(events)
}

// settle runs the timer and broadcast side effects of an applied command.
func (r *Room) settle(events []engine.Event) {
	switch {
	case !r.state.InPlay():
		r.disarmTimer()
	case engine.ContainsEvent(events, engine.EvtGameStarted),
		engine.ContainsEvent(events, engine.EvtTurnAdvanced),
		engine.ContainsEvent(events, engine.EvtPlayerLeft):
		r.armTimer()
	}

	if engine.ContainsEvent(events, engine.EvtGameCompleted) {
		r.record()
	}
	r.publishState()
}

func (r *Room) record() {
	res := archive.Result{
		RoomCode:   r.code,
		Secret:     r.state.Secret,
		WinnerID:   r.state.WinnerID,
		Rounds:     min(r.state.Round, engine.MaxRounds),
		FinishedAt: time.Now(),
	}
	for _, p := range r.state.Participants {
		res.Players = append(res.Players, p.ID)
	}
	r.log.Info("game finished", zap.String("winner", res.WinnerID), zap.Int("rounds", res.Rounds))

	rec, log := r.opts.Recorder, r.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.Record(ctx, res); err != nil {
			log.Warn("record result", zap.Error(err))
		}
	}()
}

func (r *Room) shutdown() {
	r.disarmTimer()
	clear(r.clients)
	r.cancel()
}

func (r *Room) send(m Msg) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) await(ctx context.Context, m Msg, reply <-chan error) error {
	if !r.send(m) {
		return ErrRoomNotFound
	}
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomNotFound
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) Code() string { return r.code }

// Done is closed once the room's loop has exited and its timer is stopped.
func (r *Room) Done() <-chan struct{} { return r.stopped }

// Inbox accepts raw room messages, e.g. a TimerFired replayed by tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Join(ctx context.Context, seat Seat) error {
	reply := make(chan error, 1)
	return r.await(ctx, Join{Seat: seat, Reply: reply}, reply)
}

func (r *Room) Submit(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	return r.await(ctx, FromClient{Cmd: cmd, Reply: reply}, reply)
}

func (r *Room) Leave(playerID string) {
	r.send(Leave{PlayerID: playerID})
}

func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !r.send(GetState{Reply: reply}) {
		return View{}, ErrRoomNotFound
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		return View{}, ErrRoomNotFound
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Shutdown stops the room and its timer. No queued message is handled after
// it returns, though the loop may still be finishing the current one; wait on
// Done for that. Safe to call more than once.
func (r *Room) Shutdown() {
	r.cancel()
}
