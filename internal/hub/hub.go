package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/codebreaker-backend/internal/archive"
	"github.com/DoyleJ11/codebreaker-backend/internal/room"
)

var ErrNoFreeCode = errors.New("no free room code")

const defaultCodeAttempts = 32

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Admin room.Seat
	Reply chan CreateResult
}

type CreateResult struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type RemoveRoom struct {
	Code  string
	Reply chan *room.Room // optional
}

// roomEmptied is sent by a room that closed itself. Room pins the instance
// so a newer room under a reused code is never dropped.
type roomEmptied struct {
	Code string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (roomEmptied) isHubMsg() {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Logger       *zap.Logger
	TurnTimeout  time.Duration
	Recorder     archive.Recorder
	Secrets      func() string
	GenerateCode func() (string, error)
	CodeAttempts int
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.GenerateCode == nil {
		opts.GenerateCode = GenerateCode
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = defaultCodeAttempts
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				lb, err := h.create(msg.Admin)
				msg.Reply <- CreateResult{Room: lb, Err: err}

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case RemoveRoom:
				lb := h.rooms[msg.Code]
				if lb != nil {
					lb.Shutdown()
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code))
				}
				if msg.Reply != nil {
					msg.Reply <- lb
				}

			case roomEmptied:
				if h.rooms[msg.Code] == msg.Room {
					delete(h.rooms, msg.Code)
					h.log.Info("room deleted, no players left", zap.String("room", msg.Code))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(admin room.Seat) (*room.Room, error) {
	for attempt := 0; attempt < h.opts.CodeAttempts; attempt++ {
		code, err := h.opts.GenerateCode()
		if err != nil {
			return nil, err
		}
		if _, taken := h.rooms[code]; taken {
			h.log.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}

		lb := room.NewRoom(h.ctx, code, admin, room.Options{
			Logger:      h.opts.Logger,
			TurnTimeout: h.opts.TurnTimeout,
			Recorder:    h.opts.Recorder,
			Secrets:     h.opts.Secrets,
			OnEmpty:     h.onEmpty,
		})
		h.rooms[code] = lb
		h.log.Info("room created", zap.String("room", code), zap.String("admin", admin.PlayerID))
		return lb, nil
	}
	return nil, ErrNoFreeCode
}

// onEmpty runs on the emptied room's goroutine.
func (h *Hub) onEmpty(code string, lb *room.Room) {
	select {
	case h.inbox <- roomEmptied{Code: code, Room: lb}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.rooms {
		lb.Shutdown()
	}
	clear(h.rooms)
	h.cancel()
}

func (h *Hub) send(m HubMsg) bool {
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Create opens a room with admin as its first participant.
func (h *Hub) Create(ctx context.Context, admin room.Seat) (*room.Room, error) {
	reply := make(chan CreateResult, 1)
	if !h.send(CreateRoom{Admin: admin, Reply: reply}) {
		return nil, context.Canceled
	}
	select {
	case res := <-reply:
		return res.Room, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
}

func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if !h.send(GetRoom{Code: code, Reply: reply}) {
		return nil, room.ErrRoomNotFound
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, room.ErrRoomNotFound
		}
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, room.ErrRoomNotFound
	}
}

// Remove shuts the room down, timer included, and forgets its code. It
// returns once the room's loop has exited.
func (h *Hub) Remove(ctx context.Context, code string) error {
	reply := make(chan *room.Room, 1)
	if !h.send(RemoveRoom{Code: code, Reply: reply}) {
		return room.ErrRoomNotFound
	}

	var lb *room.Room
	select {
	case lb = <-reply:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return room.ErrRoomNotFound
	}
	if lb == nil {
		return room.ErrRoomNotFound
	}

	select {
	case <-lb.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if !h.send(CountRooms{Reply: reply}) {
		return 0, context.Canceled
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-h.ctx.Done():
		return 0, context.Canceled
	}
}

func (h *Hub) Shutdown() {
	h.send(ShutdownHub{})
}

// GenerateCode draws a 4-digit room code, 1000-9999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(1000+n.Int64(), 10), nil
}
