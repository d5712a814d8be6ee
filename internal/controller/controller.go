// Package controller turns inbound client actions into hub and room calls
// and answers the requester when an action is rejected.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/codebreaker-backend/internal/engine"
	"github.com/DoyleJ11/codebreaker-backend/internal/hub"
	"github.com/DoyleJ11/codebreaker-backend/internal/room"
	"github.com/DoyleJ11/codebreaker-backend/internal/types"
)

// ErrProtocol marks an inbound message that could not be decoded or names
// an unknown action.
var ErrProtocol = errors.New("malformed message")

var ErrNotInRoom = errors.New("not in a room")

const DefaultName = "Anonymous"

// Client is the per-connection session. It is only touched by the goroutine
// reading that connection.
type Client struct {
	conn     room.Conn
	playerID string
	room     *room.Room
}

func NewClient(conn room.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) PlayerID() string { return c.playerID }

// RoomCode is empty while the client is not seated anywhere.
func (c *Client) RoomCode() string {
	if c.room == nil {
		return ""
	}
	return c.room.Code()
}

type Controller struct {
	hub   *hub.Hub
	log   *zap.Logger
	newID func() string
}

type Option func(*Controller)

// WithIDs replaces the participant id generator.
func WithIDs(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

func New(h *hub.Hub, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		hub:   h,
		log:   logger.Named("controller"),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleRaw decodes one frame and dispatches it.
func (ctl *Controller) HandleRaw(ctx context.Context, c *Client, data []byte) error {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ctl.reject(c, fmt.Errorf("%w: %v", ErrProtocol, err))
	}
	return ctl.Handle(ctx, c, msg)
}

// Handle runs one inbound action for c. The returned error is the rejection,
// if any; visible rejections have already been answered on c's connection.
func (ctl *Controller) Handle(ctx context.Context, c *Client, msg types.ClientMessage) error {
	switch msg.Action {
	case types.ActionRequestPlayerID:
		ctl.identify(c, "")
		c.conn.Send(types.PlayerIDMessage(c.playerID))
		return nil

	case types.ActionCreateRoom:
		return ctl.createRoom(ctx, c, msg)

	case types.ActionJoinRoom:
		return ctl.joinRoom(ctx, c, msg)

	case types.ActionStartGame:
		return ctl.submit(ctx, c, engine.Command{Type: engine.CmdStartGame})

	case types.ActionGuess:
		return ctl.submit(ctx, c, engine.Command{Type: engine.CmdGuess, Guess: strings.TrimSpace(msg.Guess)})

	case types.ActionRetryGame:
		return ctl.submit(ctx, c, engine.Command{Type: engine.CmdRetryGame})

	default:
		return ctl.reject(c, fmt.Errorf("%w: unknown action %q", ErrProtocol, msg.Action))
	}
}

// Disconnect removes c from its room. The connection is gone, so nothing is
// sent back.
func (ctl *Controller) Disconnect(c *Client) {
	if c.room == nil {
		return
	}
	c.room.Leave(c.playerID)
	ctl.log.Debug("client disconnected", zap.String("player", c.playerID), zap.String("room", c.room.Code()))
	c.room = nil
}

// identify fixes the connection's participant id on first use. A client may
// bring its own id once; afterwards the id is stable for the connection.
func (ctl *Controller) identify(c *Client, requested string) (assigned bool) {
	if c.playerID != "" {
		return false
	}
	if requested != "" {
		c.playerID = requested
		return false
	}
	c.playerID = ctl.newID()
	return true
}

func (ctl *Controller) seat(c *Client, msg types.ClientMessage) room.Seat {
	if ctl.identify(c, strings.TrimSpace(msg.PlayerID)) {
		c.conn.Send(types.PlayerIDMessage(c.playerID))
	}
	name := strings.TrimSpace(msg.Username)
	if name == "" {
		name = DefaultName
	}
	return room.Seat{PlayerID: c.playerID, Name: name, Conn: c.conn}
}

func (ctl *Controller) createRoom(ctx context.Context, c *Client, msg types.ClientMessage) error {
	lb, err := ctl.hub.Create(ctx, ctl.seat(c, msg))
	if err != nil {
		return ctl.reject(c, err)
	}
	ctl.moveTo(c, lb)
	ctl.log.Info("room created by client", zap.String("player", c.playerID), zap.String("room", lb.Code()))
	return nil
}

func (ctl *Controller) joinRoom(ctx context.Context, c *Client, msg types.ClientMessage) error {
	code := strings.TrimSpace(msg.RoomCode)
	if c.room != nil && c.room.Code() == code {
		return ctl.reject(c, engine.ErrAlreadyJoined)
	}

	lb, err := ctl.hub.Get(ctx, code)
	if err != nil {
		return ctl.reject(c, err)
	}
	if err := lb.Join(ctx, ctl.seat(c, msg)); err != nil {
		return ctl.reject(c, err)
	}
	ctl.moveTo(c, lb)
	return nil
}

// moveTo seats c in lb, leaving any previous room only after the new seat
// is confirmed.
func (ctl *Controller) moveTo(c *Client, lb *room.Room) {
	if c.room != nil && c.room != lb {
		c.room.Leave(c.playerID)
	}
	c.room = lb
}

func (ctl *Controller) submit(ctx context.Context, c *Client, cmd engine.Command) error {
	if c.room == nil {
		return ctl.reject(c, ErrNotInRoom)
	}
	cmd.PlayerID = c.playerID

	err := c.room.Submit(ctx, cmd)
	switch {
	case err == nil:
		return nil
	case silent(err):
		ctl.log.Debug("action ignored",
			zap.String("cmd", string(cmd.Type)),
			zap.String("player", c.playerID),
			zap.String("room", c.room.Code()),
			zap.Error(err))
		return err
	case errors.Is(err, room.ErrRoomNotFound):
		c.room = nil
		return ctl.reject(c, err)
	default:
		return ctl.reject(c, err)
	}
}

// silent rule violations are dropped without a reply.
func silent(err error) bool {
	return errors.Is(err, engine.ErrWrongTurn) ||
		errors.Is(err, engine.ErrWrongPhase) ||
		errors.Is(err, engine.ErrNotAdmin) ||
		errors.Is(err, engine.ErrUnknownPlayer)
}

func (ctl *Controller) reject(c *Client, err error) error {
	if errors.Is(err, ErrProtocol) {
		ctl.log.Warn("protocol error", zap.String("player", c.playerID), zap.Error(err))
	} else {
		ctl.log.Debug("action rejected", zap.String("player", c.playerID), zap.Error(err))
	}
	c.conn.Send(types.ErrorMessage(ErrorText(err)))
	return err
}

// ErrorText is the client-facing wording for a rejection.
func ErrorText(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, engine.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, engine.ErrGameInProgress):
		return "Game already in progress"
	case errors.Is(err, engine.ErrAlreadyJoined):
		return "Already in this room"
	case errors.Is(err, engine.ErrInvalidGuess):
		return "Guess must be 4 digits"
	case errors.Is(err, ErrNotInRoom):
		return "Not in a room"
	case errors.Is(err, hub.ErrNoFreeCode):
		return "No free room code, try again"
	case errors.Is(err, ErrProtocol):
		return "Invalid message"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Server is shutting down"
	default:
		return "Internal error"
	}
}
