// Package types holds the JSON frames exchanged over the websocket.
//
// Client -> Server, discriminated by "action":
//
//	requestPlayerId: {}
//	createRoom:      playerId?, username?
//	joinRoom:        roomCode, playerId?, username?
//	startGame:       {}             admin only, lobby phase
//	guess:           guess          4 digits, sender's turn
//	retryGame:       {}             admin only
//
// Server -> Client, discriminated by "type":
//
//	player_id:    playerId
//	error:        error             requester only
//	state:        roomCode, gameState
//	turn_started: turnStarted, currentTurn
//	notification: notification      join/leave text
package types

import "github.com/DoyleJ11/codebreaker-backend/internal/engine"

// Inbound actions.
const (
	ActionRequestPlayerID = "requestPlayerId"
	ActionCreateRoom      = "createRoom"
	ActionJoinRoom        = "joinRoom"
	ActionStartGame       = "startGame"
	ActionGuess           = "guess"
	ActionRetryGame       = "retryGame"
)

// Outbound message types.
const (
	MsgPlayerID     = "player_id"
	MsgError        = "error"
	MsgState        = "state"
	MsgTurnStarted  = "turn_started"
	MsgNotification = "notification"
)

type ClientMessage struct {
	Action   string `json:"action"`
	PlayerID string `json:"playerId,omitempty"`
	Username string `json:"username,omitempty"`
	RoomCode string `json:"roomCode,omitempty"`
	Guess    string `json:"guess,omitempty"`
}

type ServerMessage struct {
	Type         string       `json:"type"` // see Msg* constants
	PlayerID     string       `json:"playerId,omitempty"`
	Error        string       `json:"error,omitempty"`
	RoomCode     string       `json:"roomCode,omitempty"`
	State        *engine.View `json:"gameState,omitempty"`
	TurnStarted  bool         `json:"turnStarted,omitempty"`
	CurrentTurn  *int         `json:"currentTurn,omitempty"`
	Notification string       `json:"notification,omitempty"`
}

func PlayerIDMessage(id string) ServerMessage {
	return ServerMessage{Type: MsgPlayerID, PlayerID: id}
}

func ErrorMessage(text string) ServerMessage {
	return ServerMessage{Type: MsgError, Error: text}
}

func StateMessage(code string, v engine.View) ServerMessage {
	return ServerMessage{Type: MsgState, RoomCode: code, State: &v}
}

func TurnStartedMessage(turn int) ServerMessage {
	return ServerMessage{Type: MsgTurnStarted, TurnStarted: true, CurrentTurn: &turn}
}

func NotificationMessage(text string) ServerMessage {
	return ServerMessage{Type: MsgNotification, Notification: text}
}
