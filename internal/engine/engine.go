package engine

import (
	"errors"
	"slices"
	"time"
)

var ErrRoomFull = errors.New("room is full")
var ErrGameInProgress = errors.New("game already in progress")
var ErrAlreadyJoined = errors.New("player already in room")
var ErrWrongTurn = errors.New("not your turn")
var ErrWrongPhase = errors.New("action not allowed in this phase")
var ErrNotAdmin = errors.New("only the room admin can do that")
var ErrUnknownPlayer = errors.New("player not in room")
var ErrInvalidGuess = errors.New("guess must be 4 digits")
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	MaxRounds       = 10
	MaxParticipants = 4
	CodeLength      = 4
	TurnTimeout     = 20 * time.Second
)

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseActive   Phase = "active"
	PhaseFinalLap Phase = "final_lap"
	PhaseFinished Phase = "finished"
)

type GuessRecord struct {
	Guess string `json:"guess"`
	Score Score  `json:"result"`
}

type Participant struct {
	ID      string
	Name    string
	Guesses []GuessRecord
}

// State is one room's game session. Connections and timers live with the
// room actor, never here.
type State struct {
	Secret       string
	Participants []Participant
	Turn         int
	Round        int
	Phase        Phase
	WinnerID     string
	AdminID      string
	TurnDeadline time.Time
	// FinalLapOwed holds the ids still owed a turn after a winning guess.
	FinalLapOwed []string
}

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdLeave          CommandType = "Leave"
	CmdStartGame      CommandType = "StartGame"
	CmdGuess          CommandType = "Guess"
	CmdTimeoutAdvance CommandType = "TimeoutAdvance"
	CmdRetryGame      CommandType = "RetryGame"
)

/*
	CmdJoin           -> EvtPlayerJoined
	CmdLeave          -> EvtPlayerLeft [-> EvtAdminChanged] [-> EvtGameCompleted] or EvtRoomEmptied
	CmdStartGame      -> EvtGameStarted
	CmdGuess          -> EvtGuessScored [-> EvtWinnerFound] -> EvtTurnAdvanced [-> EvtRoundAdvanced] [-> EvtGameCompleted]
	CmdTimeoutAdvance -> EvtTurnAdvanced [-> EvtRoundAdvanced] [-> EvtGameCompleted]
	CmdRetryGame      -> EvtGameReset
*/

type Command struct {
	Type     CommandType
	PlayerID string
	Name     string
	Guess    string
	// Secret is the freshly sampled code carried by CmdRetryGame.
	Secret string
}

type EventType string

const (
	EvtPlayerJoined  EventType = "PlayerJoined"
	EvtPlayerLeft    EventType = "PlayerLeft"
	EvtAdminChanged  EventType = "AdminChanged"
	EvtRoomEmptied   EventType = "RoomEmptied"
	EvtGameStarted   EventType = "GameStarted"
	EvtGuessScored   EventType = "GuessScored"
	EvtWinnerFound   EventType = "WinnerFound"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtRoundAdvanced EventType = "RoundAdvanced"
	EvtGameCompleted EventType = "GameCompleted"
	EvtGameReset     EventType = "GameReset"
)

type Event struct {
	Type     EventType
	PlayerID string
	Name     string
	Guess    string
	Score    Score
}

// Apply validates cmd against s and returns the resulting events and state.
// s is never modified; on error the returned state is s itself.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		if len(s.Participants) >= MaxParticipants {
			return nil, s, ErrRoomFull
		}
		if s.Phase != PhaseLobby {
			return nil, s, ErrGameInProgress
		}
		if s.indexOf(cmd.PlayerID) >= 0 {
			return nil, s, ErrAlreadyJoined
		}

		newState := s.Clone()
		newState.Participants = append(newState.Participants, Participant{ID: cmd.PlayerID, Name: cmd.Name})
		return []Event{{Type: EvtPlayerJoined, PlayerID: cmd.PlayerID, Name: cmd.Name}}, newState, nil

	case CmdLeave:
		idx := s.indexOf(cmd.PlayerID)
		if idx < 0 {
			return nil, s, ErrUnknownPlayer
		}
		newState := s.Clone()
		return newState.removeAt(idx), newState, nil

	case CmdStartGame:
		if s.AdminID != cmd.PlayerID {
			return nil, s, ErrNotAdmin
		}
		if s.Phase != PhaseLobby || len(s.Participants) == 0 {
			return nil, s, ErrWrongPhase
		}

		newState := s.Clone()
		newState.Turn = 0
		newState.Round = 1
		newState.Phase = PhaseActive
		return []Event{{Type: EvtGameStarted, PlayerID: cmd.PlayerID}}, newState, nil

	case CmdGuess:
		if !s.InPlay() {
			return nil, s, ErrWrongPhase
		}
		idx := s.indexOf(cmd.PlayerID)
		if idx < 0 {
			return nil, s, ErrUnknownPlayer
		}
		if idx != s.Turn {
			return nil, s, ErrWrongTurn
		}
		if !ValidGuess(cmd.Guess) {
			return nil, s, ErrInvalidGuess
		}

		score := Evaluate(cmd.Guess, s.Secret)
		newState := s.Clone()
		p := &newState.Participants[idx]
		p.Guesses = append(p.Guesses, GuessRecord{Guess: cmd.Guess, Score: score})

		events := []Event{{Type: EvtGuessScored, PlayerID: cmd.PlayerID, Guess: cmd.Guess, Score: score}}

		if score.Solved() && newState.Phase == PhaseActive {
			newState.WinnerID = cmd.PlayerID
			newState.Phase = PhaseFinalLap
			newState.FinalLapOwed = nil
			for _, other := range newState.Participants {
				if other.ID != cmd.PlayerID {
					newState.FinalLapOwed = append(newState.FinalLapOwed, other.ID)
				}
			}
			events = append(events, Event{Type: EvtWinnerFound, PlayerID: cmd.PlayerID})
		}

		events = append(events, newState.advanceTurn()...)
		return events, newState, nil

	case CmdTimeoutAdvance:
		if !s.InPlay() {
			return nil, s, ErrWrongPhase
		}
		newState := s.Clone()
		return newState.advanceTurn(), newState, nil

	case CmdRetryGame:
		if s.AdminID != cmd.PlayerID {
			return nil, s, ErrNotAdmin
		}

		newState := s.Clone()
		newState.Secret = cmd.Secret
		newState.Turn = 0
		newState.Round = 1
		newState.WinnerID = ""
		newState.FinalLapOwed = nil
		newState.TurnDeadline = time.Time{}
		newState.Phase = PhaseLobby
		for i := range newState.Participants {
			newState.Participants[i].Guesses = nil
		}
		return []Event{{Type: EvtGameReset, PlayerID: cmd.PlayerID}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// advanceTurn is the single turn-advance rule shared by guesses and timeouts.
func (s *State) advanceTurn() []Event {
	ended := s.Participants[s.Turn].ID
	s.Turn = (s.Turn + 1) % len(s.Participants)
	events := []Event{{Type: EvtTurnAdvanced, PlayerID: s.Participants[s.Turn].ID}}

	if s.Phase == PhaseFinalLap {
		s.FinalLapOwed = slices.DeleteFunc(s.FinalLapOwed, func(id string) bool { return id == ended })
		if len(s.FinalLapOwed) == 0 {
			s.Phase = PhaseFinished
			events = append(events, Event{Type: EvtGameCompleted, PlayerID: s.WinnerID})
		}
		return events
	}

	if s.Turn == 0 {
		s.Round++
		events = append(events, Event{Type: EvtRoundAdvanced})
		if s.Round > MaxRounds {
			s.Phase = PhaseFinished
			events = append(events, Event{Type: EvtGameCompleted})
		}
	}
	return events
}

func (s *State) removeAt(idx int) []Event {
	gone := s.Participants[idx]
	s.Participants = slices.Delete(s.Participants, idx, idx+1)
	events := []Event{{Type: EvtPlayerLeft, PlayerID: gone.ID, Name: gone.Name}}

	if len(s.Participants) == 0 {
		s.Turn = 0
		return append(events, Event{Type: EvtRoomEmptied})
	}

	if s.Turn >= len(s.Participants) {
		s.Turn = 0
	}

	if s.AdminID == gone.ID {
		s.AdminID = s.Participants[0].ID
		events = append(events, Event{Type: EvtAdminChanged, PlayerID: s.AdminID})
	}

	if s.Phase == PhaseFinalLap {
		s.FinalLapOwed = slices.DeleteFunc(s.FinalLapOwed, func(id string) bool { return id == gone.ID })
		if len(s.FinalLapOwed) == 0 {
			s.Phase = PhaseFinished
			events = append(events, Event{Type: EvtGameCompleted, PlayerID: s.WinnerID})
		}
	}
	return events
}
