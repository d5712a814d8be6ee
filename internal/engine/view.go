package engine

import "slices"

type ParticipantView struct {
	ID      string        `json:"id"`
	Name    string        `json:"username"`
	Guesses []GuessRecord `json:"guesses"`
}

// View is the part of a State every client may see.
type View struct {
	Participants    []ParticipantView `json:"players"`
	Turn            int               `json:"currentTurn"`
	CurrentPlayerID string            `json:"currentPlayerId,omitempty"`
	Round           int               `json:"round"`
	MaxRounds       int               `json:"maxRounds"`
	Phase           Phase             `json:"phase"`
	Started         bool              `json:"started"`
	FinalRound      bool              `json:"finalRound"`
	GameOver        bool              `json:"gameOver"`
	WinnerID        string            `json:"winner,omitempty"`
	AdminID         string            `json:"adminId"`
	TurnDeadlineMs  int64             `json:"turnDeadline,omitempty"`
	Secret          string            `json:"code,omitempty"`
}

// Sanitize projects s into a View. The secret is only included once the
// game is finished. Guess histories are copied so the view never aliases s.
func Sanitize(s State) View {
	v := View{
		Participants: make([]ParticipantView, 0, len(s.Participants)),
		Turn:         s.Turn,
		Round:        s.Round,
		MaxRounds:    MaxRounds,
		Phase:        s.Phase,
		Started:      s.Phase != PhaseLobby,
		FinalRound:   s.Phase == PhaseFinalLap,
		GameOver:     s.Phase == PhaseFinished,
		WinnerID:     s.WinnerID,
		AdminID:      s.AdminID,
	}
	for _, p := range s.Participants {
		guesses := slices.Clone(p.Guesses)
		if guesses == nil {
			guesses = []GuessRecord{}
		}
		v.Participants = append(v.Participants, ParticipantView{ID: p.ID, Name: p.Name, Guesses: guesses})
	}
	if cur, ok := s.CurrentPlayer(); ok {
		v.CurrentPlayerID = cur.ID
	}
	if !s.TurnDeadline.IsZero() && s.InPlay() {
		v.TurnDeadlineMs = s.TurnDeadline.UnixMilli()
	}
	if s.Phase == PhaseFinished {
		v.Secret = s.Secret
	}
	return v
}
