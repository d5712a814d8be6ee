package engine

import "slices"

// NewState opens a lobby with the admin as its sole participant.
func NewState(secret, adminID, adminName string) State {
	return State{
		Secret:       secret,
		Participants: []Participant{{ID: adminID, Name: adminName}},
		Turn:         0,
		Round:        1,
		Phase:        PhaseLobby,
		AdminID:      adminID,
	}
}

// Clone deep-copies the participant list and guess histories.
func (s State) Clone() State {
	c := s
	c.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		c.Participants[i] = Participant{ID: p.ID, Name: p.Name, Guesses: slices.Clone(p.Guesses)}
	}
	c.FinalLapOwed = slices.Clone(s.FinalLapOwed)
	return c
}

func (s State) InPlay() bool {
	return s.Phase == PhaseActive || s.Phase == PhaseFinalLap
}

// CurrentPlayer returns the participant whose guess is expected.
func (s State) CurrentPlayer() (Participant, bool) {
	if s.Turn < 0 || s.Turn >= len(s.Participants) {
		return Participant{}, false
	}
	return s.Participants[s.Turn], true
}

func (s State) Participant(id string) (Participant, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return Participant{}, false
	}
	return s.Participants[idx], true
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Participants, func(p Participant) bool { return p.ID == id })
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
