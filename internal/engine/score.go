package engine

// Score is the result of one guess. Exact+Present+Miss always equals the
// code length.
type Score struct {
	Exact   int `json:"exact"`
	Present int `json:"present"`
	Miss    int `json:"miss"`
}

func (sc Score) Solved() bool { return sc.Exact == CodeLength }

// ValidGuess reports whether g is exactly CodeLength ASCII digits. Repeated
// digits are allowed.
func ValidGuess(g string) bool {
	if len(g) != CodeLength {
		return false
	}
	for i := 0; i < len(g); i++ {
		if g[i] < '0' || g[i] > '9' {
			return false
		}
	}
	return true
}

// Evaluate scores guess against secret. Both must pass ValidGuess; callers
// reject anything else before getting here.
//
// Pass 1 consumes exact positions. Pass 2 matches each remaining guess digit
// against the leftmost unconsumed secret digit of the same value, so no
// secret digit is counted twice.
func Evaluate(guess, secret string) Score {
	var sc Score
	var used [CodeLength]bool
	var exact [CodeLength]bool

	for i := 0; i < CodeLength; i++ {
		if guess[i] == secret[i] {
			sc.Exact++
			used[i] = true
			exact[i] = true
		}
	}

	for i := 0; i < CodeLength; i++ {
		if exact[i] {
			continue
		}
		found := false
		for j := 0; j < CodeLength; j++ {
			if !used[j] && secret[j] == guess[i] {
				used[j] = true
				found = true
				break
			}
		}
		if found {
			sc.Present++
		} else {
			sc.Miss++
		}
	}
	return sc
}
