package engine

import "math/rand"

// NewSecret samples CodeLength distinct digits uniformly, without replacement.
func NewSecret(rng *rand.Rand) string {
	digits := rng.Perm(10)[:CodeLength]
	b := make([]byte, CodeLength)
	for i, d := range digits {
		b[i] = byte('0' + d)
	}
	return string(b)
}
