package utils

import "math/rand/v2"

// Random is the source of uniform draws used by the games and XP rolls.
type Random interface {
	IntN(n int) int
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int { return rand.IntN(n) }

// DefaultRandom is safe for concurrent use.
var DefaultRandom Random = globalRandom{}

// Sample picks n distinct elements from pool. The pool is not modified.
func Sample(r Random, pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return nil
	}
	picked := append([]string(nil), pool...)
	for i := 0; i < n; i++ {
		j := i + r.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:n]
}
