package raft

import (
	"math/rand"
	"time"
)

// randomDuration samples uniformly from [lo, hi]. Used for the randomized
// election timeout; per spec.md §9 all timing is derived from one
// monotonic clock (time.Now/time.Since), never wall-clock subtraction and
// never just a duration's microseconds field.
func randomDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
