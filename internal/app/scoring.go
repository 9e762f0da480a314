package app

import (
	"math"
	"time"
)

// DefaultBonusFactor scales the time bonus relative to the positive mark.
const DefaultBonusFactor = 1.0

// Score computes the score delta for a single answer. It is pure and total:
// defined for every input combination, including zero time limits and zero
// marks, and deterministic for test reproducibility.
//
// A correct answer earns positiveMark plus a time bonus of
// round(positiveMark * (1 - elapsed/timeLimit) * bonusFactor), floored at
// zero. An incorrect answer, or no answer by the deadline, earns
// -negativeMark.
func Score(correct bool, elapsed, timeLimit time.Duration, positiveMark, negativeMark int, bonusFactor float64) int {
	if !correct {
		return -negativeMark
	}
	return positiveMark + timeBonus(elapsed, timeLimit, positiveMark, bonusFactor)
}

func timeBonus(elapsed, timeLimit time.Duration, positiveMark int, bonusFactor float64) int {
	if timeLimit <= 0 {
		return 0
	}
	frac := 1 - float64(elapsed)/float64(timeLimit)
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	bonus := int(math.Round(float64(positiveMark) * frac * bonusFactor))
	if bonus < 0 {
		return 0
	}
	return bonus
}
