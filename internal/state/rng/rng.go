// Package rng provides the deterministic random stream woven into story
// history.
//
// The seed is ordinary snapshot data, never transient runtime state: the
// active seed at any point is whatever the nearest snapshot at-or-before
// the cursor recorded. That is what makes replay-after-rewind and
// save/load reproducibility work.
package rng

import "math/rand"

// Policy controls when the seed advances.
type Policy string

const (
	// PolicyEachCall advances and records the seed on every draw, so
	// every draw is distinct and persisted.
	PolicyEachCall Policy = "eachCall"
	// PolicyPassage advances the seed only on passage navigation;
	// repeated draws within one passage return the same value.
	PolicyPassage Policy = "passage"
	// PolicyNever keeps the initially configured seed forever.
	PolicyNever Policy = "never"
)

// Valid reports whether the policy is one of the known values.
func (p Policy) Valid() bool {
	switch p {
	case PolicyEachCall, PolicyPassage, PolicyNever:
		return true
	}
	return false
}

// Draw produces one float in [0, 1) from the seed, plus the advanced seed
// to record for the next draw.
//
// Given the same seed, Draw always produces the same pair, across
// processes and across save/load cycles.
func Draw(seed int64) (float64, int64) {
	generator := rand.New(rand.NewSource(seed))
	value := generator.Float64()
	return value, generator.Int63()
}

// Next advances a seed without consuming a draw. Navigation under
// PolicyPassage uses it to stamp a fresh seed on the new snapshot.
func Next(seed int64) int64 {
	return rand.New(rand.NewSource(seed)).Int63()
}
