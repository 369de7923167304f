// Package history maintains the ordered snapshot sequence and the cursor
// that marks the current position in a story.
//
// The sequence always holds at least one snapshot; index 0 starts empty,
// meaning "no changes yet". State at any index is derived by folding the
// initial state with every snapshot up to that index, in order. History is
// linear: navigating after rewinding overwrites the abandoned future.
package history

import (
	"fmt"

	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"github.com/louisbranch/narrative-engine/internal/state/snapshot"
)

const (
	// DefaultMaxStates bounds how many snapshots are kept before merging.
	DefaultMaxStates = 100
	// DefaultMergeCount is how many of the oldest snapshots fold into one
	// when the bound is hit (the merge consumes MergeCount+1 snapshots).
	DefaultMergeCount = 10
)

// State is the full materialized story state at one history index.
type State struct {
	Vars      snapshot.Vars
	PassageID string
	Seed      int64
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	return State{
		Vars:      s.Vars.Clone(),
		PassageID: s.PassageID,
		Seed:      s.Seed,
	}
}

// Config bounds the snapshot sequence.
type Config struct {
	// MaxStates is the capacity bound; zero selects DefaultMaxStates.
	MaxStates int
	// MergeCount is the merge width; zero selects DefaultMergeCount.
	MergeCount int
}

// Store owns the snapshot sequence and the cursor.
//
// Store is not safe for concurrent use; the engine assumes a single-writer
// narrative session.
type Store struct {
	initial    snapshot.Snapshot
	snaps      []snapshot.Snapshot
	index      int
	cache      Cache
	maxStates  int
	mergeCount int
}

// NewStore creates a history store over the provided initial state.
//
// The initial snapshot must carry a seed; it is the fallback for seed
// resolution at every index. The cache is optional.
func NewStore(initial snapshot.Snapshot, cfg Config, cache Cache) (*Store, error) {
	if initial.Seed == nil {
		return nil, apperrors.New(apperrors.CodeEngineInvalidConfig, "initial state requires a seed")
	}
	maxStates := cfg.MaxStates
	if maxStates == 0 {
		maxStates = DefaultMaxStates
	}
	mergeCount := cfg.MergeCount
	if mergeCount == 0 {
		mergeCount = DefaultMergeCount
	}
	if maxStates < 2 || mergeCount < 1 || mergeCount+1 >= maxStates {
		return nil, apperrors.New(apperrors.CodeEngineInvalidConfig,
			fmt.Sprintf("invalid history bounds: max states %d, merge count %d", maxStates, mergeCount))
	}

	return &Store{
		initial:    initial.Clone(),
		snaps:      []snapshot.Snapshot{snapshot.New()},
		index:      0,
		cache:      cache,
		maxStates:  maxStates,
		mergeCount: mergeCount,
	}, nil
}

// Len returns the number of snapshots.
func (s *Store) Len() int {
	return len(s.snaps)
}

// Index returns the cursor position.
func (s *Store) Index() int {
	return s.index
}

// SetIndex moves the cursor to an exact position.
// Unlike Forward and Backward it rejects out-of-range positions.
func (s *Store) SetIndex(index int) error {
	if index < 0 || index >= len(s.snaps) {
		return s.rangeError(index)
	}
	s.index = index
	return nil
}

// Forward moves the cursor ahead by steps, clamping at the last snapshot.
// It reports whether the cursor moved.
func (s *Store) Forward(steps int) bool {
	if steps < 1 {
		return false
	}
	target := s.index + steps
	if last := len(s.snaps) - 1; target > last {
		target = last
	}
	moved := target != s.index
	s.index = target
	return moved
}

// Backward moves the cursor back by steps, clamping at zero.
// It reports whether the cursor moved.
func (s *Store) Backward(steps int) bool {
	if steps < 1 {
		return false
	}
	target := s.index - steps
	if target < 0 {
		target = 0
	}
	moved := target != s.index
	s.index = target
	return moved
}

// Current materializes the state at the cursor.
func (s *Store) Current() State {
	return s.Materialize(s.index)
}

// Materialize computes the full state at the given index by folding the
// initial state with snapshots [0..index] in order. The index is clamped
// into the valid range, so Materialize never fails.
func (s *Store) Materialize(index int) State {
	if index < 0 {
		index = 0
	}
	if last := len(s.snaps) - 1; index > last {
		index = last
	}

	if s.cache != nil {
		if state, ok := s.cache.Get(index); ok {
			return state.Clone()
		}
	}

	state := State{
		Vars:      s.initial.Vars.Clone(),
		PassageID: s.initial.PassageID,
		Seed:      *s.initial.Seed,
	}
	for i := 0; i <= index; i++ {
		snap := s.snaps[i]
		// Explicit clears remove the key from the materialized view;
		// snapshot-level folds keep them as markers instead.
		for key, value := range snap.Vars {
			if value == nil {
				delete(state.Vars, key)
				continue
			}
			state.Vars[key] = snapshot.CloneValue(value)
		}
		if snap.PassageID != "" {
			state.PassageID = snap.PassageID
		}
		if snap.Seed != nil {
			state.Seed = *snap.Seed
		}
	}

	if s.cache != nil {
		s.cache.Put(index, state.Clone())
	}
	return state
}

// Append inserts a new empty snapshot immediately after the cursor,
// discarding any existing snapshots beyond it (overwrite-on-diverge).
//
// The capacity check runs before allocation: when the sequence is full,
// the oldest MergeCount+1 snapshots fold into one first.
func (s *Store) Append() {
	if len(s.snaps) >= s.maxStates {
		s.Merge(0, s.mergeCount)
	}

	s.snaps = append(s.snaps[:s.index+1], snapshot.New())
	if s.cache != nil {
		s.cache.Clear()
	}
}

// Merge folds the inclusive snapshot range [lower, upper] into a single
// snapshot, preserving fold order and the last-write-wins rule, so the
// materialized state at every surviving index is unchanged.
//
// The upper bound is clamped to the last valid index. Merging is a no-op
// when upper < lower or fewer than two snapshots exist. The cursor shifts
// left by the number of snapshots removed when it sat at or after the
// merged region.
func (s *Store) Merge(lower, upper int) {
	if len(s.snaps) < 2 {
		return
	}
	if lower < 0 {
		lower = 0
	}
	if last := len(s.snaps) - 1; upper > last {
		upper = last
	}
	if upper <= lower {
		return
	}

	combined := snapshot.New()
	for i := lower; i <= upper; i++ {
		snapshot.Fold(&combined, s.snaps[i])
	}

	removed := upper - lower
	merged := make([]snapshot.Snapshot, 0, len(s.snaps)-removed)
	merged = append(merged, s.snaps[:lower]...)
	merged = append(merged, combined)
	merged = append(merged, s.snaps[upper+1:]...)
	s.snaps = merged

	switch {
	case s.index > upper:
		s.index -= removed
	case s.index >= lower:
		s.index = lower
	}

	if s.cache != nil {
		s.cache.Clear()
	}
}

// Mutate applies a caller-supplied transform to the snapshot at index.
//
// The transform receives a deep-cloned materialized view of the state at
// that index, so in-place mutation of nested values works without
// pre-populating touched paths. Returning nil keeps the mutated view
// (incremental mode). Returning a map replaces the recorded content: the
// returned keys win, keys not mentioned retain their last known values,
// and a nil entry clears its key explicitly.
//
// The stored snapshot stays sparse: the result is diffed against the
// state one index earlier before being recorded.
func (s *Store) Mutate(index int, fn func(snapshot.Vars) snapshot.Vars) error {
	if index < 0 || index >= len(s.snaps) {
		return s.rangeError(index)
	}

	base := s.Materialize(index).Vars
	view := base.Clone()
	result := fn(view)

	full := view
	if result != nil {
		full = base
		for key, value := range result {
			if value == nil {
				full[key] = nil
				continue
			}
			full[key] = snapshot.CloneValue(value)
		}
	}

	var prev snapshot.Vars
	if index == 0 {
		prev = s.initial.Vars
	} else {
		prev = s.Materialize(index - 1).Vars
	}

	s.snaps[index].Vars = snapshot.Diff(full, prev)
	s.invalidateFrom(index)
	return nil
}

// StampPassage records a passage transition on the snapshot at index.
func (s *Store) StampPassage(index int, passageID string) error {
	if index < 0 || index >= len(s.snaps) {
		return s.rangeError(index)
	}
	s.snaps[index].PassageID = passageID
	s.invalidateFrom(index)
	return nil
}

// StampSeed records an advanced random seed on the snapshot at index.
func (s *Store) StampSeed(index int, seed int64) error {
	if index < 0 || index >= len(s.snaps) {
		return s.rangeError(index)
	}
	s.snaps[index].Seed = &seed
	s.invalidateFrom(index)
	return nil
}

// ResolvedPassage returns the passage id nearest at-or-before index,
// falling back to the initial state's passage. Out-of-range indexes clamp
// to the valid range, same as Materialize.
func (s *Store) ResolvedPassage(index int) string {
	if last := len(s.snaps) - 1; index > last {
		index = last
	}
	if index < 0 {
		index = 0
	}
	for i := index; i >= 0 && i < len(s.snaps); i-- {
		if s.snaps[i].PassageID != "" {
			return s.snaps[i].PassageID
		}
	}
	return s.initial.PassageID
}

// ResolvedSeed returns the seed nearest at-or-before index, falling back
// to the initial state's seed. Out-of-range indexes clamp to the valid
// range, same as Materialize.
func (s *Store) ResolvedSeed(index int) int64 {
	if last := len(s.snaps) - 1; index > last {
		index = last
	}
	if index < 0 {
		index = 0
	}
	for i := index; i >= 0 && i < len(s.snaps); i-- {
		if s.snaps[i].Seed != nil {
			return *s.snaps[i].Seed
		}
	}
	return *s.initial.Seed
}

// Initial returns a copy of the initial state snapshot.
func (s *Store) Initial() snapshot.Snapshot {
	return s.initial.Clone()
}

// Snapshots returns a deep copy of the snapshot sequence.
func (s *Store) Snapshots() []snapshot.Snapshot {
	out := make([]snapshot.Snapshot, len(s.snaps))
	for i, snap := range s.snaps {
		out[i] = snap.Clone()
	}
	return out
}

// Replace installs a wholesale new history (used by load and migration).
// The sequence must be non-empty and the cursor in range.
func (s *Store) Replace(initial snapshot.Snapshot, snaps []snapshot.Snapshot, index int) error {
	if initial.Seed == nil {
		return apperrors.New(apperrors.CodeEngineInvalidConfig, "initial state requires a seed")
	}
	if len(snaps) == 0 {
		return apperrors.New(apperrors.CodeHistoryEmpty, "history requires at least one snapshot")
	}
	if index < 0 || index >= len(snaps) {
		return apperrors.WithMetadata(apperrors.CodeHistoryIndexOutOfRange,
			fmt.Sprintf("history index %d out of range [0, %d]", index, len(snaps)-1),
			map[string]string{"index": fmt.Sprintf("%d", index)})
	}

	s.initial = initial.Clone()
	installed := make([]snapshot.Snapshot, len(snaps))
	for i, snap := range snaps {
		installed[i] = snap.Clone()
	}
	s.snaps = installed
	s.index = index
	if s.cache != nil {
		s.cache.Clear()
	}
	return nil
}

func (s *Store) invalidateFrom(index int) {
	if s.cache == nil {
		return
	}
	for i := index; i < len(s.snaps); i++ {
		s.cache.Drop(i)
	}
}

func (s *Store) rangeError(index int) error {
	return apperrors.WithMetadata(apperrors.CodeHistoryIndexOutOfRange,
		fmt.Sprintf("history index %d out of range [0, %d]", index, len(s.snaps)-1),
		map[string]string{"index": fmt.Sprintf("%d", index)})
}
