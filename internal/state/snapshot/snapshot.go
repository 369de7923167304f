// Package snapshot defines the sparse partial-state records that make up
// story history.
//
// A snapshot records only the variables that changed at one point in the
// story. The full state at any point is recovered by folding snapshots in
// order on top of the initial state (see the history package).
package snapshot

import (
	"math/big"
	"reflect"
	"regexp"
	"time"
)

// Vars is a sparse set of story variable changes.
//
// A key mapped to nil records an explicit clear, which participates in the
// fold like any other value. An absent key inherits whatever an earlier
// snapshot (or the initial state) recorded.
type Vars map[string]any

// Snapshot is one sparse partial record in story history.
//
// PassageID and Seed are optional metadata: PassageID is set when a passage
// transition occurred at this point, Seed when the random stream advanced.
// The zero values ("" and nil) mean "no metadata recorded here".
type Snapshot struct {
	Vars      Vars
	PassageID string
	Seed      *int64
}

// New returns an empty snapshot with no recorded changes.
func New() Snapshot {
	return Snapshot{Vars: Vars{}}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Vars:      s.Vars.Clone(),
		PassageID: s.PassageID,
	}
	if s.Seed != nil {
		seed := *s.Seed
		out.Seed = &seed
	}
	return out
}

// Clone returns a deep copy of the variable set.
func (v Vars) Clone() Vars {
	if v == nil {
		return Vars{}
	}
	out := make(Vars, len(v))
	for key, value := range v {
		out[key] = CloneValue(value)
	}
	return out
}

// CloneValue deep-copies a story variable value.
//
// Maps and slices are copied recursively. Integer and float32 numerics
// normalize to float64 so the in-memory value domain matches the
// serialized one: without this, a var set as an int would come back from
// a save as a float64 and compare unequal to its pre-save self. Values
// too large for float64 belong in a *big.Int. big.Int values are copied
// because they are mutable; time.Time and compiled regexps are
// effectively immutable and shared. Any other value is returned as-is.
func CloneValue(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case Vars:
		return map[string]any(v.Clone())
	case map[string]any:
		return map[string]any(Vars(v).Clone())
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CloneValue(item)
		}
		return out
	case *big.Int:
		if v == nil {
			return (*big.Int)(nil)
		}
		return new(big.Int).Set(v)
	case time.Time, *regexp.Regexp:
		return v
	default:
		return v
	}
}

// Apply folds the snapshot's changes onto the target variable set in place.
// Every recorded key overwrites, including explicit nil clears.
func (s Snapshot) Apply(target Vars) {
	for key, value := range s.Vars {
		target[key] = CloneValue(value)
	}
}

// Fold combines src into dst, with src winning on every recorded key.
// Metadata follows the same last-write-wins rule: src's PassageID and Seed
// replace dst's only when recorded.
func Fold(dst *Snapshot, src Snapshot) {
	if dst.Vars == nil {
		dst.Vars = Vars{}
	}
	src.Apply(dst.Vars)
	if src.PassageID != "" {
		dst.PassageID = src.PassageID
	}
	if src.Seed != nil {
		seed := *src.Seed
		dst.Seed = &seed
	}
}

// Diff computes the sparse record that turns prev into next.
//
// Keys whose value changed (or appeared) are recorded with their new value.
// Keys present in prev but missing from next are recorded as nil, the
// explicit-clear marker.
func Diff(next, prev Vars) Vars {
	out := Vars{}
	for key, value := range next {
		old, ok := prev[key]
		if !ok || !Equal(old, value) {
			out[key] = CloneValue(value)
		}
	}
	for key := range prev {
		if _, ok := next[key]; !ok {
			out[key] = nil
		}
	}
	return out
}

// Equal reports deep equality of two story variable values.
func Equal(a, b any) bool {
	if ai, ok := a.(*big.Int); ok {
		bi, ok := b.(*big.Int)
		return ok && ai.Cmp(bi) == 0
	}
	if ar, ok := a.(*regexp.Regexp); ok {
		br, ok := b.(*regexp.Regexp)
		return ok && ar.String() == br.String()
	}
	return reflect.DeepEqual(a, b)
}
