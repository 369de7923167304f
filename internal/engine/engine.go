// Package engine ties story passages, snapshot history, the deterministic
// random stream, persistence, and save migration into one narrative
// session.
//
// An engine instance assumes single-threaded, single-writer use, typical
// of an interactive narrative session. Mutating methods must not be
// called reentrantly from callbacks passed to other mutating methods.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"github.com/louisbranch/narrative-engine/internal/random"
	"github.com/louisbranch/narrative-engine/internal/serialize"
	"github.com/louisbranch/narrative-engine/internal/state/history"
	"github.com/louisbranch/narrative-engine/internal/state/migrate"
	"github.com/louisbranch/narrative-engine/internal/state/rng"
	"github.com/louisbranch/narrative-engine/internal/state/snapshot"
	"github.com/louisbranch/narrative-engine/internal/storage"
	"github.com/louisbranch/narrative-engine/internal/story"
)

const (
	defaultVersion   = "1.0.0"
	defaultSlotCount = 8
)

// Config configures an engine instance.
type Config struct {
	// Name scopes storage keys; required.
	Name string
	// Version is the running save-format version; defaults to 1.0.0.
	Version string
	// MaxStates bounds the snapshot sequence; zero selects the
	// history default.
	MaxStates int
	// MergeCount is how many of the oldest snapshots fold into one
	// when the bound is hit; zero selects the history default.
	MergeCount int
	// SeedPolicy controls when the random seed advances; defaults to
	// advancing per passage.
	SeedPolicy rng.Policy
	// Compatibility is the save-version acceptance policy; defaults
	// to strict.
	Compatibility migrate.Mode
	// SlotCount is the number of numbered save slots; defaults to 8.
	SlotCount int
	// Seed fixes the initial random seed; nil draws a fresh one.
	Seed *int64
	// InitialVars is the variable baseline at construction.
	InitialVars snapshot.Vars
}

// Engine is one narrative session.
type Engine struct {
	cfg        Config
	story      *story.Store
	store      storage.Adapter
	hist       *history.Store
	serializer *serialize.Serializer
	migrator   *migrate.Migrator
	bus        *Bus

	settings     map[string]any
	achievements map[string]any

	now func() time.Time
}

// New constructs an engine over a story and a storage adapter.
//
// Settings and achievements are loaded best-effort: a missing or
// unreadable record keeps the empty defaults rather than failing
// construction.
func New(ctx context.Context, cfg Config, st *story.Store, adapter storage.Adapter) (*Engine, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, apperrors.New(apperrors.CodeEngineNameEmpty, "engine name is required")
	}
	if st == nil {
		return nil, apperrors.New(apperrors.CodeEngineInvalidConfig, "story is required")
	}
	if adapter == nil {
		return nil, apperrors.New(apperrors.CodeEngineStorageMissing, "storage adapter is required")
	}
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}
	if _, err := semver.NewVersion(cfg.Version); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
			fmt.Sprintf("invalid engine version %q", cfg.Version), err)
	}
	if cfg.SeedPolicy == "" {
		cfg.SeedPolicy = rng.PolicyPassage
	}
	if !cfg.SeedPolicy.Valid() {
		return nil, apperrors.New(apperrors.CodeEngineInvalidConfig,
			fmt.Sprintf("unknown seed policy %q", cfg.SeedPolicy))
	}
	if cfg.Compatibility == "" {
		cfg.Compatibility = migrate.ModeStrict
	}
	if cfg.SlotCount == 0 {
		cfg.SlotCount = defaultSlotCount
	}
	if cfg.SlotCount < 0 {
		return nil, apperrors.New(apperrors.CodeEngineInvalidConfig, "slot count must be positive")
	}

	seed := int64(0)
	if cfg.Seed != nil {
		seed = *cfg.Seed
	} else {
		generated, err := random.NewSeed()
		if err != nil {
			return nil, fmt.Errorf("generate initial seed: %w", err)
		}
		seed = generated
	}

	initial := snapshot.Snapshot{
		Vars:      cfg.InitialVars.Clone(),
		PassageID: st.Start(),
		Seed:      &seed,
	}
	hist, err := history.NewStore(initial, history.Config{
		MaxStates:  cfg.MaxStates,
		MergeCount: cfg.MergeCount,
	}, history.NewMapCache())
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		story:        st,
		store:        adapter,
		hist:         hist,
		serializer:   serialize.New(),
		migrator:     migrate.New(),
		bus:          NewBus(),
		settings:     make(map[string]any),
		achievements: make(map[string]any),
		now:          time.Now,
	}

	// Best-effort reads: keep defaults when either record is missing
	// or unreadable.
	if loaded, err := e.loadRecord(ctx, e.settingsKey()); err == nil {
		e.settings = loaded
	}
	if loaded, err := e.loadRecord(ctx, e.achievementsKey()); err == nil {
		e.achievements = loaded
	}

	return e, nil
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Migrator returns the save migrator for step registration.
func (e *Engine) Migrator() *migrate.Migrator {
	return e.migrator
}

// Serializer returns the value serializer for codec registration.
func (e *Engine) Serializer() *serialize.Serializer {
	return e.serializer
}

// Story returns the passage store.
func (e *Engine) Story() *story.Store {
	return e.story
}

// State returns an isolated copy of the current materialized state.
func (e *Engine) State() history.State {
	return e.hist.Current()
}

// Vars returns an isolated copy of the current story variables.
func (e *Engine) Vars() snapshot.Vars {
	return e.hist.Current().Vars
}

// Index returns the history cursor position.
func (e *Engine) Index() int {
	return e.hist.Index()
}

// HistoryLen returns the number of history snapshots.
func (e *Engine) HistoryLen() int {
	return e.hist.Len()
}

// CurrentPassage resolves the passage at the cursor.
func (e *Engine) CurrentPassage() (story.Passage, error) {
	return e.story.Get(e.hist.ResolvedPassage(e.hist.Index()))
}

// SetVars applies a sparse patch to the current state. A nil entry
// clears its key explicitly.
func (e *Engine) SetVars(patch snapshot.Vars) error {
	return e.mutate(func(vars snapshot.Vars) snapshot.Vars {
		for key, value := range patch {
			if value == nil {
				delete(vars, key)
				continue
			}
			vars[key] = snapshot.CloneValue(value)
		}
		return nil
	})
}

// UpdateVars runs an in-place transform against the current state.
func (e *Engine) UpdateVars(fn func(vars snapshot.Vars)) error {
	return e.mutate(func(vars snapshot.Vars) snapshot.Vars {
		fn(vars)
		return nil
	})
}

// ReplaceVars runs a replacement transform against the current state:
// returned keys win, unmentioned keys retain their last known values,
// and nil entries clear their keys explicitly.
func (e *Engine) ReplaceVars(fn func(vars snapshot.Vars) snapshot.Vars) error {
	return e.mutate(fn)
}

func (e *Engine) mutate(fn func(snapshot.Vars) snapshot.Vars) error {
	old := e.hist.Current()
	if err := e.hist.Mutate(e.hist.Index(), fn); err != nil {
		return err
	}
	e.notify(old)
	return nil
}

// NavigateTo moves the story to a passage, recording a new snapshot.
//
// Navigating after rewinding overwrites the abandoned future. The new
// snapshot is stamped with the passage id only when it differs from the
// currently-resolved one, and with a freshly advanced seed when the
// seed policy is per-passage. The passage's script, if any, runs
// against the new state; a script failure rolls the navigation back.
func (e *Engine) NavigateTo(name string) error {
	if !e.story.Has(name) {
		return apperrors.WithMetadata(apperrors.CodePassageNotFound,
			fmt.Sprintf("passage %q is not defined", name),
			map[string]string{"passage": name})
	}

	passage, err := e.story.Get(name)
	if err != nil {
		return err
	}

	old := e.hist.Current()
	var rollbackInitial snapshot.Snapshot
	var rollbackSnaps []snapshot.Snapshot
	rollbackIndex := e.hist.Index()
	if passage.Script != "" {
		rollbackInitial = e.hist.Initial()
		rollbackSnaps = e.hist.Snapshots()
	}

	e.hist.Append()
	if err := e.hist.SetIndex(e.hist.Index() + 1); err != nil {
		return err
	}
	index := e.hist.Index()

	if e.hist.ResolvedPassage(index) != name {
		if err := e.hist.StampPassage(index, name); err != nil {
			return err
		}
	}
	if e.cfg.SeedPolicy == rng.PolicyPassage {
		if err := e.hist.StampSeed(index, rng.Next(e.hist.ResolvedSeed(index))); err != nil {
			return err
		}
	}

	if passage.Script != "" {
		result, err := story.RunScript(passage.Script, e.hist.Current().Vars)
		if err == nil {
			err = e.hist.Mutate(index, func(vars snapshot.Vars) snapshot.Vars {
				for key := range vars {
					if _, ok := result[key]; !ok {
						delete(vars, key)
					}
				}
				for key, value := range result {
					vars[key] = value
				}
				return nil
			})
		}
		if err != nil {
			if restoreErr := e.hist.Replace(rollbackInitial, rollbackSnaps, rollbackIndex); restoreErr != nil {
				return fmt.Errorf("restore history after script failure: %w", restoreErr)
			}
			return err
		}
	}

	e.notify(old)
	return nil
}

// Forward moves the cursor ahead, clamping at the end of history.
func (e *Engine) Forward(steps int) {
	old := e.hist.Current()
	if e.hist.Forward(steps) {
		e.notify(old)
	}
}

// Backward moves the cursor back, clamping at the start of history.
func (e *Engine) Backward(steps int) {
	old := e.hist.Current()
	if e.hist.Backward(steps) {
		e.notify(old)
	}
}

// Random draws one float in [0, 1) from the deterministic stream.
//
// The active seed is always resolved from history at the cursor, so the
// stream replays identically after rewind and after save/load. Under the
// per-call policy the advanced seed is written back into the current
// snapshot; under the per-passage policy the seed advances only on
// navigation; with a fixed policy the draw never changes.
func (e *Engine) Random() (float64, error) {
	index := e.hist.Index()
	value, next := rng.Draw(e.hist.ResolvedSeed(index))
	if e.cfg.SeedPolicy == rng.PolicyEachCall {
		if err := e.hist.StampSeed(index, next); err != nil {
			return 0, err
		}
	}
	return value, nil
}

// notify emits passage and state change events comparing the prior state
// against the current one. Both payloads are isolated copies.
func (e *Engine) notify(old history.State) {
	current := e.hist.Current()
	if old.PassageID != current.PassageID {
		e.bus.Emit(EventPassageChanged, PassageChange{
			OldPassage: old.PassageID,
			NewPassage: current.PassageID,
		})
	}
	if !statesEqual(old, current) {
		e.bus.Emit(EventStateChanged, StateChange{
			OldState: old,
			NewState: current,
		})
	}
}

func statesEqual(a, b history.State) bool {
	return a.PassageID == b.PassageID &&
		a.Seed == b.Seed &&
		snapshot.Equal(map[string]any(a.Vars), map[string]any(b.Vars))
}
