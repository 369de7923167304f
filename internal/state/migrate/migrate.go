// Package migrate upgrades older persisted save shapes to the running
// engine version through a chain of registered single-step transforms.
package migrate

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"github.com/louisbranch/narrative-engine/internal/state/snapshot"
)

// Mode is the save-version acceptance policy.
type Mode string

const (
	// ModeStrict requires an exact minor match for a save to load
	// without migration.
	ModeStrict Mode = "strict"
	// ModeLiberal accepts any save with a lower-or-equal minor.
	ModeLiberal Mode = "liberal"
)

// Compatibility classifies a save version against the engine version.
type Compatibility int

const (
	// Compatible saves load directly, no transform.
	Compatible Compatibility = iota
	// Outdated saves go through the migration chain.
	Outdated
	// Newer saves are rejected unconditionally; migration never runs
	// forward-to-past.
	Newer
)

// Func transforms one save shape into the next version's shape.
type Func func(state snapshot.Vars) (snapshot.Vars, error)

type step struct {
	to string
	fn Func
}

// Migrator holds the registered migration steps keyed by the version a
// save currently has.
type Migrator struct {
	steps map[string]step
}

// New creates an empty migrator.
func New() *Migrator {
	return &Migrator{steps: make(map[string]step)}
}

// Register adds a single-step transform from one version to the next.
// Registering two steps for the same "from" version is a configuration
// error; the existing step is not overwritten.
func (m *Migrator) Register(from, to string, fn Func) error {
	if _, err := semver.NewVersion(from); err != nil {
		return apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
			fmt.Sprintf("invalid migration source version %q", from), err)
	}
	if _, err := semver.NewVersion(to); err != nil {
		return apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
			fmt.Sprintf("invalid migration target version %q", to), err)
	}
	if fn == nil {
		return apperrors.New(apperrors.CodeEngineInvalidConfig, "migration function is required")
	}
	if _, exists := m.steps[from]; exists {
		return apperrors.WithMetadata(apperrors.CodeMigrationDuplicateStep,
			fmt.Sprintf("migration step already registered for version %s", from),
			map[string]string{"version": from})
	}
	m.steps[from] = step{to: to, fn: fn}
	return nil
}

// Classify compares a save version to the engine version.
//
// Only major.minor matter; patch is ignored. A higher major (or a higher
// minor under either mode) is Newer. A lower major is Outdated. With equal
// majors, strict mode treats any lower minor as Outdated while liberal
// mode accepts it as Compatible.
func Classify(saveVersion, engineVersion string, mode Mode) (Compatibility, error) {
	save, err := semver.NewVersion(saveVersion)
	if err != nil {
		return Compatible, apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
			fmt.Sprintf("invalid save version %q", saveVersion), err)
	}
	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return Compatible, apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
			fmt.Sprintf("invalid engine version %q", engineVersion), err)
	}

	switch {
	case save.Major() > engine.Major():
		return Newer, nil
	case save.Major() < engine.Major():
		return Outdated, nil
	case save.Minor() > engine.Minor():
		return Newer, nil
	case save.Minor() < engine.Minor():
		if mode == ModeLiberal {
			return Compatible, nil
		}
		return Outdated, nil
	default:
		return Compatible, nil
	}
}

// Apply walks the migration chain from the save's version to the target
// version, applying each registered step's transform in sequence. The
// chain ends once the tracked version matches the target's major.minor;
// patch is ignored, same as Classify, so a patch bump of the engine
// version does not strand chains registered against the previous patch.
//
// A missing step aborts with an error naming the stuck version; a step
// error aborts with the failing version attached. Apply never partially
// succeeds from the caller's perspective: on error the returned state is
// nil and the caller keeps (or restores) its pre-migration state.
func (m *Migrator) Apply(state snapshot.Vars, fromVersion, toVersion string) (snapshot.Vars, error) {
	target, err := semver.NewVersion(toVersion)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
			fmt.Sprintf("invalid migration target version %q", toVersion), err)
	}

	current := fromVersion
	// A chain can visit each registered step at most once.
	for hops := 0; ; hops++ {
		tracked, err := semver.NewVersion(current)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSaveVersionInvalid,
				fmt.Sprintf("invalid migration version %q", current), err)
		}
		if tracked.Major() == target.Major() && tracked.Minor() == target.Minor() {
			return state, nil
		}
		if hops > len(m.steps) {
			return nil, apperrors.WithMetadata(apperrors.CodeMigrationStepMissing,
				fmt.Sprintf("migration chain from %s never reaches %s", fromVersion, toVersion),
				map[string]string{"version": current})
		}
		next, ok := m.steps[current]
		if !ok {
			return nil, apperrors.WithMetadata(apperrors.CodeMigrationStepMissing,
				fmt.Sprintf("no migration step registered for version %s", current),
				map[string]string{"version": current})
		}
		migrated, err := next.fn(state)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMigrationStepFailed,
				fmt.Sprintf("migration step %s -> %s failed", current, next.to), err)
		}
		state = migrated
		current = next.to
	}
}
