package migrate

import (
	"errors"
	"testing"

	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"github.com/louisbranch/narrative-engine/internal/state/snapshot"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		save    string
		engine  string
		mode    Mode
		want    Compatibility
		wantErr bool
	}{
		{name: "equal versions compatible", save: "1.2.0", engine: "1.2.0", mode: ModeStrict, want: Compatible},
		{name: "patch ignored", save: "1.2.9", engine: "1.2.0", mode: ModeStrict, want: Compatible},
		{name: "higher major is newer", save: "2.0.0", engine: "1.9.0", mode: ModeLiberal, want: Newer},
		{name: "lower major is outdated", save: "0.9.0", engine: "1.0.0", mode: ModeLiberal, want: Outdated},
		{name: "higher minor is newer in strict", save: "1.3.0", engine: "1.2.0", mode: ModeStrict, want: Newer},
		{name: "higher minor is newer in liberal", save: "1.3.0", engine: "1.2.0", mode: ModeLiberal, want: Newer},
		{name: "lower minor is outdated in strict", save: "1.1.0", engine: "1.2.0", mode: ModeStrict, want: Outdated},
		{name: "lower minor is compatible in liberal", save: "1.1.0", engine: "1.2.0", mode: ModeLiberal, want: Compatible},
		{name: "invalid save version", save: "not-a-version", engine: "1.0.0", mode: ModeStrict, wantErr: true},
		{name: "invalid engine version", save: "1.0.0", engine: "", mode: ModeStrict, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.save, tt.engine, tt.mode)
			if tt.wantErr {
				if !apperrors.IsCode(err, apperrors.CodeSaveVersionInvalid) {
					t.Errorf("expected invalid-version error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	m := New()
	identity := func(state snapshot.Vars) (snapshot.Vars, error) { return state, nil }

	if err := m.Register("0.1.0", "0.2.0", identity); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := m.Register("0.1.0", "0.3.0", identity)
	if !apperrors.IsCode(err, apperrors.CodeMigrationDuplicateStep) {
		t.Errorf("expected duplicate-step error, got %v", err)
	}
}

func TestRegisterValidatesVersions(t *testing.T) {
	m := New()
	identity := func(state snapshot.Vars) (snapshot.Vars, error) { return state, nil }

	if err := m.Register("bogus", "0.2.0", identity); !apperrors.IsCode(err, apperrors.CodeSaveVersionInvalid) {
		t.Errorf("expected invalid-version error, got %v", err)
	}
	if err := m.Register("0.1.0", "0.2.0", nil); err == nil {
		t.Error("expected error for nil migration function")
	}
}

func TestApplyChain(t *testing.T) {
	m := New()
	err := m.Register("0.1.0", "0.2.0", func(state snapshot.Vars) (snapshot.Vars, error) {
		// Rename "coins" to "gold".
		out := state.Clone()
		out["gold"] = out["coins"]
		delete(out, "coins")
		return out, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	err = m.Register("0.2.0", "0.3.0", func(state snapshot.Vars) (snapshot.Vars, error) {
		out := state.Clone()
		out["schema"] = "v3"
		return out, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := m.Apply(snapshot.Vars{"coins": 40.0}, "0.1.0", "0.3.0")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result["gold"] != 40.0 {
		t.Errorf("gold = %v, want 40", result["gold"])
	}
	if _, ok := result["coins"]; ok {
		t.Error("coins should have been renamed away")
	}
	if result["schema"] != "v3" {
		t.Errorf("schema = %v, want v3", result["schema"])
	}
}

func TestApplyIgnoresTargetPatchVersion(t *testing.T) {
	m := New()
	if err := m.Register("1.0.0", "1.1.0", func(state snapshot.Vars) (snapshot.Vars, error) {
		out := state.Clone()
		out["renamed"] = true
		return out, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register("1.1.0", "1.2.0", func(state snapshot.Vars) (snapshot.Vars, error) {
		out := state.Clone()
		out["schema"] = "v2"
		return out, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// The engine runs a patch release the chain was not rebuilt for; the
	// chain ends at the matching major.minor, same as Classify.
	result, err := m.Apply(snapshot.Vars{"gold": 1.0}, "1.0.0", "1.2.3")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result["renamed"] != true || result["schema"] != "v2" {
		t.Errorf("chain did not run to completion: %v", result)
	}

	// A save already at the target's major.minor needs no steps at all.
	unchanged, err := m.Apply(snapshot.Vars{"gold": 2.0}, "1.2.0", "1.2.3")
	if err != nil {
		t.Fatalf("apply at matching minor: %v", err)
	}
	if unchanged["gold"] != 2.0 {
		t.Errorf("state changed without steps: %v", unchanged)
	}
}

func TestApplyMissingStep(t *testing.T) {
	m := New()
	if err := m.Register("0.1.0", "0.2.0", func(state snapshot.Vars) (snapshot.Vars, error) {
		return state, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := m.Apply(snapshot.Vars{}, "0.1.0", "0.3.0")
	if !apperrors.IsCode(err, apperrors.CodeMigrationStepMissing) {
		t.Fatalf("expected missing-step error, got %v", err)
	}
	if result != nil {
		t.Error("expected nil state on failed migration")
	}
	if meta := apperrors.GetMetadata(err); meta["version"] != "0.2.0" {
		t.Errorf("expected error to name stuck version 0.2.0, got %v", meta)
	}
}

func TestApplyStepError(t *testing.T) {
	m := New()
	boom := errors.New("bad shape")
	if err := m.Register("0.1.0", "0.2.0", func(state snapshot.Vars) (snapshot.Vars, error) {
		return nil, boom
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := m.Apply(snapshot.Vars{}, "0.1.0", "0.2.0")
	if !apperrors.IsCode(err, apperrors.CodeMigrationStepFailed) {
		t.Fatalf("expected step-failed error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("expected underlying step error in chain")
	}
}

func TestApplyDetectsCycles(t *testing.T) {
	m := New()
	identity := func(state snapshot.Vars) (snapshot.Vars, error) { return state, nil }
	if err := m.Register("0.1.0", "0.2.0", identity); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register("0.2.0", "0.1.0", identity); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := m.Apply(snapshot.Vars{}, "0.1.0", "0.9.0")
	if !apperrors.IsCode(err, apperrors.CodeMigrationStepMissing) {
		t.Errorf("expected chain failure on cycle, got %v", err)
	}
}
