package story

import (
	"fmt"

	"github.com/Shopify/go-lua"
	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
	"github.com/louisbranch/narrative-engine/internal/state/snapshot"
)

// RunScript executes a passage script against a copy of the story
// variables and returns the resulting variable set.
//
// The script sees the variables as the global "vars" table. Supported
// value shapes are numbers, strings, booleans, and nested string-keyed
// tables; table entries set to nil disappear, which the engine records
// as explicit clears.
func RunScript(script string, vars snapshot.Vars) (snapshot.Vars, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	pushVars(state, vars)
	state.SetGlobal("vars")

	if err := lua.DoString(state, script); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStoryScriptFailed, "run passage script", err)
	}

	state.Global("vars")
	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		return nil, apperrors.New(apperrors.CodeStoryScriptFailed, "passage script replaced vars with a non-table")
	}
	result, err := tableToVars(state)
	state.Pop(1)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// pushVars leaves a table representing vars on top of the stack.
func pushVars(state *lua.State, vars snapshot.Vars) {
	state.NewTable()
	for key, value := range vars {
		if pushValue(state, value) {
			state.SetField(-2, key)
		}
	}
}

// pushValue pushes a Go value onto the stack, reporting whether the value
// was representable. Unsupported values are skipped rather than failing
// the whole script.
func pushValue(state *lua.State, value any) bool {
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case bool:
		state.PushBoolean(v)
	case float64:
		state.PushNumber(v)
	case int:
		state.PushNumber(float64(v))
	case string:
		state.PushString(v)
	case map[string]any:
		state.NewTable()
		for key, item := range v {
			if pushValue(state, item) {
				state.SetField(-2, key)
			}
		}
	case snapshot.Vars:
		return pushValue(state, map[string]any(v))
	case []any:
		state.NewTable()
		for i, item := range v {
			if pushValue(state, item) {
				state.RawSetInt(-2, i+1)
			}
		}
	default:
		return false
	}
	return true
}

// tableToVars converts the table at the top of the stack into vars.
func tableToVars(state *lua.State) (snapshot.Vars, error) {
	value, err := tableToValue(state)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case map[string]any:
		return snapshot.Vars(v), nil
	case []any:
		return nil, apperrors.New(apperrors.CodeStoryScriptFailed, "vars table must use string keys")
	default:
		return nil, apperrors.New(apperrors.CodeStoryScriptFailed, "vars is not a table")
	}
}

// tableToValue converts the table at the top of the stack into either a
// string-keyed map or, when every key is a sequential integer, a slice.
func tableToValue(state *lua.State) (any, error) {
	entries := make(map[string]any)
	var sequence []any
	sequential := true

	state.PushNil()
	for state.Next(-2) {
		value, err := valueAt(state, -1)
		if err != nil {
			state.Pop(2)
			return nil, err
		}

		switch state.TypeOf(-2) {
		case lua.TypeString:
			key, _ := state.ToString(-2)
			entries[key] = value
			sequential = false
		case lua.TypeNumber:
			index, ok := state.ToInteger(-2)
			if !ok || index != len(sequence)+1 {
				sequential = false
			}
			sequence = append(sequence, value)
			num, _ := state.ToNumber(-2)
			entries[fmt.Sprintf("%v", num)] = value
		default:
			state.Pop(2)
			return nil, apperrors.New(apperrors.CodeStoryScriptFailed, "vars table keys must be strings or integers")
		}
		state.Pop(1)
	}

	if sequential && len(sequence) > 0 {
		return sequence, nil
	}
	return entries, nil
}

// valueAt converts the stack value at index into a Go value.
func valueAt(state *lua.State, index int) (any, error) {
	switch state.TypeOf(index) {
	case lua.TypeNil:
		return nil, nil
	case lua.TypeBoolean:
		return state.ToBoolean(index), nil
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return value, nil
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value, nil
	case lua.TypeTable:
		state.PushValue(index)
		value, err := tableToValue(state)
		state.Pop(1)
		return value, err
	default:
		return nil, apperrors.New(apperrors.CodeStoryScriptFailed,
			fmt.Sprintf("unsupported value of type %s in vars table", lua.TypeNameOf(state, index)))
	}
}
