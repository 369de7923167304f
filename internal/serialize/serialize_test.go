package serialize

import (
	"math/big"
	"regexp"
	"testing"
	"time"

	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
)

func TestRoundTripPlainValues(t *testing.T) {
	s := New()
	original := map[string]any{
		"gold":  123.0,
		"name":  "Brynn",
		"alive": true,
		"log":   []any{"start", 2.0, nil},
		"pouch": map[string]any{"gems": 12.0},
	}

	payload, err := s.Serialize(original)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := s.Deserialize(payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	got := decoded.(map[string]any)
	if got["gold"] != 123.0 || got["name"] != "Brynn" || got["alive"] != true {
		t.Errorf("scalars diverged: %v", got)
	}
	if got["pouch"].(map[string]any)["gems"] != 12.0 {
		t.Errorf("nested map diverged: %v", got["pouch"])
	}
	log := got["log"].([]any)
	if log[0] != "start" || log[1] != 2.0 || log[2] != nil {
		t.Errorf("slice diverged: %v", log)
	}
}

func TestRoundTripTaggedValues(t *testing.T) {
	s := New()
	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	original := map[string]any{
		"visited": when,
		"score":   big.NewInt(9007199254740993), // beyond float64 precision
		"pattern": regexp.MustCompile(`^gold-\d+$`),
	}

	payload, err := s.Serialize(original)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := s.Deserialize(payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	got := decoded.(map[string]any)
	if !got["visited"].(time.Time).Equal(when) {
		t.Errorf("time diverged: %v", got["visited"])
	}
	if got["score"].(*big.Int).String() != "9007199254740993" {
		t.Errorf("bigint diverged: %v", got["score"])
	}
	if got["pattern"].(*regexp.Regexp).String() != `^gold-\d+$` {
		t.Errorf("regexp diverged: %v", got["pattern"])
	}
}

type inventory struct {
	Items []string
}

func inventoryCodec() Codec {
	return Codec{
		Tag: "inventory",
		Encode: func(value any) (any, bool) {
			inv, ok := value.(inventory)
			if !ok {
				return nil, false
			}
			items := make([]any, len(inv.Items))
			for i, item := range inv.Items {
				items[i] = item
			}
			return items, true
		},
		Decode: func(data any) (any, error) {
			raw := data.([]any)
			items := make([]string, len(raw))
			for i, item := range raw {
				items[i] = item.(string)
			}
			return inventory{Items: items}, nil
		},
	}
}

func TestRegisteredCodecRoundTrip(t *testing.T) {
	s := New()
	if err := s.Register(inventoryCodec()); err != nil {
		t.Fatalf("register: %v", err)
	}

	payload, err := s.Serialize(map[string]any{
		"bag": inventory{Items: []string{"torch", "rope"}},
	})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := s.Deserialize(payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	bag := decoded.(map[string]any)["bag"].(inventory)
	if len(bag.Items) != 2 || bag.Items[0] != "torch" || bag.Items[1] != "rope" {
		t.Errorf("inventory diverged: %v", bag)
	}
}

func TestUnregisteredTypeFails(t *testing.T) {
	s := New()
	_, err := s.Serialize(map[string]any{"bag": inventory{}})
	if !apperrors.IsCode(err, apperrors.CodeSerializeUnsupported) {
		t.Errorf("expected unsupported-value error, got %v", err)
	}
}

func TestUnknownTagFailsLoudly(t *testing.T) {
	s := New()
	_, err := s.Deserialize(`{"$tag":"mystery","value":1}`)
	if !apperrors.IsCode(err, apperrors.CodeSerializeUnknownTag) {
		t.Errorf("expected unknown-tag error, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := New()
	if err := s.Register(Codec{Tag: "time", Encode: func(any) (any, bool) { return nil, false },
		Decode: func(any) (any, error) { return nil, nil }}); !apperrors.IsCode(err, apperrors.CodeSerializeDuplicate) {
		t.Errorf("expected reserved-tag error, got %v", err)
	}

	if err := s.Register(inventoryCodec()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(inventoryCodec()); !apperrors.IsCode(err, apperrors.CodeSerializeDuplicate) {
		t.Errorf("expected duplicate-tag error, got %v", err)
	}
}

func TestMapWithTagKeyEscaped(t *testing.T) {
	s := New()
	original := map[string]any{"$tag": "not-an-envelope", "gold": 1.0}

	payload, err := s.Serialize(original)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	decoded, err := s.Deserialize(payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	got := decoded.(map[string]any)
	if got["$tag"] != "not-an-envelope" || got["gold"] != 1.0 {
		t.Errorf("escaped map diverged: %v", got)
	}
}
