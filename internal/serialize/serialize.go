// Package serialize converts arbitrary story state graphs to and from
// strings.
//
// Plain maps, slices, and scalars pass through as JSON. Richer values
// (time.Time, big.Int, compiled regexps, and user-registered types) are
// wrapped in tagged envelopes so they survive the round trip. Each engine
// owns its own registry; there is no process-global state.
package serialize

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"time"

	apperrors "github.com/louisbranch/narrative-engine/internal/errors"
)

// tagKey marks an envelope object. Plain maps that happen to contain the
// key are escaped behind the "object" tag.
const tagKey = "$tag"

const (
	tagTime   = "time"
	tagBigInt = "bigint"
	tagRegexp = "regexp"
	tagObject = "object"
)

// Codec encodes and decodes one registered value type.
//
// Encode reports false when the value is not one of its own; the
// serializer tries codecs in registration order until one claims the
// value. Decode rebuilds the instance from the encoded plain data.
type Codec struct {
	Tag    string
	Encode func(value any) (any, bool)
	Decode func(data any) (any, error)
}

// Serializer converts state graphs to strings and back.
type Serializer struct {
	codecs []Codec
	byTag  map[string]Codec
}

// New creates a serializer with no registered custom types.
func New() *Serializer {
	return &Serializer{byTag: make(map[string]Codec)}
}

// Register adds a codec for a custom value type. Tags must be non-empty
// and unique; the built-in tags are reserved.
func (s *Serializer) Register(codec Codec) error {
	if codec.Tag == "" || codec.Encode == nil || codec.Decode == nil {
		return apperrors.New(apperrors.CodeEngineInvalidConfig, "codec requires a tag, encoder, and decoder")
	}
	switch codec.Tag {
	case tagTime, tagBigInt, tagRegexp, tagObject:
		return apperrors.WithMetadata(apperrors.CodeSerializeDuplicate,
			fmt.Sprintf("codec tag %q is reserved", codec.Tag),
			map[string]string{"tag": codec.Tag})
	}
	if _, exists := s.byTag[codec.Tag]; exists {
		return apperrors.WithMetadata(apperrors.CodeSerializeDuplicate,
			fmt.Sprintf("codec tag %q already registered", codec.Tag),
			map[string]string{"tag": codec.Tag})
	}
	s.codecs = append(s.codecs, codec)
	s.byTag[codec.Tag] = codec
	return nil
}

// Serialize converts a state graph to a string.
func (s *Serializer) Serialize(value any) (string, error) {
	encoded, err := s.encode(value)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(payload), nil
}

// Deserialize rebuilds a state graph from a string.
func (s *Serializer) Deserialize(data string) (any, error) {
	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSaveCorrupt, "unmarshal state", err)
	}
	return s.decode(raw)
}

func envelope(tag string, value any) map[string]any {
	return map[string]any{tagKey: tag, "value": value}
}

func (s *Serializer) encode(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool, string, float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case time.Time:
		return envelope(tagTime, v.Format(time.RFC3339Nano)), nil
	case *big.Int:
		return envelope(tagBigInt, v.String()), nil
	case *regexp.Regexp:
		return envelope(tagRegexp, v.String()), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			encoded, err := s.encode(item)
			if err != nil {
				return nil, err
			}
			out[i] = encoded
		}
		return out, nil
	case map[string]any:
		return s.encodeMap(v)
	}

	for _, codec := range s.codecs {
		data, ok := codec.Encode(value)
		if !ok {
			continue
		}
		encoded, err := s.encode(data)
		if err != nil {
			return nil, err
		}
		return envelope(codec.Tag, encoded), nil
	}

	return nil, apperrors.New(apperrors.CodeSerializeUnsupported,
		fmt.Sprintf("unsupported value type %T", value))
}

func (s *Serializer) encodeMap(value map[string]any) (any, error) {
	out := make(map[string]any, len(value))
	for key, item := range value {
		encoded, err := s.encode(item)
		if err != nil {
			return nil, err
		}
		out[key] = encoded
	}
	if _, collides := value[tagKey]; collides {
		return envelope(tagObject, out), nil
	}
	return out, nil
}

func (s *Serializer) decode(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		if tag, ok := v[tagKey].(string); ok {
			return s.decodeEnvelope(tag, v["value"])
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			decoded, err := s.decode(item)
			if err != nil {
				return nil, err
			}
			out[key] = decoded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			decoded, err := s.decode(item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	default:
		return v, nil
	}
}

func (s *Serializer) decodeEnvelope(tag string, value any) (any, error) {
	switch tag {
	case tagTime:
		text, ok := value.(string)
		if !ok {
			return nil, apperrors.New(apperrors.CodeSaveCorrupt, "time envelope requires a string value")
		}
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSaveCorrupt, "parse time value", err)
		}
		return parsed, nil
	case tagBigInt:
		text, ok := value.(string)
		if !ok {
			return nil, apperrors.New(apperrors.CodeSaveCorrupt, "bigint envelope requires a string value")
		}
		parsed, ok := new(big.Int).SetString(text, 10)
		if !ok {
			return nil, apperrors.New(apperrors.CodeSaveCorrupt,
				fmt.Sprintf("invalid bigint value %q", text))
		}
		return parsed, nil
	case tagRegexp:
		text, ok := value.(string)
		if !ok {
			return nil, apperrors.New(apperrors.CodeSaveCorrupt, "regexp envelope requires a string value")
		}
		compiled, err := regexp.Compile(text)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSaveCorrupt, "compile regexp value", err)
		}
		return compiled, nil
	case tagObject:
		inner, ok := value.(map[string]any)
		if !ok {
			return nil, apperrors.New(apperrors.CodeSaveCorrupt, "object envelope requires a map value")
		}
		out := make(map[string]any, len(inner))
		for key, item := range inner {
			decoded, err := s.decode(item)
			if err != nil {
				return nil, err
			}
			out[key] = decoded
		}
		return out, nil
	}

	codec, ok := s.byTag[tag]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeSerializeUnknownTag,
			fmt.Sprintf("no codec registered for tag %q", tag),
			map[string]string{"tag": tag})
	}
	data, err := s.decode(value)
	if err != nil {
		return nil, err
	}
	return codec.Decode(data)
}
