package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const (
	ChannelET = "ET"
	ChannelBT = "BT"
)

// DefaultChannels are the environment and bean temperature channels Artisan reads.
var DefaultChannels = []string{ChannelET, ChannelBT}

var ErrInvalidPayload = errors.New("invalid telemetry payload")

// ChannelSet is the set of channel mnemonics extracted from ingest payloads.
type ChannelSet struct {
	names   []string
	allowed map[string]struct{}
}

func NewChannelSet(names ...string) (ChannelSet, error) {
	set := ChannelSet{allowed: make(map[string]struct{}, len(names))}
	for _, name := range names {
		trimmed := strings.ToUpper(strings.TrimSpace(name))
		if trimmed == "" {
			return ChannelSet{}, fmt.Errorf("channel name must not be empty")
		}
		if _, exists := set.allowed[trimmed]; exists {
			continue
		}
		set.allowed[trimmed] = struct{}{}
		set.names = append(set.names, trimmed)
	}

	if len(set.names) == 0 {
		return ChannelSet{}, fmt.Errorf("at least one channel is required")
	}
	return set, nil
}

func MustChannelSet(names ...string) ChannelSet {
	set, err := NewChannelSet(names...)
	if err != nil {
		panic(err)
	}
	return set
}

func (set ChannelSet) Names() []string {
	return append([]string(nil), set.names...)
}

func (set ChannelSet) Contains(name string) bool {
	_, ok := set.allowed[name]
	return ok
}

// Batch is the set of channel updates carried by one ingest payload.
type Batch struct {
	Values  map[string]float64
	Invalid []FieldError
}

type FieldError struct {
	Channel string
	Err     error
}

func (fieldError FieldError) Error() string {
	return fmt.Sprintf("invalid field %s: %v", fieldError.Channel, fieldError.Err)
}

func (fieldError FieldError) Unwrap() error {
	return fieldError.Err
}

// DecodeBatch extracts the recognized channels from a JSON object payload.
// Unrecognized fields are ignored. A recognized field with a non-numeric value
// is reported in Invalid and left out of Values.
func DecodeBatch(raw []byte, channels ChannelSet) (Batch, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload == nil {
		return Batch{}, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Batch{}, fmt.Errorf("%w: trailing data after JSON object", ErrInvalidPayload)
	}

	batch := Batch{Values: make(map[string]float64, len(channels.names))}
	for _, channel := range channels.names {
		value, ok := payload[channel]
		if !ok {
			continue
		}

		parsed, err := parseFloat(value)
		if err != nil {
			batch.Invalid = append(batch.Invalid, FieldError{Channel: channel, Err: err})
			continue
		}
		batch.Values[channel] = parsed
	}

	return batch, nil
}

func parseFloat(value any) (float64, error) {
	var parsed float64
	var err error

	switch typed := value.(type) {
	case json.Number:
		parsed, err = typed.Float64()
	case string:
		parsed, err = strconv.ParseFloat(strings.TrimSpace(typed), 64)
	case float64:
		parsed = typed
	case float32:
		parsed = float64(typed)
	case int:
		parsed = float64(typed)
	case int64:
		parsed = float64(typed)
	default:
		return 0, fmt.Errorf("unsupported number type %T", value)
	}

	if err != nil {
		return 0, err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("value %v is not finite", parsed)
	}
	return parsed, nil
}
