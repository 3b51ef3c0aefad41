package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"
)

var ErrInvalidRequest = errors.New("invalid request")

const (
	errInvalidJSON   = "Invalid JSON"
	errNotJSONObject = "request must be a JSON object"
)

// Request is a decoded client frame. Only the correlation identifier is
// interpreted; every other field is ignored.
type Request struct {
	ID json.RawMessage
}

// Response carries either Data or Error. A successful response always encodes
// data, even when no channel has been received yet.
type Response struct {
	ID    json.RawMessage
	Data  map[string]float64
	Error string
}

func (response Response) MarshalJSON() ([]byte, error) {
	if response.Error != "" {
		return json.Marshal(struct {
			ID    json.RawMessage `json:"id,omitempty"`
			Error string          `json:"error"`
		}{ID: response.ID, Error: response.Error})
	}

	data := response.Data
	if data == nil {
		data = map[string]float64{}
	}
	return json.Marshal(struct {
		ID   json.RawMessage    `json:"id"`
		Data map[string]float64 `json:"data"`
	}{ID: response.ID, Data: data})
}

type decodeError struct {
	reason string
	id     json.RawMessage
}

func (err *decodeError) Error() string {
	return err.reason
}

func (err *decodeError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// DecodeRequest parses a frame as a JSON object and picks its identifier from
// "id", then "message_id". A null identifier counts as absent and yields a nil ID.
func DecodeRequest(frame []byte) (Request, error) {
	if !json.Valid(frame) {
		return Request{}, &decodeError{reason: errInvalidJSON, id: salvageID(frame)}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil || fields == nil {
		return Request{}, &decodeError{reason: errNotJSONObject}
	}

	for _, key := range []string{"id", "message_id"} {
		if raw, ok := fields[key]; ok && !isNull(raw) {
			return Request{ID: compact(raw)}, nil
		}
	}
	return Request{}, nil
}

// errorResponse builds the reply for a frame DecodeRequest rejected.
func errorResponse(err error) Response {
	var decodeErr *decodeError
	if errors.As(err, &decodeErr) {
		return Response{ID: decodeErr.id, Error: decodeErr.reason}
	}
	return Response{Error: err.Error()}
}

var idPattern = regexp.MustCompile(`"(id|message_id)"\s*:\s*(-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?|"(?:[^"\\]|\\.)*")`)

// salvageID scans an unparsable frame for an identifier so the client can
// still correlate the error. "id" wins over "message_id".
func salvageID(frame []byte) json.RawMessage {
	var fallback json.RawMessage
	for _, match := range idPattern.FindAllSubmatch(frame, -1) {
		candidate := match[2]
		if !json.Valid(candidate) {
			continue
		}
		if string(match[1]) == "id" {
			return append(json.RawMessage(nil), candidate...)
		}
		if fallback == nil {
			fallback = append(json.RawMessage(nil), candidate...)
		}
	}
	return fallback
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func compact(raw json.RawMessage) json.RawMessage {
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, raw); err != nil {
		return raw
	}
	return buffer.Bytes()
}

// IDSource hands out numeric identifiers for requests that carry none. The
// counter starts from the wall clock so restarts rarely reuse recent values.
type IDSource struct {
	next atomic.Int64
}

func NewIDSource(now time.Time) *IDSource {
	source := &IDSource{}
	source.next.Store(now.UnixMilli() % 100000)
	return source
}

func (source *IDSource) Next() json.RawMessage {
	return json.RawMessage(strconv.FormatInt(source.next.Add(1), 10))
}
