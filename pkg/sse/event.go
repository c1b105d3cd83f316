package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Event is one item flowing through an SSEManager consumer queue.
type Event struct {
	TaskID    string          `json:"-"`
	Type      string          `json:"-"` // status_update | artifact_update | final_response | error
	Sequence  int64           `json:"-"` // set only for persisted/replayed events
	CreatedAt int64           `json:"-"`
	Data      json.RawMessage `json:"-"`
}

// Format renders e as wire-ready SSE frames: "event: <type>\ndata: <line>\n\n"
// per line of the payload, terminated by a blank line, matching the SSE
// spec's multi-line data framing.
func Format(eventType string, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", eventType)
	lines := bytes.Split(data, []byte("\n"))
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// MarshalEnvelope JSON-encodes a manager-originated value (error events,
// status wrappers — never the opaque agent payload itself, which arrives
// pre-serialized off the bus) after sanitizing NaN/Infinity floats to null,
// since encoding/json otherwise refuses to marshal them at all.
func MarshalEnvelope(v any) ([]byte, error) {
	return json.Marshal(sanitizeFloats(v))
}

func sanitizeFloats(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = sanitizeFloats(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = sanitizeFloats(val)
		}
		return out
	default:
		return v
	}
}

// ErrorEvent builds the standard `error` SSE payload (spec §6 "SSE error
// events contain a JSON object with a single error field").
func ErrorEvent(message string) []byte {
	data, err := MarshalEnvelope(map[string]any{"error": message})
	if err != nil {
		data = []byte(`{"error":"internal error"}`)
	}
	return data
}
