// Package progress decodes the newline-delimited JSON progress streams
// returned by long-running backend operations.
package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	KindProgress Kind = iota + 1
	KindMessage
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindMessage:
		return "message"
	case KindComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is one decoded stream line. Progress events keep an accompanying
// message when the line carried one.
type Event struct {
	Kind    Kind
	Current float64
	Total   float64
	Message string
}

// Fraction returns Current/Total clamped to [0, 1], or 0 when Total is not positive.
func (e Event) Fraction() float64 {
	if e.Kind == KindComplete {
		return 1
	}
	if e.Total <= 0 {
		return 0
	}
	f := e.Current / e.Total
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func (e Event) String() string {
	switch e.Kind {
	case KindProgress:
		if e.Message != "" {
			return fmt.Sprintf("%s (%.0f/%.0f)", e.Message, e.Current, e.Total)
		}
		return fmt.Sprintf("%.0f/%.0f", e.Current, e.Total)
	case KindComplete:
		if e.Message != "" {
			return e.Message
		}
		return "complete"
	default:
		return e.Message
	}
}

type wireLine struct {
	Type    string          `json:"type"`
	Current json.RawMessage `json:"current"`
	Total   json.RawMessage `json:"total"`
	Message *string         `json:"message"`
}

// DecodeError is a complete line that could not be decoded.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode progress line: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ParseLine decodes a single line. ok is false for valid JSON objects that
// carry no recognisable event.
func ParseLine(line []byte) (Event, bool, error) {
	line = bytes.TrimSpace(line)
	var wire wireLine
	if err := json.Unmarshal(line, &wire); err != nil {
		return Event{}, false, &DecodeError{Line: append([]byte(nil), line...), Err: err}
	}
	message := ""
	if wire.Message != nil {
		message = *wire.Message
	}

	if strings.EqualFold(wire.Type, "complete") {
		return Event{Kind: KindComplete, Message: message}, true, nil
	}

	total, numericTotal := number(wire.Total)
	if !numericTotal && nestedComplete(wire.Total) {
		return Event{Kind: KindComplete, Message: message}, true, nil
	}
	if numericTotal && (strings.EqualFold(wire.Type, "progress") || len(wire.Current) > 0) {
		current, _ := number(wire.Current)
		return Event{Kind: KindProgress, Current: current, Total: total, Message: message}, true, nil
	}
	if wire.Message != nil {
		return Event{Kind: KindMessage, Message: message}, true, nil
	}
	return Event{}, false, nil
}

func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func nestedComplete(raw json.RawMessage) bool {
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var nested struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return false
	}
	return strings.EqualFold(nested.Type, "complete")
}
