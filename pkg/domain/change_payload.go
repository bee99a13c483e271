package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned when decoding an undefined or empty payload.
var ErrEmptyPayload = errors.New("change payload is empty")

// ChangePayload wraps a JSON snapshot of a record before or after a change.
// Rules decode it into the typed record they inspect.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload builds a payload wrapper from raw JSON. The bytes are cloned
// to prevent callers from mutating shared state. Passing a nil slice yields a
// defined but empty payload; use UndefinedChangePayload for "not set".
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRawMessage(raw)
	}
	return payload
}

// NewChangePayloadFromValue marshals a typed value into a ChangePayload.
func NewChangePayloadFromValue[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// UndefinedChangePayload returns an uninitialized payload wrapper.
func UndefinedChangePayload() ChangePayload {
	return ChangePayload{}
}

// Defined reports whether the payload has been initialized.
func (p ChangePayload) Defined() bool {
	return p.defined
}

// IsEmpty reports whether the payload contains no bytes.
func (p ChangePayload) IsEmpty() bool {
	if !p.defined {
		return true
	}
	return len(p.raw) == 0
}

// Raw returns a cloned copy of the underlying JSON bytes. Nil is returned when
// the payload is undefined or empty.
func (p ChangePayload) Raw() json.RawMessage {
	if !p.defined || len(p.raw) == 0 {
		return nil
	}
	return cloneRawMessage(p.raw)
}

// Decode unmarshals the payload into target.
func (p ChangePayload) Decode(target any) error {
	if p.IsEmpty() {
		return ErrEmptyPayload
	}
	return json.Unmarshal(p.raw, target)
}

// NewChange records a mutation of a catalog record. It fails when either
// snapshot cannot be marshalled.
func NewChange[T any](entity EntityType, action Action, id string, before *T, after T) (Change, error) {
	afterPayload, err := NewChangePayloadFromValue(after)
	if err != nil {
		return Change{}, fmt.Errorf("snapshot %s %s: %w", entity, id, err)
	}
	change := Change{Entity: entity, Action: action, ID: id, After: afterPayload}
	if before != nil {
		beforePayload, err := NewChangePayloadFromValue(*before)
		if err != nil {
			return Change{}, fmt.Errorf("snapshot %s %s: %w", entity, id, err)
		}
		change.Before = beforePayload
	}
	return change, nil
}

func cloneRawMessage(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
