package domain

import (
	"encoding/json"
	"fmt"
)

// StateFlag names one of the four lifecycle predicates. The set is closed;
// every evaluation goes through an exhaustive switch.
type StateFlag uint8

// Lifecycle predicates. The string forms match the symbols accepted by
// ParseStateFlag.
const (
	Active StateFlag = iota + 1
	NotActive
	Deleted
	NotDeleted
)

var stateFlagNames = map[StateFlag]string{
	Active:     "active",
	NotActive:  "no_active",
	Deleted:    "delete",
	NotDeleted: "no_delete",
}

// StateFlags lists every flag in declaration order.
func StateFlags() []StateFlag {
	return []StateFlag{Active, NotActive, Deleted, NotDeleted}
}

// ParseStateFlag resolves a flag symbol.
func ParseStateFlag(s string) (StateFlag, error) {
	for _, f := range StateFlags() {
		if stateFlagNames[f] == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStateFlag, s)
}

// Valid reports whether f is one of the declared flags.
func (f StateFlag) Valid() bool {
	_, ok := stateFlagNames[f]
	return ok
}

func (f StateFlag) String() string {
	if name, ok := stateFlagNames[f]; ok {
		return name
	}
	return fmt.Sprintf("StateFlag(%d)", uint8(f))
}

// MarshalText encodes the flag symbol.
func (f StateFlag) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStateFlag, uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText decodes a flag symbol.
func (f *StateFlag) UnmarshalText(b []byte) error {
	parsed, err := ParseStateFlag(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// LifecycleState carries the two independent lifecycle booleans shared by
// every entity. The zero value is inactive and not deleted; records obtain
// their initial state from NewLifecycleState or NewInactiveLifecycleState.
type LifecycleState struct {
	active  bool
	deleted bool
}

// NewLifecycleState returns the default state for freshly created records.
func NewLifecycleState() LifecycleState {
	return LifecycleState{active: true}
}

// NewInactiveLifecycleState returns the state synthesized variants start in.
func NewInactiveLifecycleState() LifecycleState {
	return LifecycleState{}
}

// IsActive reports the active bit.
func (s LifecycleState) IsActive() bool { return s.active }

// IsDeleted reports the deleted bit.
func (s LifecycleState) IsDeleted() bool { return s.deleted }

// Holds evaluates a single flag.
func (s LifecycleState) Holds(f StateFlag) bool {
	switch f {
	case Active:
		return s.active
	case NotActive:
		return !s.active
	case Deleted:
		return s.deleted
	case NotDeleted:
		return !s.deleted
	default:
		return false
	}
}

// Check reports whether at least one of flags holds. An empty list never
// holds.
func (s LifecycleState) Check(flags ...StateFlag) bool {
	for _, f := range flags {
		if s.Holds(f) {
			return true
		}
	}
	return false
}

// Apply returns the state with the bit named by f assigned. Unknown flags
// leave the state unchanged.
func (s LifecycleState) Apply(f StateFlag) LifecycleState {
	switch f {
	case Active:
		s.active = true
	case NotActive:
		s.active = false
	case Deleted:
		s.deleted = true
	case NotDeleted:
		s.deleted = false
	}
	return s
}

func (s LifecycleState) String() string {
	return fmt.Sprintf("active=%t deleted=%t", s.active, s.deleted)
}

type lifecycleJSON struct {
	IsActive  bool `json:"is_active"`
	IsDeleted bool `json:"is_deleted"`
}

// MarshalJSON encodes the state as {"is_active":..,"is_deleted":..}.
func (s LifecycleState) MarshalJSON() ([]byte, error) {
	return json.Marshal(lifecycleJSON{IsActive: s.active, IsDeleted: s.deleted})
}

// UnmarshalJSON restores a persisted state.
func (s *LifecycleState) UnmarshalJSON(b []byte) error {
	var aux lifecycleJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.active = aux.IsActive
	s.deleted = aux.IsDeleted
	return nil
}

// Transition reports the outcome of a guarded transition. A negative
// outcome is a normal result, not an error.
type Transition struct {
	Applied  bool
	Required StateFlag
	Target   StateFlag
	Failed   []EntityRef
}

// Err converts a negative outcome into a *GuardFailedError.
func (t Transition) Err() error {
	if t.Applied {
		return nil
	}
	return &GuardFailedError{Required: t.Required, Target: t.Target, Failed: append([]EntityRef(nil), t.Failed...)}
}
