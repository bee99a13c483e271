package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStateFlag is returned when a flag symbol or value is not declared.
var ErrUnknownStateFlag = errors.New("unknown state flag")

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidReferenceStateError is raised when a reference points at a record
// that is missing, fails the lifecycle predicate declared for the field, or
// is already claimed through a one-to-one field.
type InvalidReferenceStateError struct {
	Owner    EntityRef
	Field    string
	Target   EntityRef
	Required StateFlag
	Missing  bool
	// ClaimedBy is set when a one-to-one target already has another owner.
	ClaimedBy string
}

func (e *InvalidReferenceStateError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("%s %s: %s references missing %s %s", e.Owner.Entity, e.Owner.ID, e.Field, e.Target.Entity, e.Target.ID)
	case e.ClaimedBy != "":
		return fmt.Sprintf("%s %s: %s target %s %s already referenced by %s", e.Owner.Entity, e.Owner.ID, e.Field, e.Target.Entity, e.Target.ID, e.ClaimedBy)
	default:
		return fmt.Sprintf("%s %s: %s target %s %s does not satisfy %s", e.Owner.Entity, e.Owner.ID, e.Field, e.Target.Entity, e.Target.ID, e.Required)
	}
}

// GuardFailedError reports a guarded transition whose precondition did not
// hold for every target.
type GuardFailedError struct {
	Required StateFlag
	Target   StateFlag
	Failed   []EntityRef
}

func (e *GuardFailedError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, ref := range e.Failed {
		ids = append(ids, ref.String())
	}
	return fmt.Sprintf("guard %s failed for %s, %s not applied", e.Required, strings.Join(ids, ", "), e.Target)
}

// DuplicateFingerprintError reports an attempt to store a second variant with
// the same attribute fingerprint under one template.
type DuplicateFingerprintError struct {
	TemplateID  string
	Fingerprint string
	ExistingID  string
}

func (e *DuplicateFingerprintError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("template %s already has a variant with fingerprint %s", e.TemplateID, e.Fingerprint)
	}
	return fmt.Sprintf("template %s already has variant %s with fingerprint %s", e.TemplateID, e.ExistingID, e.Fingerprint)
}

// ValidationError reports an invalid field value.
type ValidationError struct {
	Entity  EntityType
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
}
