package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func stateOf(active, deleted bool) LifecycleState {
	s := NewInactiveLifecycleState()
	if active {
		s = s.Apply(Active)
	}
	if deleted {
		s = s.Apply(Deleted)
	}
	return s
}

func TestNewLifecycleStateDefaults(t *testing.T) {
	s := NewLifecycleState()
	if !s.IsActive() || s.IsDeleted() {
		t.Fatalf("expected active and not deleted, got %s", s)
	}
	if !s.Check(Active) || !s.Check(NotDeleted) || s.Check(Deleted) || s.Check(NotActive) {
		t.Fatalf("unexpected flag evaluation for default state")
	}
	inactive := NewInactiveLifecycleState()
	if inactive.IsActive() || inactive.IsDeleted() {
		t.Fatalf("expected inactive and not deleted, got %s", inactive)
	}
}

func TestCheckUsesDisjunction(t *testing.T) {
	cases := []struct {
		name    string
		state   LifecycleState
		flags   []StateFlag
		expects bool
	}{
		{"active entity, delete or active", stateOf(true, false), []StateFlag{Deleted, Active}, true},
		{"active entity, delete or no_active", stateOf(true, false), []StateFlag{Deleted, NotActive}, false},
		{"deleted entity, delete or no_active", stateOf(true, true), []StateFlag{Deleted, NotActive}, true},
		{"inactive entity, no_active", stateOf(false, false), []StateFlag{NotActive}, true},
		{"inactive deleted entity, active or no_delete", stateOf(false, true), []StateFlag{Active, NotDeleted}, false},
		{"no flags", stateOf(true, false), nil, false},
		{"unknown flag", stateOf(true, false), []StateFlag{StateFlag(42)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Check(tc.flags...); got != tc.expects {
				t.Fatalf("Check(%v) on %s = %t, want %t", tc.flags, tc.state, got, tc.expects)
			}
		})
	}
}

func TestApplyTouchesOneBit(t *testing.T) {
	s := NewLifecycleState().Apply(Deleted)
	if !s.IsActive() || !s.IsDeleted() {
		t.Fatalf("expected delete to leave active bit untouched, got %s", s)
	}
	s = s.Apply(NotActive)
	if s.IsActive() || !s.IsDeleted() {
		t.Fatalf("expected no_active to leave deleted bit untouched, got %s", s)
	}
	s = s.Apply(NotDeleted).Apply(StateFlag(0))
	if s.IsActive() || s.IsDeleted() {
		t.Fatalf("unexpected state %s", s)
	}
}

func TestParseStateFlag(t *testing.T) {
	for _, f := range StateFlags() {
		parsed, err := ParseStateFlag(f.String())
		if err != nil || parsed != f {
			t.Fatalf("round trip %s: got %v, %v", f, parsed, err)
		}
	}
	if _, err := ParseStateFlag("archived"); !errors.Is(err, ErrUnknownStateFlag) {
		t.Fatalf("expected ErrUnknownStateFlag, got %v", err)
	}
	if StateFlag(9).Valid() {
		t.Fatalf("expected undeclared flag to be invalid")
	}
	if _, err := StateFlag(9).MarshalText(); err == nil {
		t.Fatalf("expected marshal error for undeclared flag")
	}
}

func TestLifecycleStateJSON(t *testing.T) {
	raw, err := json.Marshal(stateOf(false, true))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"is_active":false,"is_deleted":true}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	var decoded LifecycleState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != stateOf(false, true) {
		t.Fatalf("expected round trip, got %s", decoded)
	}

	var flag struct {
		Flag StateFlag `json:"flag"`
	}
	if err := json.Unmarshal([]byte(`{"flag":"no_delete"}`), &flag); err != nil || flag.Flag != NotDeleted {
		t.Fatalf("expected no_delete, got %v (%v)", flag.Flag, err)
	}
}

func TestTransitionErr(t *testing.T) {
	if err := (Transition{Applied: true}).Err(); err != nil {
		t.Fatalf("expected nil error for applied transition, got %v", err)
	}
	err := Transition{Required: Active, Target: Deleted, Failed: []EntityRef{Ref(EntityVariant, "v1")}}.Err()
	var guard *GuardFailedError
	if !errors.As(err, &guard) {
		t.Fatalf("expected GuardFailedError, got %v", err)
	}
	if guard.Error() != "guard active failed for variant/v1, delete not applied" {
		t.Fatalf("unexpected message %q", guard.Error())
	}
}

func TestCheckMatchesAnyHoldsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	flagGen := gen.IntRange(int(Active), int(NotDeleted)).Map(func(i int) StateFlag { return StateFlag(i) })

	properties.Property("check is true iff some flag holds", prop.ForAll(
		func(active, deleted bool, flags []StateFlag) bool {
			s := stateOf(active, deleted)
			want := false
			for _, f := range flags {
				switch f {
				case Active:
					want = want || active
				case NotActive:
					want = want || !active
				case Deleted:
					want = want || deleted
				case NotDeleted:
					want = want || !deleted
				}
			}
			return s.Check(flags...) == want
		},
		gen.Bool(),
		gen.Bool(),
		gen.SliceOf(flagGen),
	))

	properties.Property("apply then check holds", prop.ForAll(
		func(active, deleted bool, f StateFlag) bool {
			return stateOf(active, deleted).Apply(f).Check(f)
		},
		gen.Bool(),
		gen.Bool(),
		flagGen,
	))

	properties.TestingRun(t)
}
