package core

import (
	"context"
	"fmt"

	"stockcore/pkg/domain"
)

func validFlags(flags ...StateFlag) error {
	for _, f := range flags {
		if !f.Valid() {
			return fmt.Errorf("%w: %d", domain.ErrUnknownStateFlag, uint8(f))
		}
	}
	return nil
}

func lifecycleOf(view TransactionView, ref EntityRef) (domain.LifecycleState, error) {
	state, ok := view.Lifecycle(ref)
	if !ok {
		return domain.LifecycleState{}, domain.ErrNotFound{Entity: ref.Entity, ID: ref.ID}
	}
	return state, nil
}

// Check reports whether any of flags holds for ref.
func (s *Service) Check(ctx context.Context, ref EntityRef, flags ...StateFlag) (bool, error) {
	if err := validFlags(flags...); err != nil {
		return false, err
	}
	var holds bool
	err := s.view(ctx, "check", func(view TransactionView) error {
		state, err := lifecycleOf(view, ref)
		if err != nil {
			return err
		}
		holds = state.Check(flags...)
		return nil
	})
	return holds, err
}

// SetState unconditionally applies flag to ref.
func (s *Service) SetState(ctx context.Context, ref EntityRef, flag StateFlag) error {
	_, err := s.run(ctx, "set_state", func(tx Transaction) error {
		return tx.SetState(ref, flag)
	})
	return err
}

// GuardedTransition applies target to ref only when required holds. Check
// and set run in one store transaction. A failed guard is reported through
// the returned Transition, not as an error.
func (s *Service) GuardedTransition(ctx context.Context, ref EntityRef, required, target StateFlag) (Transition, error) {
	var out Transition
	_, err := s.run(ctx, "guarded_transition", func(tx Transaction) error {
		var err error
		out, err = GuardedTransitionTx(tx, ref, required, target)
		return err
	})
	if err != nil {
		return Transition{}, err
	}
	if !out.Applied {
		s.logger.Info("guard not satisfied", "ref", ref.String(), "required", required.String(), "target", target.String())
	}
	return out, nil
}

// CheckAll reports whether flag holds for every member of refs. An empty
// set satisfies every flag.
func (s *Service) CheckAll(ctx context.Context, flag StateFlag, refs []EntityRef) (bool, error) {
	if err := validFlags(flag); err != nil {
		return false, err
	}
	all := true
	err := s.view(ctx, "check_all", func(view TransactionView) error {
		for _, ref := range refs {
			state, err := lifecycleOf(view, ref)
			if err != nil {
				return err
			}
			if !state.Holds(flag) {
				all = false
			}
		}
		return nil
	})
	return all && err == nil, err
}

// SetAll applies flag to every member of refs in one transaction; any
// failure leaves every member unchanged.
func (s *Service) SetAll(ctx context.Context, flag StateFlag, refs []EntityRef) error {
	_, err := s.run(ctx, "set_all", func(tx Transaction) error {
		for _, ref := range refs {
			if err := tx.SetState(ref, flag); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// GuardedTransitionAll applies target to every member of refs when required
// holds for all of them, as one transaction. Otherwise nothing changes and
// the members failing the guard are reported.
func (s *Service) GuardedTransitionAll(ctx context.Context, required, target StateFlag, refs []EntityRef) (Transition, error) {
	var out Transition
	_, err := s.run(ctx, "guarded_transition_all", func(tx Transaction) error {
		var err error
		out, err = GuardedTransitionAllTx(tx, required, target, refs)
		return err
	})
	if err != nil {
		return Transition{}, err
	}
	if !out.Applied {
		s.logger.Info("bulk guard not satisfied", "required", required.String(), "target", target.String(), "failed", len(out.Failed))
	}
	return out, nil
}

// ListRefs returns every record of entity for which any of filter holds,
// ordered by id. No filter selects every record.
func (s *Service) ListRefs(ctx context.Context, entity EntityType, filter ...StateFlag) ([]EntityRef, error) {
	if err := validFlags(filter...); err != nil {
		return nil, err
	}
	var out []EntityRef
	err := s.view(ctx, "list_refs", func(view TransactionView) error {
		for _, ref := range view.ListRefs(entity) {
			if len(filter) > 0 {
				state, _ := view.Lifecycle(ref)
				if !state.Check(filter...) {
					continue
				}
			}
			out = append(out, ref)
		}
		return nil
	})
	return out, err
}

// GuardedTransitionTx is GuardedTransition inside a caller-managed
// transaction.
func GuardedTransitionTx(tx Transaction, ref EntityRef, required, target StateFlag) (Transition, error) {
	if err := validFlags(required, target); err != nil {
		return Transition{}, err
	}
	out := Transition{Required: required, Target: target}
	state, err := lifecycleOf(tx, ref)
	if err != nil {
		return Transition{}, err
	}
	if !state.Check(required) {
		out.Failed = []EntityRef{ref}
		return out, nil
	}
	if err := tx.SetState(ref, target); err != nil {
		return Transition{}, err
	}
	out.Applied = true
	return out, nil
}

// GuardedTransitionAllTx is GuardedTransitionAll inside a caller-managed
// transaction.
func GuardedTransitionAllTx(tx Transaction, required, target StateFlag, refs []EntityRef) (Transition, error) {
	if err := validFlags(required, target); err != nil {
		return Transition{}, err
	}
	out := Transition{Required: required, Target: target}
	for _, ref := range refs {
		state, err := lifecycleOf(tx, ref)
		if err != nil {
			return Transition{}, err
		}
		if !state.Holds(required) {
			out.Failed = append(out.Failed, ref)
		}
	}
	if len(out.Failed) > 0 {
		return out, nil
	}
	for _, ref := range refs {
		if err := tx.SetState(ref, target); err != nil {
			return Transition{}, err
		}
	}
	out.Applied = true
	return out, nil
}
