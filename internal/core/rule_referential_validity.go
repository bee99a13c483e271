package core

import (
	"context"
	"errors"
	"fmt"

	"stockcore/pkg/domain"
)

const referentialValidityRuleName = "referential_validity"

// ReferentialValidityRule re-evaluates the reference gate at commit time
// against the state the transaction would commit. References a record held
// before the transaction started are not re-checked, so existing links
// survive later state changes of their targets.
func ReferentialValidityRule() domain.Rule {
	return referentialValidityRule{}
}

type referentialValidityRule struct{}

func (referentialValidityRule) Name() string { return referentialValidityRuleName }

func (r referentialValidityRule) Evaluate(_ context.Context, view TransactionView, changes []Change) (Result, error) {
	var res Result
	for _, rec := range writtenRecords(changes) {
		if !rec.fields {
			continue
		}
		current, ok := currentReferences(view, rec.ref)
		if !ok {
			continue
		}
		var before []domain.Reference
		if !rec.created {
			prev, err := referencesOf(rec.ref.Entity, rec.before)
			if err != nil {
				return Result{}, fmt.Errorf("%s: decode %s: %w", r.Name(), rec.ref, err)
			}
			before = prev
		}
		err := domain.CheckReferences(rec.ref, domain.AssignedReferences(before, current), view)
		var invalid *domain.InvalidReferenceStateError
		switch {
		case err == nil:
		case errors.As(err, &invalid):
			v := blockingViolation(r.Name(), rec.ref, "%s", invalid.Error())
			v.Err = invalid
			res.Violations = append(res.Violations, v)
		default:
			return Result{}, err
		}
	}
	return res, nil
}
