package core

import (
	"context"

	"stockcore/pkg/domain"
)

const fingerprintConsistencyRuleName = "fingerprint_consistency"

// FingerprintConsistencyRule blocks a commit in which a written variant's
// stored fingerprint disagrees with its attribute map, or in which two
// variants of one template share a fingerprint.
func FingerprintConsistencyRule() domain.Rule {
	return fingerprintConsistencyRule{}
}

type fingerprintConsistencyRule struct{}

func (fingerprintConsistencyRule) Name() string { return fingerprintConsistencyRuleName }

func (r fingerprintConsistencyRule) Evaluate(_ context.Context, view TransactionView, changes []Change) (Result, error) {
	var res Result
	for _, rec := range writtenRecords(changes) {
		if rec.ref.Entity != domain.EntityVariant || !rec.fields {
			continue
		}
		v, ok := view.FindVariant(rec.ref.ID)
		if !ok {
			continue
		}
		match, err := domain.FingerprintMatches(v)
		if err != nil {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), rec.ref, "attributes cannot be fingerprinted: %v", err))
			continue
		}
		if !match {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), rec.ref, "stored fingerprint %s does not match attributes", v.Fingerprint))
			continue
		}
		if owner, ok := view.FindVariantByFingerprint(v.TemplateID, v.Fingerprint); ok && owner.ID != v.ID {
			res.Violations = append(res.Violations, blockingViolation(r.Name(), rec.ref, "fingerprint already used by variant %s", owner.ID))
		}
	}
	return res, nil
}
