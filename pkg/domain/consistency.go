package domain

import "stockcore/pkg/fingerprint"

// RefreshFingerprint recomputes the variant's fingerprint from its attribute
// map. Stores call it on every variant write before the record becomes
// visible in transactional state; an error aborts the write.
func RefreshFingerprint(v *Variant) error {
	fp, err := fingerprint.Of(v.Attributes)
	if err != nil {
		return err
	}
	v.Fingerprint = fp
	return nil
}

// FingerprintMatches reports whether the stored fingerprint agrees with the
// attribute map.
func FingerprintMatches(v Variant) (bool, error) {
	fp, err := fingerprint.Of(v.Attributes)
	if err != nil {
		return false, err
	}
	return fp == v.Fingerprint, nil
}
