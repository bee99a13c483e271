// Package fingerprint computes content-addressed identities for attribute
// assignments. Values are normalised, serialised as RFC 8785 canonical JSON
// and hashed with a domain-separated SHA-256.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// DomainVariantAttributes prefixes every variant attribute digest. The
// version suffix leaves room for a future algorithm change without colliding
// with digests already persisted.
const DomainVariantAttributes = "stockcore/variant-attributes/v1"

// MaxSafeInteger bounds the integers accepted for fingerprinting. Canonical
// JSON carries numbers as IEEE 754 doubles, so larger integers would not
// round-trip and distinct values could share a digest.
const MaxSafeInteger = 1 << 53

// SerializationError reports a value that has no canonical representation.
type SerializationError struct {
	Path   string
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return "fingerprint: " + e.Reason
	}
	return fmt.Sprintf("fingerprint: %s at %s", e.Reason, e.Path)
}

// Canonical returns the canonical JSON encoding of value. Two values that are
// equal as mappings (regardless of key insertion order or Unicode
// composition of strings) produce identical bytes.
func Canonical(value any) ([]byte, error) {
	normalized, err := normalize(reflect.ValueOf(value), "$")
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, &SerializationError{Reason: err.Error()}
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &SerializationError{Reason: err.Error()}
	}
	return out, nil
}

// Of returns the hex digest of the canonical form of value.
func Of(value any) (string, error) {
	return WithDomain(DomainVariantAttributes, value)
}

// WithDomain hashes the canonical form of value under the supplied domain.
func WithDomain(domain string, value any) (string, error) {
	canonical, err := Canonical(value)
	if err != nil {
		return "", err
	}
	return hashWithDomain(domain, canonical), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(v reflect.Value, path string) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	if n, ok := v.Interface().(json.Number); ok {
		return normalizeNumber(n, path)
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		return normalize(v.Elem(), path)
	case reflect.String:
		return normalizeString(v.String(), path)
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := v.Int()
		if n > MaxSafeInteger || n < -MaxSafeInteger {
			return nil, unsafeInteger(path, strconv.FormatInt(n, 10))
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := v.Uint()
		if n > MaxSafeInteger {
			return nil, unsafeInteger(path, strconv.FormatUint(n, 10))
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &SerializationError{Path: path, Reason: "non-finite number"}
		}
		return f, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("unsupported map key type %s", v.Type().Key())}
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, err := normalizeString(iter.Key().String(), path)
			if err != nil {
				return nil, err
			}
			if _, dup := out[key]; dup {
				return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("keys collide after normalisation: %q", key)}
			}
			elem, err := normalize(iter.Value(), path+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = elem
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return []any{}, nil
		}
		out := make([]any, v.Len())
		for i := range v.Len() {
			elem, err := normalize(v.Index(i), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	default:
		return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("unsupported type %s", v.Type())}
	}
}

// normalizeString rejects invalid UTF-8, which would otherwise be replaced by
// U+FFFD during encoding, and returns the NFC form of s.
func normalizeString(s, path string) (string, error) {
	if !utf8.ValidString(s) {
		return "", &SerializationError{Path: path, Reason: fmt.Sprintf("invalid UTF-8 in %q", s)}
	}
	return norm.NFC.String(s), nil
}

// normalizeNumber accepts any finite JSON number literal, but integer
// literals must lie within MaxSafeInteger.
func normalizeNumber(n json.Number, path string) (any, error) {
	if _, err := n.Float64(); err != nil {
		return nil, &SerializationError{Path: path, Reason: fmt.Sprintf("invalid number %q", n)}
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || i > MaxSafeInteger || i < -MaxSafeInteger {
			return nil, unsafeInteger(path, n.String())
		}
	}
	return n, nil
}

func unsafeInteger(path, literal string) error {
	return &SerializationError{Path: path, Reason: fmt.Sprintf("integer %s exceeds 2^53", literal)}
}
