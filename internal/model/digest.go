package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainJobSpec is the domain-separation prefix for spec digests.
// The version suffix leaves room for an algorithm migration.
const DomainJobSpec = "trawl/jobspec/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecDigest computes the content-addressed digest of a job spec.
// The digest is stable: field order, map iteration order, and Unicode
// representation never affect it.
func SpecDigest(spec JobSpec) (string, error) {
	// Round-trip through JSON to get a plain map the canonical
	// marshaler understands. UseNumber avoids float conversion.
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("spec digest: marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("spec digest: decode: %w", err)
	}

	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("spec digest: canonicalize: %w", err)
	}
	return hashWithDomain(DomainJobSpec, canonical), nil
}

// MustSpecDigest is like SpecDigest but panics on error.
// Use only in tests or when the spec is known to be valid.
func MustSpecDigest(spec JobSpec) string {
	d, err := SpecDigest(spec)
	if err != nil {
		panic(err)
	}
	return d
}
