package model

import (
	"fmt"
	"strings"
)

// CID validation is syntactic only. The content behind a CID lives on an
// external network this tool never speaks to directly; all we can check
// locally is that the identifier is shaped like one.
//
// Two shapes are accepted:
//   - CIDv0: "Qm" + 44 base58btc characters (a sha2-256 multihash)
//   - CIDv1: "b" + base32 lower-case characters (the common text form)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidateCID returns an error unless cid is a plausibly well-formed
// content identifier.
func ValidateCID(cid string) error {
	if cid == "" {
		return fmt.Errorf("CID is empty")
	}
	if strings.HasPrefix(cid, "Qm") {
		if len(cid) != 46 {
			return fmt.Errorf("invalid CIDv0 %q: expected 46 characters, got %d", cid, len(cid))
		}
		for i, r := range cid {
			if !strings.ContainsRune(base58Alphabet, r) {
				return fmt.Errorf("invalid CIDv0 %q: bad character %q at position %d", cid, r, i)
			}
		}
		return nil
	}
	if strings.HasPrefix(cid, "b") {
		if len(cid) < 8 {
			return fmt.Errorf("invalid CIDv1 %q: too short", cid)
		}
		for i, r := range cid {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= '2' && r <= '7':
			default:
				return fmt.Errorf("invalid CIDv1 %q: bad character %q at position %d", cid, r, i)
			}
		}
		return nil
	}
	return fmt.Errorf("invalid CID %q: unrecognized prefix", cid)
}
