package ir

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// ClaimIDPrefix marks claim identifiers so they cannot be mistaken for cids.
const ClaimIDPrefix = "clm_"

// claimDigestLen is the number of hex characters kept from the claim digest.
const claimDigestLen = 16

var (
	cidPattern     = regexp.MustCompile(`^[0-9a-f]{64}$`)
	claimIDPattern = regexp.MustCompile(`^clm_[0-9a-f]{16}$`)
)

// ContentID computes the content identifier of a payload: the lowercase hex
// SHA-256 of the raw bytes. Identical payloads always map to the same cid.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ClaimID derives the claim identifier from the claim text.
// Format: "clm_" + first 16 hex chars of SHA-1(text).
//
// The digest covers the exact bytes of text. Proposing the same text twice
// yields the same id; that collision is how duplicate claims are detected.
func ClaimID(text string) string {
	sum := sha1.Sum([]byte(text))
	return ClaimIDPrefix + hex.EncodeToString(sum[:])[:claimDigestLen]
}

// ValidCID reports whether s has the shape of a content identifier.
func ValidCID(s string) bool {
	return cidPattern.MatchString(s)
}

// ValidClaimID reports whether s has the shape of a claim identifier.
func ValidClaimID(s string) bool {
	return claimIDPattern.MatchString(s)
}
