// Package canonicalize produces RFC 8785 (JSON Canonicalization Scheme)
// output for signal payloads and LLM classifier inputs, so hashes are
// stable regardless of map key order or marshal-time formatting choices.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JSON marshals v with the standard library and then applies RFC 8785
// canonicalization, returning bytes with sorted object keys and a fixed
// number formatting independent of struct field order or map iteration
// order.
func JSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	return out, nil
}

// Hash returns the SHA-256 hex digest of the canonical JSON form of v. Used
// for source-asset structural diffing (two logically identical payloads in
// different key order hash the same) and for the LLM classifier's cache
// key space.
func Hash(v any) (string, error) {
	canon, err := JSON(v)
	if err != nil {
		return "", err
	}
	return HashBytes(canon), nil
}

// HashBytes hex-encodes the SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ClassifierInputHash reproduces the classifier's cache key:
// sha256("<old>|||<new>") truncated to 16 hex characters, prefixed
// "sha256:". Plain string concatenation (not JCS) matches the classifier's
// own cache-key contract, which hashes two description strings rather than
// a JSON document.
func ClassifierInputHash(oldDescription, newDescription string) string {
	sum := sha256.Sum256([]byte(oldDescription + "|||" + newDescription))
	return "sha256:" + hex.EncodeToString(sum[:])[:16]
}
