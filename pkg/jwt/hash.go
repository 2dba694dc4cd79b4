// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package jwt

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"
)

// HalfHash computes the OIDC c_hash / at_hash value for a code or access
// token: the left half of the hash whose bit length matches the signing
// algorithm suffix, base64url-encoded without padding.
func HalfHash(value, sigAlg string) (string, error) {
	var h hash.Hash
	switch {
	case strings.HasSuffix(sigAlg, "256"):
		h = sha256.New()
	case strings.HasSuffix(sigAlg, "384"):
		h = sha512.New384()
	case strings.HasSuffix(sigAlg, "512"):
		h = sha512.New()
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, sigAlg)
	}
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]), nil
}
