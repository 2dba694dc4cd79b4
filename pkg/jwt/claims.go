// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package jwt implements the compact JWS/JWE token codec: signing and
// verifying claim-sets, encrypting and decrypting compact tokens, and header
// inspection for key selection.
package jwt

import (
	"encoding/json"
	"fmt"
)

// Standard claim names used across the server (OIDC Core Section 2).
const (
	ClaimIssuer          = "iss"
	ClaimSubject         = "sub"
	ClaimAudience        = "aud"
	ClaimExpiration      = "exp"
	ClaimIssuedAt        = "iat"
	ClaimNonce           = "nonce"
	ClaimACR             = "acr"
	ClaimAMR             = "amr"
	ClaimAzp             = "azp"
	ClaimAuthTime        = "auth_time"
	ClaimCodeHash        = "c_hash"
	ClaimAccessTokenHash = "at_hash"
)

// ClaimSet is a decoded JWS/JWE payload: a mapping from claim name to value.
// Values follow encoding/json conventions (string, float64, []any, nested
// map[string]any).
type ClaimSet map[string]any

// GetString returns the claim as a string, or "" if absent or not a string.
func (c ClaimSet) GetString(name string) string {
	v, _ := c[name].(string)
	return v
}

// Issuer returns the iss claim.
func (c ClaimSet) Issuer() string { return c.GetString(ClaimIssuer) }

// Subject returns the sub claim.
func (c ClaimSet) Subject() string { return c.GetString(ClaimSubject) }

// Audiences returns the aud claim, normalizing the single-string form to a
// one-element slice.
func (c ClaimSet) Audiences() []string {
	switch v := c[ClaimAudience].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Expiration returns the exp claim as Unix-epoch seconds, or 0 if absent.
func (c ClaimSet) Expiration() int64 { return c.unixClaim(ClaimExpiration) }

// IssuedAt returns the iat claim as Unix-epoch seconds, or 0 if absent.
func (c ClaimSet) IssuedAt() int64 { return c.unixClaim(ClaimIssuedAt) }

func (c ClaimSet) unixClaim(name string) int64 {
	switch v := c[name].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// Clone returns a shallow copy of the claim-set. A nil set stays nil.
func (c ClaimSet) Clone() ClaimSet {
	if c == nil {
		return nil
	}
	out := make(ClaimSet, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// ParseClaimSet decodes a JSON object into a ClaimSet.
func ParseClaimSet(data []byte) (ClaimSet, error) {
	var c ClaimSet
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode claim-set: %w", err)
	}
	return c, nil
}
