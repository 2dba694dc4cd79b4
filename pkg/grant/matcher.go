// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"reflect"
	"time"

	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/storage"
)

// volatileClaims are excluded from payload comparison: the hashes change
// with every minted token and the timestamps with every issuance.
var volatileClaims = map[string]bool{
	jwt.ClaimCodeHash:        true,
	jwt.ClaimAccessTokenHash: true,
	jwt.ClaimExpiration:      true,
	jwt.ClaimIssuedAt:        true,
}

// Matcher decides whether a stored granted token can stand in for a token
// about to be issued.
type Matcher struct{}

// NewMatcher creates a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// FindEquivalent returns the first live candidate whose claim-sets contain
// everything the new payloads carry. A nil id_token payload skips claim
// comparison entirely: any live token for the same scope and client matches.
func (m *Matcher) FindEquivalent(candidates []*storage.GrantedToken, now time.Time, idPayload, userPayload jwt.ClaimSet) *storage.GrantedToken {
	for _, candidate := range candidates {
		if candidate.Expired(now) {
			continue
		}
		if idPayload == nil {
			return candidate
		}
		if payloadContains(candidate.IDTokenPayload, idPayload) &&
			payloadContains(candidate.UserInfoPayload, userPayload) {
			return candidate
		}
	}
	return nil
}

// payloadContains reports whether existing carries every non-volatile claim
// of wanted with an equal value. The containment is one-directional: extra
// claims in existing never disqualify it.
func payloadContains(existing, wanted jwt.ClaimSet) bool {
	for name, want := range wanted {
		if volatileClaims[name] {
			continue
		}
		have, ok := existing[name]
		if !ok || !claimEqual(have, want) {
			return false
		}
	}
	return true
}

// claimEqual compares claim values across the representations a claim can
// take after a JSON round trip.
func claimEqual(a, b any) bool {
	na, nb := normalizeClaim(a), normalizeClaim(b)
	return reflect.DeepEqual(na, nb)
}

func normalizeClaim(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeClaim(item)
		}
		return out
	default:
		return v
	}
}
