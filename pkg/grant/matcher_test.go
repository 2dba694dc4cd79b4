// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/storage"
)

func liveToken(idPayload, userPayload jwt.ClaimSet) *storage.GrantedToken {
	return &storage.GrantedToken{
		AccessToken:     "at",
		CreatedAt:       time.Now(),
		ExpiresIn:       3600,
		IDTokenPayload:  idPayload,
		UserInfoPayload: userPayload,
	}
}

func TestMatcherSkipsExpired(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	expired := &storage.GrantedToken{CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresIn: 3600}
	assert.Nil(t, m.FindEquivalent([]*storage.GrantedToken{expired}, time.Now(), nil, nil))
}

func TestMatcherNilPayloadMatchesAnyLiveToken(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	token := liveToken(jwt.ClaimSet{"sub": "anyone"}, nil)
	assert.Equal(t, token, m.FindEquivalent([]*storage.GrantedToken{token}, time.Now(), nil, nil))
}

func TestMatcherContainmentIsOneDirectional(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	stored := liveToken(
		jwt.ClaimSet{"sub": "user", "name": "Thierry", "extra": "kept"},
		jwt.ClaimSet{"sub": "user"},
	)

	found := m.FindEquivalent([]*storage.GrantedToken{stored}, time.Now(),
		jwt.ClaimSet{"sub": "user", "name": "Thierry"},
		jwt.ClaimSet{"sub": "user"})
	assert.Equal(t, stored, found, "extra stored claims do not disqualify")

	found = m.FindEquivalent([]*storage.GrantedToken{stored}, time.Now(),
		jwt.ClaimSet{"sub": "user", "email": "user@example.com"},
		jwt.ClaimSet{"sub": "user"})
	assert.Nil(t, found, "a claim missing from the stored token disqualifies")

	found = m.FindEquivalent([]*storage.GrantedToken{stored}, time.Now(),
		jwt.ClaimSet{"sub": "other"},
		jwt.ClaimSet{"sub": "other"})
	assert.Nil(t, found, "differing values disqualify")
}

func TestMatcherIgnoresVolatileClaims(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	stored := liveToken(
		jwt.ClaimSet{"sub": "user", jwt.ClaimIssuedAt: int64(100), jwt.ClaimExpiration: int64(200), jwt.ClaimAccessTokenHash: "aaa"},
		nil,
	)

	found := m.FindEquivalent([]*storage.GrantedToken{stored}, time.Now(),
		jwt.ClaimSet{"sub": "user", jwt.ClaimIssuedAt: int64(999), jwt.ClaimExpiration: int64(1999), jwt.ClaimCodeHash: "bbb"},
		nil)
	assert.Equal(t, stored, found)
}

func TestMatcherNormalizesJSONRepresentations(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	// A stored token fetched from Redis comes back through encoding/json:
	// int64 becomes float64 and []string becomes []any.
	stored := liveToken(jwt.ClaimSet{
		"aud":       []any{"client1", "client2"},
		"auth_time": float64(1700000000),
		"sub":       "user",
	}, nil)

	found := m.FindEquivalent([]*storage.GrantedToken{stored}, time.Now(), jwt.ClaimSet{
		"aud":       []string{"client1", "client2"},
		"auth_time": int64(1700000000),
		"sub":       "user",
	}, nil)
	assert.Equal(t, stored, found)
}
