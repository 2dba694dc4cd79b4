// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package jwt

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHalfHash(t *testing.T) {
	t.Parallel()

	sum := sha256.Sum256([]byte("authorization-code"))
	want := base64.RawURLEncoding.EncodeToString(sum[:16])

	got, err := HalfHash("authorization-code", "RS256")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	es, err := HalfHash("authorization-code", "ES256")
	require.NoError(t, err)
	assert.Equal(t, want, es, "hash depends on the bit-length suffix, not the key family")
}

func TestHalfHashLengths(t *testing.T) {
	t.Parallel()

	for alg, decoded := range map[string]int{"HS256": 16, "RS384": 24, "PS512": 32} {
		got, err := HalfHash("value", alg)
		require.NoError(t, err)
		raw, err := base64.RawURLEncoding.DecodeString(got)
		require.NoError(t, err)
		assert.Len(t, raw, decoded)
	}
}

func TestHalfHashUnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	_, err := HalfHash("value", "none")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}
