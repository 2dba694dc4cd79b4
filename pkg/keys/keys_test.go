// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportAndExport(t *testing.T) {
	t.Parallel()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := Import(private, "1", UseSignature, "RS256", OpSign, OpVerify)
	require.NoError(t, err)
	assert.Equal(t, "1", key.Kid)
	assert.Equal(t, "RSA", key.Kty)
	assert.True(t, key.SupportsOperations(OpSign, OpVerify))
	assert.False(t, key.SupportsOperations(OpEncrypt))

	raw, err := key.Raw()
	require.NoError(t, err)
	_, ok := raw.(*rsa.PrivateKey)
	assert.True(t, ok)

	pub, err := key.RawPublic()
	require.NoError(t, err)
	_, ok = pub.(*rsa.PublicKey)
	assert.True(t, ok)
}

func TestImportSymmetric(t *testing.T) {
	t.Parallel()

	key, err := Import([]byte("shared-secret"), "2", UseSignature, "HS256", OpSign, OpVerify)
	require.NoError(t, err)
	assert.Equal(t, "oct", key.Kty)

	raw, err := key.Raw()
	require.NoError(t, err)
	assert.Equal(t, []byte("shared-secret"), raw)
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := GenerateSigningJWK("ES256")
	require.NoError(t, err)

	data, err := json.Marshal(key)
	require.NoError(t, err)

	var parsed JSONWebKey
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, key.Kid, parsed.Kid)
	assert.Equal(t, "EC", parsed.Kty)
	assert.Equal(t, UseSignature, parsed.Use)
	assert.Equal(t, "ES256", parsed.Alg)
	assert.ElementsMatch(t, []Operation{OpSign, OpVerify}, parsed.Operations)
}

func TestMarshalPublicJSON(t *testing.T) {
	t.Parallel()

	key, err := GenerateSigningJWK("RS256")
	require.NoError(t, err)

	data, err := key.MarshalPublicJSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, key.Kid, doc["kid"])
	assert.NotContains(t, doc, "d", "the private exponent stays private")
	assert.Contains(t, doc, "n")
	assert.Equal(t, []any{"verify"}, doc["key_ops"])
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	sig, err := GenerateSigningJWK("RS256")
	require.NoError(t, err)
	other, err := GenerateSigningJWK("ES256")
	require.NoError(t, err)

	store := NewMemoryStore(sig)
	store.Add(other)
	ctx := context.Background()

	byKid, err := store.GetByKid(ctx, sig.Kid)
	require.NoError(t, err)
	assert.Equal(t, sig, byKid)

	missing, err := store.GetByKid(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byAlg, err := store.GetByAlgorithm(ctx, UseSignature, "ES256", OpSign)
	require.NoError(t, err)
	assert.Equal(t, other, byAlg)

	noMatch, err := store.GetByAlgorithm(ctx, UseEncryption, "RS256", OpEncrypt)
	require.NoError(t, err)
	assert.Nil(t, noMatch)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoadSigningJWKFromPEM(t *testing.T) {
	t.Parallel()

	t.Run("pkcs8 rsa", func(t *testing.T) {
		private, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		der, err := x509.MarshalPKCS8PrivateKey(private)
		require.NoError(t, err)
		path := writePEM(t, "PRIVATE KEY", der)

		key, err := LoadSigningJWK(path, "", "")
		require.NoError(t, err)
		assert.Equal(t, "RS256", key.Alg)
		assert.NotEmpty(t, key.Kid)
	})

	t.Run("sec1 ec", func(t *testing.T) {
		private, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		der, err := x509.MarshalECPrivateKey(private)
		require.NoError(t, err)
		path := writePEM(t, "EC PRIVATE KEY", der)

		key, err := LoadSigningJWK(path, "primary", "")
		require.NoError(t, err)
		assert.Equal(t, "ES384", key.Alg)
		assert.Equal(t, "primary", key.Kid)
	})

	t.Run("not a key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.pem")
		require.NoError(t, os.WriteFile(path, []byte("not pem at all"), 0o600))
		_, err := LoadSigningJWK(path, "", "")
		assert.Error(t, err)
	})
}

func writePEM(t *testing.T, blockType string, der []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}
