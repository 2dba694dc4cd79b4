// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package keys provides the JSON Web Key model and the key store used to
// resolve signing and encryption keys, either by key id or by matching
// (use, algorithm, operations).
package keys

import (
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Use is the intended use of a key per RFC 7517 Section 4.2.
type Use string

// Key use values.
const (
	UseSignature  Use = "sig"
	UseEncryption Use = "enc"
)

// Operation is a key operation per RFC 7517 Section 4.3.
type Operation string

// Key operations.
const (
	OpSign    Operation = "sign"
	OpVerify  Operation = "verify"
	OpEncrypt Operation = "encrypt"
	OpDecrypt Operation = "decrypt"
)

// JSONWebKey is a key with its JOSE metadata. The key material is held as a
// jwx jwk.Key so both symmetric and asymmetric keys serialize the same way.
type JSONWebKey struct {
	// Kid is the key identifier used in JWS/JWE headers.
	Kid string

	// Kty is the key type (RSA, EC, oct).
	Kty string

	// Use declares whether the key signs or encrypts.
	Use Use

	// Alg is the JOSE algorithm this key is intended for (e.g. RS256, RSA-OAEP).
	Alg string

	// Operations lists the allowed key operations.
	Operations []Operation

	// Key is the key material.
	Key jwk.Key
}

// SupportsOperations reports whether the key allows every requested operation.
func (k *JSONWebKey) SupportsOperations(ops ...Operation) bool {
	for _, op := range ops {
		found := false
		for _, allowed := range k.Operations {
			if allowed == op {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Raw exports the raw key material (e.g. *rsa.PrivateKey, []byte for oct).
func (k *JSONWebKey) Raw() (any, error) {
	if k.Key == nil {
		return nil, fmt.Errorf("key %q has no material", k.Kid)
	}
	var raw any
	if err := jwk.Export(k.Key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key %q: %w", k.Kid, err)
	}
	return raw, nil
}

// RawPublic exports the public part of the key material. For symmetric keys
// the secret itself is returned, since there is no public half.
func (k *JSONWebKey) RawPublic() (any, error) {
	if k.Key == nil {
		return nil, fmt.Errorf("key %q has no material", k.Kid)
	}
	pub, err := jwk.PublicKeyOf(k.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key for %q: %w", k.Kid, err)
	}
	var raw any
	if err := jwk.Export(pub, &raw); err != nil {
		return nil, fmt.Errorf("failed to export public key for %q: %w", k.Kid, err)
	}
	return raw, nil
}

// Import wraps raw key material (crypto keys or a byte secret) into a
// JSONWebKey with the given metadata.
func Import(raw any, kid string, use Use, alg string, ops ...Operation) (*JSONWebKey, error) {
	key, err := jwk.Import(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import key material: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, fmt.Errorf("failed to set kid: %w", err)
	}
	return &JSONWebKey{
		Kid:        kid,
		Kty:        key.KeyType().String(),
		Use:        use,
		Alg:        alg,
		Operations: ops,
		Key:        key,
	}, nil
}

// FromJWK converts a parsed jwk.Key into the store model, reading the kid,
// use, alg and key_ops fields from the key itself.
func FromJWK(key jwk.Key) (*JSONWebKey, error) {
	kid, ok := key.KeyID()
	if !ok || kid == "" {
		return nil, fmt.Errorf("key has no kid")
	}
	out := &JSONWebKey{Kid: kid, Kty: key.KeyType().String(), Key: key}
	if v, ok := key.KeyUsage(); ok {
		out.Use = Use(v)
	}
	if v, ok := key.Algorithm(); ok {
		out.Alg = v.String()
	}
	if ops, ok := key.KeyOps(); ok {
		for _, op := range ops {
			out.Operations = append(out.Operations, Operation(op))
		}
	}
	return out, nil
}

// MarshalJSON serializes the key as a standard RFC 7517 JWK document.
func (k *JSONWebKey) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(k.Key)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["kid"] = k.Kid
	if k.Use != "" {
		m["use"] = string(k.Use)
	}
	if k.Alg != "" {
		m["alg"] = k.Alg
	}
	if len(k.Operations) > 0 {
		ops := make([]string, 0, len(k.Operations))
		for _, op := range k.Operations {
			ops = append(ops, string(op))
		}
		m["key_ops"] = ops
	}
	return json.Marshal(m)
}

// MarshalPublicJSON serializes the public half of the key as an RFC 7517
// JWK document, for publication in the server's key set.
func (k *JSONWebKey) MarshalPublicJSON() ([]byte, error) {
	pub, err := jwk.PublicKeyOf(k.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key for %q: %w", k.Kid, err)
	}
	public := &JSONWebKey{
		Kid:        k.Kid,
		Kty:        k.Kty,
		Use:        k.Use,
		Alg:        k.Alg,
		Operations: publicOperations(k.Operations),
		Key:        pub,
	}
	return public.MarshalJSON()
}

// publicOperations keeps only the operations a public key can perform.
func publicOperations(ops []Operation) []Operation {
	var out []Operation
	for _, op := range ops {
		if op == OpVerify || op == OpEncrypt {
			out = append(out, op)
		}
	}
	return out
}

// UnmarshalJSON parses an RFC 7517 JWK document.
func (k *JSONWebKey) UnmarshalJSON(data []byte) error {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return fmt.Errorf("failed to parse JWK: %w", err)
	}
	parsed, err := FromJWK(key)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}
