// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// DefaultAlgorithm is used for generated ephemeral signing keys.
const DefaultAlgorithm = "RS256"

// LoadSigningKey loads a private key from a PEM file.
// Supports RSA (PKCS1 and PKCS8) and ECDSA (SEC1 and PKCS8) formats.
func LoadSigningKey(keyPath string) (crypto.Signer, error) {
	keyPEM, err := os.ReadFile(keyPath) // #nosec G304 - keyPath is provided by the operator via config
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from signing key")
	}

	// Try PKCS1 first (RSA only)
	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return rsaKey, nil
	}

	// Try EC private key (SEC 1, ASN.1 DER form)
	if ecKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return ecKey, nil
	}

	// Try PKCS8 (supports both RSA and EC)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("signing key does not implement crypto.Signer")
	}

	return signer, nil
}

// DeriveKeyID computes a key id from the key using the RFC 7638 JWK
// thumbprint, base64url encoded without padding.
func DeriveKeyID(signer crypto.Signer) (string, error) {
	key, err := jwk.Import(signer)
	if err != nil {
		return "", fmt.Errorf("failed to import key: %w", err)
	}
	thumbprint, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// DeriveAlgorithm determines the JWS algorithm for the given key based on
// its type and parameters.
func DeriveAlgorithm(signer crypto.Signer) (string, error) {
	switch k := signer.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		return deriveECAlgorithm(k.Curve)
	default:
		return "", fmt.Errorf("unsupported key type: %T", signer)
	}
}

func deriveECAlgorithm(curve elliptic.Curve) (string, error) {
	switch curve {
	case elliptic.P256():
		return "ES256", nil
	case elliptic.P384():
		return "ES384", nil
	case elliptic.P521():
		return "ES512", nil
	default:
		return "", fmt.Errorf("unsupported EC curve: %s", curve.Params().Name)
	}
}

// LoadSigningJWK loads a PEM private key and wraps it as a signature key.
// The kid and algorithm are derived from the key material when empty.
func LoadSigningJWK(keyPath, kid, alg string) (*JSONWebKey, error) {
	signer, err := LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid, err = DeriveKeyID(signer)
		if err != nil {
			return nil, err
		}
	}
	if alg == "" {
		alg, err = DeriveAlgorithm(signer)
		if err != nil {
			return nil, err
		}
	}
	return Import(signer, kid, UseSignature, alg, OpSign, OpVerify)
}

// GenerateSigningJWK generates an ephemeral signing key for the algorithm.
// Generated keys are lost on restart, invalidating all issued tokens; this is
// intended for development only.
func GenerateSigningJWK(alg string) (*JSONWebKey, error) {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	signer, err := generatePrivateKey(alg)
	if err != nil {
		return nil, err
	}
	kid, err := DeriveKeyID(signer)
	if err != nil {
		return nil, err
	}
	return Import(signer, kid, UseSignature, alg, OpSign, OpVerify)
}

func generatePrivateKey(alg string) (crypto.Signer, error) {
	switch alg {
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		return rsa.GenerateKey(rand.Reader, 2048)
	case "ES256":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm for key generation: %s", alg)
	}
}
