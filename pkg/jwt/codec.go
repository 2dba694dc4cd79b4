// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"strings"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/openauthd/openauthd/pkg/keys"
)

// Codec errors. VerifySignature and Decrypt callers treat a nil result as
// "not valid"; the error says why without leaking key material.
var (
	ErrMalformedToken       = errors.New("token is not a compact JWS")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrSignatureMismatch    = errors.New("signature verification failed")
	ErrNoneNotEnabled       = errors.New("the none algorithm is not enabled")
	ErrDecryptFailed        = errors.New("token cannot be decrypted")
	ErrNilKey               = errors.New("key is required")
)

// AlgNone is the unsecured JWS algorithm (RFC 7518 Section 3.6).
const AlgNone = "none"

// signatureAlgorithms is the closed set of JWS algorithms the codec accepts.
var signatureAlgorithms = map[string]jose.SignatureAlgorithm{
	"HS256": jose.HS256, "HS384": jose.HS384, "HS512": jose.HS512,
	"RS256": jose.RS256, "RS384": jose.RS384, "RS512": jose.RS512,
	"PS256": jose.PS256, "PS384": jose.PS384, "PS512": jose.PS512,
	"ES256": jose.ES256, "ES384": jose.ES384, "ES512": jose.ES512,
}

// hmacHash maps the HS algorithms to their hash constructors. go-jose
// rejects HMAC keys shorter than the hash output, but registered client
// secrets are arbitrary strings, so the HS paths compute the MAC directly.
var hmacHash = map[string]func() hash.Hash{
	"HS256": sha256.New,
	"HS384": sha512.New384,
	"HS512": sha512.New,
}

// keyAlgorithms is the closed set of JWE key management algorithms.
var keyAlgorithms = map[string]jose.KeyAlgorithm{
	"RSA-OAEP":     jose.RSA_OAEP,
	"RSA-OAEP-256": jose.RSA_OAEP_256,
	"A128KW":       jose.A128KW,
	"A192KW":       jose.A192KW,
	"A256KW":       jose.A256KW,
	"dir":          jose.DIRECT,
}

// passwordAlgorithms are the PBES2 key management algorithms used when a
// shared secret acts as the decryption password.
var passwordAlgorithms = []jose.KeyAlgorithm{
	jose.PBES2_HS256_A128KW,
	jose.PBES2_HS384_A192KW,
	jose.PBES2_HS512_A256KW,
}

// contentEncryptions is the closed set of JWE content encryption algorithms.
var contentEncryptions = map[string]jose.ContentEncryption{
	"A128CBC-HS256": jose.A128CBC_HS256,
	"A192CBC-HS384": jose.A192CBC_HS384,
	"A256CBC-HS512": jose.A256CBC_HS512,
	"A128GCM":       jose.A128GCM,
	"A192GCM":       jose.A192GCM,
	"A256GCM":       jose.A256GCM,
}

func allContentEncryptions() []jose.ContentEncryption {
	out := make([]jose.ContentEncryption, 0, len(contentEncryptions))
	for _, enc := range contentEncryptions {
		out = append(out, enc)
	}
	return out
}

// Codec encodes and decodes compact JWS/JWE tokens. It is stateless and safe
// for concurrent use.
type Codec struct {
	allowNone bool
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithNoneAlgorithm enables the unsecured "none" algorithm. Disabled by
// default; enabling it makes VerifySignature return the payload of unsigned
// tokens without any cryptographic check.
func WithNoneAlgorithm(allow bool) CodecOption {
	return func(c *Codec) {
		c.allowNone = allow
	}
}

// NewCodec creates a codec.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sign encodes the claim-set as a compact JWS signed with the given
// algorithm and key. The protected header declares alg and kid.
func (c *Codec) Sign(claims ClaimSet, alg string, key *keys.JSONWebKey) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode claim-set: %w", err)
	}

	if alg == AlgNone {
		if !c.allowNone {
			return "", ErrNoneNotEnabled
		}
		return unsecuredToken(payload), nil
	}

	sigAlg, ok := signatureAlgorithms[alg]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	if key == nil {
		return "", ErrNilKey
	}

	if newHash, ok := hmacHash[alg]; ok {
		secret, err := secretBytes(key)
		if err != nil {
			return "", err
		}
		return hmacToken(payload, alg, key.Kid, secret, newHash), nil
	}

	raw, err := key.Raw()
	if err != nil {
		return "", err
	}

	opts := (&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), key.Kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: sigAlg, Key: raw}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign claim-set: %w", err)
	}
	return jws.CompactSerialize()
}

// VerifySignature recomputes the signature over header and payload with the
// given key and returns the claim-set on match. It returns nil on malformed
// structure, unsupported algorithm, or signature mismatch. Tokens signed
// with "none" are returned without any cryptographic check, but only when
// the codec was configured to allow it.
func (c *Codec) VerifySignature(token string, key *keys.JSONWebKey) (ClaimSet, error) {
	header := GetHeader(token)
	if header == nil {
		return nil, ErrMalformedToken
	}

	if header.Alg == AlgNone {
		if !c.allowNone {
			return nil, ErrNoneNotEnabled
		}
		return c.Payload(token)
	}

	sigAlg, ok := signatureAlgorithms[header.Alg]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, header.Alg)
	}
	if key == nil {
		return nil, ErrNilKey
	}

	if newHash, ok := hmacHash[header.Alg]; ok {
		secret, err := secretBytes(key)
		if err != nil {
			return nil, err
		}
		parts := strings.Split(token, ".")
		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		mac := hmac.New(newHash, secret)
		mac.Write([]byte(parts[0] + "." + parts[1]))
		if !hmac.Equal(sig, mac.Sum(nil)) {
			return nil, ErrSignatureMismatch
		}
		return c.Payload(token)
	}

	raw, err := verificationMaterial(key)
	if err != nil {
		return nil, err
	}

	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{sigAlg})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	payload, err := jws.Verify(raw)
	if err != nil {
		return nil, ErrSignatureMismatch
	}
	return ParseClaimSet(payload)
}

// Payload decodes the payload segment without verifying the signature.
func (*Codec) Payload(token string) (ClaimSet, error) {
	parts := strings.Split(token, ".")
	if len(parts) != jwsSegments {
		return nil, ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return ParseClaimSet(raw)
}

// Encrypt encodes the plaintext as a compact JWE using the key management
// algorithm alg and content encryption enc. The protected header declares
// alg, enc and kid.
func (*Codec) Encrypt(plaintext, alg, enc string, key *keys.JSONWebKey) (string, error) {
	keyAlg, ok := keyAlgorithms[alg]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
	contentEnc, ok := contentEncryptions[enc]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, enc)
	}
	if key == nil {
		return "", ErrNilKey
	}

	raw, err := encryptionMaterial(key)
	if err != nil {
		return "", err
	}

	opts := (&jose.EncrypterOptions{}).WithHeader(jose.HeaderKey("kid"), key.Kid)
	encrypter, err := jose.NewEncrypter(contentEnc, jose.Recipient{Algorithm: keyAlg, Key: raw}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter: %w", err)
	}

	jwe, err := encrypter.Encrypt([]byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return jwe.CompactSerialize()
}

// EncryptWithPassword encodes the plaintext as a compact JWE whose content
// key is derived from the password via PBES2 (used for client_secret_jwt
// assertions, where the shared secret is the password).
func (*Codec) EncryptWithPassword(plaintext, enc, password string) (string, error) {
	contentEnc, ok := contentEncryptions[enc]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, enc)
	}

	encrypter, err := jose.NewEncrypter(contentEnc,
		jose.Recipient{Algorithm: jose.PBES2_HS256_A128KW, Key: password}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter: %w", err)
	}

	jwe, err := encrypter.Encrypt([]byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}
	return jwe.CompactSerialize()
}

// Decrypt reverses Encrypt. Payloads are only optionally encrypted: when the
// token has no parseable encryption header, or no key was resolved, the
// original input is returned unchanged. A resolved key that fails to decrypt
// is an error.
func (*Codec) Decrypt(token string, key *keys.JSONWebKey) (string, error) {
	header := GetEncryptionHeader(token)
	if header == nil {
		return token, nil
	}
	if key == nil {
		return token, nil
	}

	keyAlg, ok := keyAlgorithms[header.Alg]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, header.Alg)
	}

	jwe, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{keyAlg}, allContentEncryptions())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	raw, err := key.Raw()
	if err != nil {
		return "", err
	}

	plaintext, err := jwe.Decrypt(raw)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// DecryptWithPassword decrypts a PBES2-protected compact JWE using the
// password (the client's shared secret).
func (*Codec) DecryptWithPassword(token, password string) (string, error) {
	jwe, err := jose.ParseEncrypted(token, passwordAlgorithms, allContentEncryptions())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	plaintext, err := jwe.Decrypt(password)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// hmacToken builds the compact serialization of an HMAC-signed JWS.
func hmacToken(payload []byte, alg, kid string, secret []byte, newHash func() hash.Hash) string {
	header, _ := json.Marshal(Header{Alg: alg, Kid: kid})
	signingInput := base64.RawURLEncoding.EncodeToString(header) +
		"." + base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(newHash, secret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// secretBytes extracts the shared secret of an oct key.
func secretBytes(key *keys.JSONWebKey) ([]byte, error) {
	raw, err := key.Raw()
	if err != nil {
		return nil, err
	}
	secret, ok := raw.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: HMAC needs a shared secret, not a %s key", ErrUnsupportedAlgorithm, key.Kty)
	}
	return secret, nil
}

// unsecuredToken builds the compact serialization of an unsecured JWS:
// base64url header, base64url payload, empty signature segment.
func unsecuredToken(payload []byte) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

// verificationMaterial returns the key material suitable for signature
// verification: the shared secret for oct keys, the public half otherwise.
func verificationMaterial(key *keys.JSONWebKey) (any, error) {
	if key.Kty == "oct" {
		return key.Raw()
	}
	return key.RawPublic()
}

// encryptionMaterial returns the key material suitable for encryption: the
// shared secret for oct keys, the public half otherwise.
func encryptionMaterial(key *keys.JSONWebKey) (any, error) {
	if key.Kty == "oct" {
		return key.Raw()
	}
	return key.RawPublic()
}
