// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package jwt

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Header is the protected header of a compact JWS or JWE token.
// Enc is empty for JWS tokens.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Enc string `json:"enc,omitempty"`
	Typ string `json:"typ,omitempty"`
}

// jwsSegments and jweSegments are the dot-separated segment counts of the
// two compact serializations (RFC 7515 Section 7.1, RFC 7516 Section 7.1).
const (
	jwsSegments = 3
	jweSegments = 5
)

// GetHeader parses only the protected header segment of a compact token
// without verifying anything. Returns nil if the token does not have the
// compact JWS segment structure or the header does not decode.
func GetHeader(token string) *Header {
	return parseHeader(token, jwsSegments)
}

// GetEncryptionHeader parses the protected header of a compact JWE token.
// Returns nil if the token does not have five segments or the header does
// not decode to one declaring a content encryption.
func GetEncryptionHeader(token string) *Header {
	h := parseHeader(token, jweSegments)
	if h == nil || h.Enc == "" {
		return nil
	}
	return h
}

// IsJWS reports whether the token parses as a three-segment compact JWS.
func IsJWS(token string) bool {
	return GetHeader(token) != nil
}

// IsJWE reports whether the token parses as a five-segment compact JWE.
func IsJWE(token string) bool {
	return GetEncryptionHeader(token) != nil
}

func parseHeader(token string, segments int) *Header {
	if token == "" {
		return nil
	}
	parts := strings.Split(token, ".")
	if len(parts) != segments {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil
	}
	if h.Alg == "" {
		return nil
	}
	return &h
}
