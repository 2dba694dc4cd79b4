// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package idtoken builds, filters, signs and optionally encrypts id_token
// and userinfo claim-sets.
package idtoken

import (
	"fmt"
	"time"
)

// Default values for the authentication context claims until an
// authentication policy layer exists.
const (
	defaultACR = "openid.pape.auth_level.ns.password=1"
	defaultAMR = "password"
)

// Principal is the authenticated party the token is about: a resource owner
// for user grants, the client itself for client_credentials.
type Principal struct {
	// Subject becomes the sub claim.
	Subject string

	// Claims holds the principal's attribute values keyed by claim name.
	Claims map[string]any

	// AuthenticationInstant is when the principal authenticated; zero when
	// unknown.
	AuthenticationInstant time.Time
}

// Request carries the parameters of the authorization request that shape
// the issued claims.
type Request struct {
	// ClientID is the requesting client.
	ClientID string

	// Scopes are the granted scope names; the claims they map to end up in
	// the userinfo payload.
	Scopes []string

	// Nonce is copied into the id_token when present.
	Nonce string

	// MaxAge, when non-zero, requests the auth_time claim.
	MaxAge int64

	// Claims is the parsed claims request parameter; nil means no filtering.
	Claims []ClaimParameter
}

// ClaimParameter is one member of the claims request parameter (OIDC Core
// Section 5.5): an individual claim with optional constraints.
type ClaimParameter struct {
	Name      string
	Essential bool
	Value     string
	Values    []string
}

// ClaimValidationError reports a claim that cannot satisfy its requested
// constraint.
type ClaimValidationError struct {
	Claim string
}

func (e *ClaimValidationError) Error() string {
	return fmt.Sprintf("the claim %s is not valid", e.Claim)
}
