// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package authenticate implements token endpoint client authentication:
// secret basic and post, client_secret_jwt and private_key_jwt assertions,
// and TLS client certificates.
package authenticate

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/openauthd/openauthd/pkg/jwt"
)

// AssertionTypeJWTBearer is the only client_assertion_type accepted at the
// token endpoint (RFC 7523 Section 2.2).
const AssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Instruction carries every credential a token request may present, before
// any of them is validated.
type Instruction struct {
	// ClientIDFromHeader and ClientSecretFromHeader come from the HTTP basic
	// Authorization header.
	ClientIDFromHeader     string
	ClientSecretFromHeader string

	// ClientIDFromBody and ClientSecretFromBody come from the form body.
	ClientIDFromBody     string
	ClientSecretFromBody string

	// ClientAssertion is the raw client_assertion token, when present.
	ClientAssertion     string
	ClientAssertionType string

	// CertificateSubject is the subject DN of the verified TLS peer
	// certificate, when the connection presented one.
	CertificateSubject string
}

// InstructionFromRequest extracts credentials from an HTTP token request.
// The form must already be parsed.
func InstructionFromRequest(r *http.Request) *Instruction {
	in := &Instruction{
		ClientIDFromBody:     r.PostFormValue("client_id"),
		ClientSecretFromBody: r.PostFormValue("client_secret"),
		ClientAssertion:      r.PostFormValue("client_assertion"),
		ClientAssertionType:  r.PostFormValue("client_assertion_type"),
	}
	in.ClientIDFromHeader, in.ClientSecretFromHeader = basicCredentials(r.Header.Get("Authorization"))
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		in.CertificateSubject = r.TLS.PeerCertificates[0].Subject.String()
	}
	return in
}

func basicCredentials(header string) (string, string) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", ""
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", ""
	}
	id, secret, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", ""
	}
	return id, secret
}

// ClientID resolves the client id the instruction claims to be from, before
// the credentials are checked. A JWS assertion names its client in the iss
// claim; a JWE assertion cannot be read yet, so the body id is used.
func (in *Instruction) ClientID() string {
	if in.ClientAssertion != "" {
		if jwt.IsJWS(in.ClientAssertion) {
			codec := jwt.NewCodec()
			if claims, err := codec.Payload(in.ClientAssertion); err == nil {
				if iss := claims.Issuer(); iss != "" {
					return iss
				}
			}
			return ""
		}
		return in.ClientIDFromBody
	}
	if in.ClientIDFromHeader != "" {
		return in.ClientIDFromHeader
	}
	return in.ClientIDFromBody
}
