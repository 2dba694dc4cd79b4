// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package authenticate

import (
	"context"
	"strings"
	"time"

	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/keys"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// Error descriptions returned to clients on assertion failures.
const (
	descNotJWS           = "the client assertion is not a JWS token"
	descNoPayload        = "the payload cannot be extracted"
	descBadSignature     = "the signature is not correct"
	descBadClientID      = "the client id passed in JWT is not correct"
	descBadAudience      = "the audience passed in JWT is not correct"
	descExpired          = "the received JWT has expired"
	descCannotDecrypt    = "the jwe token cannot be decrypted"
	descCannotBeResolved = "the client cannot be authenticated"
)

// validateAssertion checks a signed client assertion end to end and returns
// the client it authenticates: structure, payload, signature against the
// client's registered key, iss/sub agreement, audience containing this
// server's name, and expiry. now must be strictly before exp.
func (a *Authenticator) validateAssertion(ctx context.Context, assertion string) (*storage.Client, error) {
	if !jwt.IsJWS(assertion) {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descNotJWS)
	}

	payload, err := a.codec.Payload(assertion)
	if err != nil || len(payload) == 0 {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descNoPayload)
	}

	client, err := a.clients.GetByID(ctx, payload.Issuer())
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if client == nil {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descCannotBeResolved)
	}

	header := jwt.GetHeader(assertion)
	key, err := a.resolveClientKey(ctx, client, header)
	if err != nil {
		return nil, err
	}
	verified, err := a.codec.VerifySignature(assertion, key)
	if err != nil || verified == nil {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descBadSignature)
	}

	if verified.Subject() != client.ID {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descBadClientID)
	}

	if !containsAudience(verified.Audiences(), a.issuer) {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descBadAudience)
	}

	exp := verified.Expiration()
	if !a.now().Before(time.Unix(exp, 0)) {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descExpired)
	}

	return client, nil
}

// resolveClientKey finds the verification key for an assertion: the client's
// shared secret for HMAC algorithms, otherwise the registered key matching
// the header kid, fetched from the client's jwks_uri when not embedded.
func (a *Authenticator) resolveClientKey(ctx context.Context, client *storage.Client, header *jwt.Header) (*keys.JSONWebKey, error) {
	if header == nil {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descNotJWS)
	}

	if strings.HasPrefix(header.Alg, "HS") {
		secret := client.PlainSecret()
		if secret == "" {
			return nil, oautherr.New(oautherr.CodeInvalidClient, descBadSignature)
		}
		return keys.Import([]byte(secret), header.Kid, keys.UseSignature, header.Alg, keys.OpVerify)
	}

	for _, key := range client.JSONWebKeys {
		if key.Kid == header.Kid && key.SupportsOperations(keys.OpVerify) {
			return key, nil
		}
	}

	if client.JwksURI != "" && a.remote != nil {
		key, err := a.remote.FetchKey(ctx, client.JwksURI, header.Kid)
		if err != nil {
			return nil, oautherr.Internal(err)
		}
		if key != nil {
			return key, nil
		}
	}

	return nil, oautherr.New(oautherr.CodeInvalidClient, descBadSignature)
}

func containsAudience(audiences []string, issuer string) bool {
	for _, aud := range audiences {
		if aud == issuer {
			return true
		}
	}
	return false
}
