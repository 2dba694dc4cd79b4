// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package authenticate

import (
	"context"
	"time"

	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/keys"
	"github.com/openauthd/openauthd/pkg/logger"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// Error descriptions for the secret-based methods.
const (
	descSecretBasic = "the client cannot be authenticated with secret basic"
	descSecretPost  = "the client cannot be authenticated with secret post"
	descTLS         = "the client cannot be authenticated with tls"
)

// Authenticator validates client credentials at the token endpoint. The
// method checked is the one the client registered, never the one the request
// happens to carry.
type Authenticator struct {
	clients storage.ClientRepository
	keys    keys.Store
	remote  *keys.RemoteFetcher
	codec   *jwt.Codec
	issuer  string
	now     func() time.Time
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithRemoteFetcher enables resolving client keys from their jwks_uri.
func WithRemoteFetcher(remote *keys.RemoteFetcher) Option {
	return func(a *Authenticator) {
		a.remote = remote
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// New creates an Authenticator. issuer is this server's issuer name, the
// value client assertions must list in their audience. keyStore holds the
// server's own keys, used to unwrap encrypted assertions.
func New(clients storage.ClientRepository, keyStore keys.Store, codec *jwt.Codec, issuer string, opts ...Option) *Authenticator {
	a := &Authenticator{
		clients: clients,
		keys:    keyStore,
		codec:   codec,
		issuer:  issuer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate resolves and validates the client behind the instruction.
// Failures come back as invalid_client errors whose description names the
// failing method.
func (a *Authenticator) Authenticate(ctx context.Context, in *Instruction) (*storage.Client, error) {
	clientID := in.ClientID()
	if clientID == "" {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descCannotBeResolved)
	}

	client, err := a.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if client == nil {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descCannotBeResolved)
	}

	method := client.AuthMethod()
	logger.Debugw("authenticating client", "client_id", clientID, "method", method)

	switch method {
	case storage.AuthMethodSecretBasic:
		return a.withSecret(client, in.ClientSecretFromHeader, descSecretBasic)
	case storage.AuthMethodSecretPost:
		return a.withSecret(client, in.ClientSecretFromBody, descSecretPost)
	case storage.AuthMethodSecretJWT:
		return a.withSecretJWT(ctx, client, in)
	case storage.AuthMethodPrivateKeyJWT:
		return a.withPrivateKeyJWT(ctx, in)
	case storage.AuthMethodTLSClientAuth:
		return a.withTLS(client, in)
	case storage.AuthMethodNone:
		return client, nil
	default:
		return nil, oautherr.New(oautherr.CodeInvalidClient, descCannotBeResolved)
	}
}

func (a *Authenticator) withSecret(client *storage.Client, presented, failure string) (*storage.Client, error) {
	if presented == "" || client.Secret(presented) == nil {
		return nil, oautherr.New(oautherr.CodeInvalidClient, failure)
	}
	return client, nil
}

// withSecretJWT authenticates via an assertion encrypted with the client's
// shared secret (PBES2). The unwrapped assertion then goes through the same
// signed-assertion checks as private_key_jwt.
func (a *Authenticator) withSecretJWT(ctx context.Context, client *storage.Client, in *Instruction) (*storage.Client, error) {
	if in.ClientAssertionType != AssertionTypeJWTBearer || in.ClientAssertion == "" {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descNotJWS)
	}

	assertion := in.ClientAssertion
	if jwt.IsJWE(assertion) {
		secret := client.PlainSecret()
		inner, err := a.codec.DecryptWithPassword(assertion, secret)
		if err != nil {
			return nil, oautherr.New(oautherr.CodeInvalidClient, descCannotDecrypt)
		}
		assertion = inner
	}

	authenticated, err := a.validateAssertion(ctx, assertion)
	if err != nil {
		return nil, err
	}
	if authenticated.ID != client.ID {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descBadClientID)
	}
	return authenticated, nil
}

// withPrivateKeyJWT authenticates via a signed assertion. The assertion may
// arrive wrapped in a JWE encrypted to one of this server's keys.
func (a *Authenticator) withPrivateKeyJWT(ctx context.Context, in *Instruction) (*storage.Client, error) {
	if in.ClientAssertionType != AssertionTypeJWTBearer || in.ClientAssertion == "" {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descNotJWS)
	}

	assertion := in.ClientAssertion
	if header := jwt.GetEncryptionHeader(assertion); header != nil {
		key, err := a.keys.GetByKid(ctx, header.Kid)
		if err != nil {
			return nil, oautherr.Internal(err)
		}
		inner, err := a.codec.Decrypt(assertion, key)
		if err != nil {
			return nil, oautherr.New(oautherr.CodeInvalidClient, descCannotDecrypt)
		}
		assertion = inner
	}

	return a.validateAssertion(ctx, assertion)
}

func (a *Authenticator) withTLS(client *storage.Client, in *Instruction) (*storage.Client, error) {
	if in.CertificateSubject == "" || client.TLSClientAuthSubjectDN == "" ||
		in.CertificateSubject != client.TLSClientAuthSubjectDN {
		return nil, oautherr.New(oautherr.CodeInvalidClient, descTLS)
	}
	return client, nil
}
