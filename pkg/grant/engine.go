// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package grant implements the token endpoint state machine: the supported
// grant types, token revocation, and reuse of equivalent granted tokens.
package grant

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/idtoken"
	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/logger"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// TokenRequest is a parsed token endpoint request body.
type TokenRequest struct {
	GrantType    string
	Scope        string
	Username     string
	Password     string
	Code         string
	RedirectURI  string
	RefreshToken string
}

// Engine processes token endpoint requests. All dependencies are injected;
// the engine itself is stateless and safe for concurrent use.
type Engine struct {
	clients       storage.ClientRepository
	scopes        storage.ScopeRepository
	owners        storage.ResourceOwnerRepository
	codes         storage.AuthorizationCodeStore
	tokens        storage.TokenStore
	authenticator *authenticate.Authenticator
	generator     *idtoken.Generator
	matcher       *Matcher

	tokenValidity time.Duration
	codeValidity  time.Duration
	rotateRefresh bool
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenValidity overrides the access token lifetime.
func WithTokenValidity(d time.Duration) Option {
	return func(e *Engine) {
		e.tokenValidity = d
	}
}

// WithCodeValidity overrides how long an authorization code stays
// exchangeable.
func WithCodeValidity(d time.Duration) Option {
	return func(e *Engine) {
		e.codeValidity = d
	}
}

// WithRefreshRotation controls whether a refresh_token grant replaces the
// refresh token string. Enabled by default; when disabled the presented
// refresh token stays valid for the new pair.
func WithRefreshRotation(enabled bool) Option {
	return func(e *Engine) {
		e.rotateRefresh = enabled
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine wires a token endpoint engine.
func NewEngine(
	clients storage.ClientRepository,
	scopes storage.ScopeRepository,
	owners storage.ResourceOwnerRepository,
	codes storage.AuthorizationCodeStore,
	tokens storage.TokenStore,
	authenticator *authenticate.Authenticator,
	generator *idtoken.Generator,
	opts ...Option,
) *Engine {
	e := &Engine{
		clients:       clients,
		scopes:        scopes,
		owners:        owners,
		codes:         codes,
		tokens:        tokens,
		authenticator: authenticator,
		generator:     generator,
		matcher:       NewMatcher(),
		tokenValidity: time.Hour,
		codeValidity:  10 * time.Minute,
		rotateRefresh: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Token processes a token request and returns the granted token.
func (e *Engine) Token(ctx context.Context, req *TokenRequest, in *authenticate.Instruction) (*storage.GrantedToken, error) {
	if req.GrantType == "" {
		return nil, oautherr.New(oautherr.CodeInvalidRequest, "the parameter grant_type is missing")
	}

	switch req.GrantType {
	case storage.GrantTypeClientCredentials:
		return e.clientCredentials(ctx, req, in)
	case storage.GrantTypePassword:
		return e.resourceOwnerPassword(ctx, req, in)
	case storage.GrantTypeAuthorizationCode:
		return e.authorizationCode(ctx, req, in)
	case storage.GrantTypeRefreshToken:
		return e.refreshToken(ctx, req, in)
	default:
		return nil, oautherr.Newf(oautherr.CodeInvalidRequest, "the grant type %s is not supported", req.GrantType)
	}
}

// checkGrantType rejects clients not registered for the requested grant.
func checkGrantType(client *storage.Client, grantType string) error {
	if !client.HasGrantType(grantType) {
		return oautherr.Newf(oautherr.CodeInvalidClient,
			"the client %s doesn't support the grant type %s", client.ID, grantType)
	}
	return nil
}

// checkResponseTypes rejects clients not registered for every response type
// the grant produces.
func checkResponseTypes(client *storage.Client, responseTypes ...string) error {
	for _, rt := range responseTypes {
		if !client.HasResponseType(rt) {
			return oautherr.Newf(oautherr.CodeInvalidClient,
				"the client %s doesn't support the response type %s", client.ID, rt)
		}
	}
	return nil
}

// validateScopes checks the requested scope string against the registry and
// the client's allow list, returning the granted scope names.
func (e *Engine) validateScopes(ctx context.Context, client *storage.Client, scope string) ([]string, error) {
	if scope == "" {
		return nil, oautherr.New(oautherr.CodeInvalidRequest, "the parameter scope is missing")
	}

	names := storage.SplitScopes(scope)
	found, err := e.scopes.SearchByNames(ctx, names)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if len(found) != len(names) || !client.HasAllowedScopes(names) {
		return nil, oautherr.Newf(oautherr.CodeInvalidScope,
			"the scopes %s are not allowed or invalid", strings.Join(missingOrDisallowed(names, found, client), " "))
	}
	return names, nil
}

func missingOrDisallowed(requested []string, found []*storage.Scope, client *storage.Client) []string {
	known := make(map[string]bool, len(found))
	for _, s := range found {
		known[s.Name] = true
	}
	var out []string
	for _, name := range requested {
		if !known[name] || !client.HasAllowedScopes([]string{name}) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return requested
	}
	return out
}

// mint creates a fresh granted token pair for the client.
func (e *Engine) mint(client *storage.Client, scope string, idPayload, userPayload jwt.ClaimSet) *storage.GrantedToken {
	return &storage.GrantedToken{
		AccessToken:     uuid.NewString(),
		RefreshToken:    uuid.NewString(),
		TokenType:       "Bearer",
		Scope:           scope,
		ClientID:        client.ID,
		ExpiresIn:       int64(e.tokenValidity / time.Second),
		CreatedAt:       e.now().UTC(),
		IDTokenPayload:  idPayload,
		UserInfoPayload: userPayload,
	}
}

// reuseOrMint returns a stored token equivalent to the one about to be
// issued, or mints, signs and stores a new one. code is the authorization
// code being exchanged, empty for the other grants.
func (e *Engine) reuseOrMint(ctx context.Context, client *storage.Client, scope, code string, idPayload, userPayload jwt.ClaimSet) (*storage.GrantedToken, error) {
	candidates, err := e.tokens.GetBySpec(ctx, scope, client.ID)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if existing := e.matcher.FindEquivalent(candidates, e.now(), idPayload, userPayload); existing != nil {
		logger.Debugw("reusing granted token", "client_id", client.ID, "scope", scope)
		return existing, nil
	}

	token := e.mint(client, scope, idPayload, userPayload)
	if idPayload != nil {
		if err := e.generator.FillInAdditionalClaims(idPayload, client, code, token.AccessToken); err != nil {
			return nil, oautherr.Internal(err)
		}
		signed, err := e.generator.SignAndEncrypt(ctx, idPayload, client)
		if err != nil {
			return nil, err
		}
		token.IDToken = signed
	}

	if err := e.tokens.Add(ctx, token); err != nil {
		return nil, oautherr.Internal(err)
	}
	logger.Infow("granted token issued",
		"client_id", client.ID, "grant_scope", scope, "expires_in", token.ExpiresIn)
	return token, nil
}

func scopesOf(names []string) string {
	return strings.Join(names, " ")
}
