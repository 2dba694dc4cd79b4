// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package idtoken

import (
	"context"
	"fmt"
	"time"

	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/keys"
	"github.com/openauthd/openauthd/pkg/logger"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// Signing and encryption defaults applied when a client registered none.
const (
	defaultSigningAlg = "HS256"
	defaultContentEnc = "A128CBC-HS256"
)

// Generator builds id_token and userinfo claim-sets and turns them into
// compact tokens using the server's keys.
type Generator struct {
	clients  storage.ClientRepository
	scopes   storage.ScopeRepository
	keys     keys.Store
	codec    *jwt.Codec
	issuer   string
	validity time.Duration
	now      func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithValidity overrides the id_token lifetime.
func WithValidity(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.validity = d
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a Generator issuing tokens under the given issuer
// name.
func NewGenerator(clients storage.ClientRepository, scopes storage.ScopeRepository, keyStore keys.Store, codec *jwt.Codec, issuer string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		clients:  clients,
		scopes:   scopes,
		keys:     keyStore,
		codec:    codec,
		issuer:   issuer,
		validity: time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateIDTokenPayload builds the full id_token claim-set for the
// principal: the standard claims plus the attributes granted by the
// requested scopes.
func (g *Generator) GenerateIDTokenPayload(ctx context.Context, principal *Principal, req *Request) (jwt.ClaimSet, error) {
	payload, err := g.basePayload(ctx, principal, req)
	if err != nil {
		return nil, err
	}
	userClaims, err := g.scopeClaims(ctx, principal, req.Scopes)
	if err != nil {
		return nil, err
	}
	for name, value := range userClaims {
		payload[name] = value
	}
	return payload, nil
}

// GenerateFilteredIDTokenPayload builds an id_token claim-set restricted to
// the claims request parameter. The mandatory claims are always present;
// each requested claim must satisfy its constraint or the whole request
// fails with a ClaimValidationError.
func (g *Generator) GenerateFilteredIDTokenPayload(ctx context.Context, principal *Principal, req *Request) (jwt.ClaimSet, error) {
	full, err := g.GenerateIDTokenPayload(ctx, principal, req)
	if err != nil {
		return nil, err
	}

	filtered := jwt.ClaimSet{
		jwt.ClaimIssuer:     full[jwt.ClaimIssuer],
		jwt.ClaimAudience:   full[jwt.ClaimAudience],
		jwt.ClaimExpiration: full[jwt.ClaimExpiration],
		jwt.ClaimIssuedAt:   full[jwt.ClaimIssuedAt],
	}
	if azp, ok := full[jwt.ClaimAzp]; ok {
		filtered[jwt.ClaimAzp] = azp
	}

	for _, param := range req.Claims {
		value, present := full[param.Name]
		if !present {
			if param.Essential {
				return nil, &ClaimValidationError{Claim: param.Name}
			}
			continue
		}
		if param.Value != "" && !matchesValue(value, param.Value) {
			return nil, &ClaimValidationError{Claim: param.Name}
		}
		if len(param.Values) > 0 && !matchesAnyValue(value, param.Values) {
			return nil, &ClaimValidationError{Claim: param.Name}
		}
		filtered[param.Name] = value
	}
	return filtered, nil
}

// GenerateUserInfoPayload builds the userinfo claim-set: the subject plus
// the attributes granted by the requested scopes.
func (g *Generator) GenerateUserInfoPayload(ctx context.Context, principal *Principal, req *Request) (jwt.ClaimSet, error) {
	payload := jwt.ClaimSet{jwt.ClaimSubject: principal.Subject}
	userClaims, err := g.scopeClaims(ctx, principal, req.Scopes)
	if err != nil {
		return nil, err
	}
	for name, value := range userClaims {
		payload[name] = value
	}
	return payload, nil
}

// basePayload assembles the standard id_token claims. The audience is every
// client registered for the id_token response type plus the requesting
// client; azp appears only when the audience is exactly the requesting
// client alone.
func (g *Generator) basePayload(ctx context.Context, principal *Principal, req *Request) (jwt.ClaimSet, error) {
	audiences, err := g.audiences(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	payload := jwt.ClaimSet{
		jwt.ClaimIssuer:     g.issuer,
		jwt.ClaimSubject:    principal.Subject,
		jwt.ClaimAudience:   audiences,
		jwt.ClaimExpiration: now.Add(g.validity).Unix(),
		jwt.ClaimIssuedAt:   now.Unix(),
		jwt.ClaimACR:        defaultACR,
		jwt.ClaimAMR:        []string{defaultAMR},
	}
	if req.Nonce != "" {
		payload[jwt.ClaimNonce] = req.Nonce
	}
	if len(audiences) == 1 && audiences[0] == req.ClientID {
		payload[jwt.ClaimAzp] = req.ClientID
	}
	if req.MaxAge != 0 && !principal.AuthenticationInstant.IsZero() {
		payload[jwt.ClaimAuthTime] = principal.AuthenticationInstant.Unix()
	}
	return payload, nil
}

func (g *Generator) audiences(ctx context.Context, clientID string) ([]string, error) {
	all, err := g.clients.GetAll(ctx)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	var out []string
	seen := make(map[string]bool)
	for _, client := range all {
		if client.HasResponseType(storage.ResponseTypeIDToken) || client.ID == clientID {
			if !seen[client.ID] {
				seen[client.ID] = true
				out = append(out, client.ID)
			}
		}
	}
	if !seen[clientID] {
		out = append(out, clientID)
	}
	return out, nil
}

// scopeClaims resolves the principal attributes granted by the scopes.
func (g *Generator) scopeClaims(ctx context.Context, principal *Principal, scopeNames []string) (map[string]any, error) {
	if len(scopeNames) == 0 || len(principal.Claims) == 0 {
		return nil, nil
	}
	scopes, err := g.scopes.SearchByNames(ctx, scopeNames)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	out := make(map[string]any)
	for _, scope := range scopes {
		for _, name := range scope.Claims {
			if value, ok := principal.Claims[name]; ok {
				out[name] = value
			}
		}
	}
	return out, nil
}

// FillInAdditionalClaims adds the c_hash and at_hash claims derived from the
// authorization code and access token. Unsigned tokens get no hashes.
func (g *Generator) FillInAdditionalClaims(payload jwt.ClaimSet, client *storage.Client, authorizationCode, accessToken string) error {
	alg := g.signingAlg(client)
	if alg == jwt.AlgNone {
		return nil
	}
	if authorizationCode != "" {
		hash, err := jwt.HalfHash(authorizationCode, alg)
		if err != nil {
			return err
		}
		payload[jwt.ClaimCodeHash] = hash
	}
	if accessToken != "" {
		hash, err := jwt.HalfHash(accessToken, alg)
		if err != nil {
			return err
		}
		payload[jwt.ClaimAccessTokenHash] = hash
	}
	return nil
}

// SignAndEncrypt turns the claim-set into a compact token: signed with the
// algorithm the client registered, then wrapped in a JWE when the client
// declared an encryption algorithm. A client without a registered
// encryption key gets the signed token as is.
func (g *Generator) SignAndEncrypt(ctx context.Context, payload jwt.ClaimSet, client *storage.Client) (string, error) {
	alg := g.signingAlg(client)

	var signingKey *keys.JSONWebKey
	if alg != jwt.AlgNone {
		key, err := g.keys.GetByAlgorithm(ctx, keys.UseSignature, alg, keys.OpSign)
		if err != nil {
			return "", oautherr.Internal(err)
		}
		if key == nil {
			return "", oautherr.Internal(fmt.Errorf("no signing key for algorithm %s", alg))
		}
		signingKey = key
	}

	signed, err := g.codec.Sign(payload, alg, signingKey)
	if err != nil {
		return "", oautherr.Internal(err)
	}

	if client.IDTokenEncryptedResponseAlg == "" {
		return signed, nil
	}

	encKey := clientEncryptionKey(client)
	if encKey == nil {
		logger.Debugw("client declared id_token encryption but has no encryption key",
			"client_id", client.ID)
		return signed, nil
	}

	enc := client.IDTokenEncryptedResponseEnc
	if enc == "" {
		enc = defaultContentEnc
	}
	encrypted, err := g.codec.Encrypt(signed, client.IDTokenEncryptedResponseAlg, enc, encKey)
	if err != nil {
		return "", oautherr.Internal(err)
	}
	return encrypted, nil
}

func (g *Generator) signingAlg(client *storage.Client) string {
	if client.IDTokenSignedResponseAlg == "" {
		return defaultSigningAlg
	}
	return client.IDTokenSignedResponseAlg
}

func clientEncryptionKey(client *storage.Client) *keys.JSONWebKey {
	for _, key := range client.JSONWebKeys {
		if key.Use == keys.UseEncryption && key.SupportsOperations(keys.OpEncrypt) {
			return key
		}
	}
	return nil
}

func matchesValue(claim any, want string) bool {
	switch v := claim.(type) {
	case string:
		return v == want
	case []string:
		for _, item := range v {
			if item == want {
				return true
			}
		}
		return false
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(v) == want
	}
}

// matchesAnyValue reports whether the claim satisfies a values constraint:
// at least one requested value must match.
func matchesAnyValue(claim any, wants []string) bool {
	for _, want := range wants {
		if matchesValue(claim, want) {
			return true
		}
	}
	return false
}
