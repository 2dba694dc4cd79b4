// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the persistence model of the authorization server
// (clients, scopes, resource owners, authorization codes, granted tokens)
// and its in-memory and Redis-backed implementations.
package storage

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/keys"
)

// Token endpoint authentication methods (OIDC Core Section 9).
const (
	AuthMethodSecretBasic   = "client_secret_basic"
	AuthMethodSecretPost    = "client_secret_post"
	AuthMethodSecretJWT     = "client_secret_jwt"
	AuthMethodPrivateKeyJWT = "private_key_jwt"
	AuthMethodTLSClientAuth = "tls_client_auth"
	AuthMethodNone          = "none"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"
)

// Response types a client can be registered for.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// SecretKind says how a client secret is stored.
type SecretKind string

// Secret kinds.
const (
	SecretPlain  SecretKind = "plain"
	SecretHashed SecretKind = "hashed"
)

// ClientSecret is one registered secret of a client.
type ClientSecret struct {
	Kind  SecretKind `json:"kind"`
	Value string     `json:"value"`
}

// Matches reports whether the presented secret matches this one. Hashed
// secrets are bcrypt digests; plain secrets compare in constant time.
func (s *ClientSecret) Matches(presented string) bool {
	switch s.Kind {
	case SecretHashed:
		return bcrypt.CompareHashAndPassword([]byte(s.Value), []byte(presented)) == nil
	default:
		return subtle.ConstantTimeCompare([]byte(s.Value), []byte(presented)) == 1
	}
}

// HashSecret bcrypt-hashes a secret for storage.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Client is a registered OAuth2/OIDC client.
type Client struct {
	ID   string `json:"client_id"`
	Name string `json:"client_name,omitempty"`

	// Secrets are the credentials accepted for secret-based authentication.
	Secrets []ClientSecret `json:"secrets,omitempty"`

	// JSONWebKeys holds the client's registered keys, used to verify
	// private_key_jwt assertions and to encrypt id_tokens for the client.
	JSONWebKeys []*keys.JSONWebKey `json:"jwks,omitempty"`

	// JwksURI points at the client's hosted key set, fetched on demand when
	// a kid is not found in JSONWebKeys.
	JwksURI string `json:"jwks_uri,omitempty"`

	// TokenEndpointAuthMethod selects how the client authenticates at the
	// token endpoint. Empty means client_secret_basic.
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method,omitempty"`

	// IDTokenSignedResponseAlg is the JWS algorithm for id_tokens issued to
	// this client. Empty means the server default.
	IDTokenSignedResponseAlg string `json:"id_token_signed_response_alg,omitempty"`

	// IDTokenEncryptedResponseAlg and IDTokenEncryptedResponseEnc, when both
	// set, wrap the signed id_token in a JWE.
	IDTokenEncryptedResponseAlg string `json:"id_token_encrypted_response_alg,omitempty"`
	IDTokenEncryptedResponseEnc string `json:"id_token_encrypted_response_enc,omitempty"`

	// TLSClientAuthSubjectDN is the expected certificate subject for
	// tls_client_auth.
	TLSClientAuthSubjectDN string `json:"tls_client_auth_subject_dn,omitempty"`

	GrantTypes    []string `json:"grant_types,omitempty"`
	ResponseTypes []string `json:"response_types,omitempty"`
	RedirectURIs  []string `json:"redirect_uris,omitempty"`
	AllowedScopes []string `json:"allowed_scopes,omitempty"`
}

// AuthMethod returns the effective token endpoint authentication method.
func (c *Client) AuthMethod() string {
	if c.TokenEndpointAuthMethod == "" {
		return AuthMethodSecretBasic
	}
	return c.TokenEndpointAuthMethod
}

// HasGrantType reports whether the client is registered for the grant type.
func (c *Client) HasGrantType(grantType string) bool {
	return contains(c.GrantTypes, grantType)
}

// HasResponseType reports whether the client is registered for the response type.
func (c *Client) HasResponseType(responseType string) bool {
	return contains(c.ResponseTypes, responseType)
}

// HasAllowedScopes reports whether every requested scope is allowed for the
// client.
func (c *Client) HasAllowedScopes(scopes []string) bool {
	for _, s := range scopes {
		if !contains(c.AllowedScopes, s) {
			return false
		}
	}
	return true
}

// Secret returns the client secret matching the presented value, or nil.
func (c *Client) Secret(presented string) *ClientSecret {
	for i := range c.Secrets {
		if c.Secrets[i].Matches(presented) {
			return &c.Secrets[i]
		}
	}
	return nil
}

// PlainSecret returns the first plain-text secret of the client, used as the
// shared key for client_secret_jwt decryption. Empty when the client only
// has hashed secrets.
func (c *Client) PlainSecret() string {
	for _, s := range c.Secrets {
		if s.Kind != SecretHashed {
			return s.Value
		}
	}
	return ""
}

// Scope is a registered scope with the claims it grants access to.
type Scope struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	IsOpenID    bool     `json:"is_openid,omitempty"`
	Claims      []string `json:"claims,omitempty"`
}

// ResourceOwner is an end user. Claims hold the user's attribute values
// keyed by claim name; sub is always present.
type ResourceOwner struct {
	ID       string `json:"id"`
	Password string `json:"password,omitempty"`

	// PasswordHashed marks Password as a bcrypt digest.
	PasswordHashed bool `json:"password_hashed,omitempty"`

	Claims map[string]any `json:"claims,omitempty"`

	// AuthenticationInstant is when the owner last authenticated, used for
	// the auth_time claim.
	AuthenticationInstant time.Time `json:"authentication_instant,omitempty"`
}

// VerifyPassword reports whether the presented password matches.
func (r *ResourceOwner) VerifyPassword(presented string) bool {
	if r.PasswordHashed {
		return bcrypt.CompareHashAndPassword([]byte(r.Password), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(r.Password), []byte(presented)) == 1
}

// AuthorizationCode is a one-time code issued by the authorization endpoint
// and exchanged at the token endpoint.
type AuthorizationCode struct {
	Code            string       `json:"code"`
	ClientID        string       `json:"client_id"`
	RedirectURI     string       `json:"redirect_uri,omitempty"`
	Scopes          string       `json:"scopes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	IDTokenPayload  jwt.ClaimSet `json:"id_token_payload,omitempty"`
	UserInfoPayload jwt.ClaimSet `json:"user_info_payload,omitempty"`
}

// GrantedToken is an issued access token with its companions.
type GrantedToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	ClientID     string `json:"client_id"`

	ExpiresIn int64     `json:"expires_in"`
	CreatedAt time.Time `json:"created_at"`

	// IDTokenPayload and UserInfoPayload are the claim-sets the token was
	// issued with, compared when deciding whether an existing token can be
	// returned instead of minting a new one.
	IDTokenPayload  jwt.ClaimSet `json:"id_token_payload,omitempty"`
	UserInfoPayload jwt.ClaimSet `json:"user_info_payload,omitempty"`
}

// Expired reports whether the access token is past its lifetime at the
// given instant. A token expiring exactly now is expired.
func (t *GrantedToken) Expired(now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}

// ClientRepository resolves registered clients.
type ClientRepository interface {
	// GetByID returns the client, or nil when not registered.
	GetByID(ctx context.Context, id string) (*Client, error)
	// GetAll returns every registered client.
	GetAll(ctx context.Context) ([]*Client, error)
}

// ScopeRepository resolves registered scopes.
type ScopeRepository interface {
	// SearchByNames returns the scopes that exist among the given names.
	SearchByNames(ctx context.Context, names []string) ([]*Scope, error)
}

// ResourceOwnerRepository authenticates end users.
type ResourceOwnerRepository interface {
	// Authenticate returns the owner matching the credentials, or nil.
	Authenticate(ctx context.Context, username, password string) (*ResourceOwner, error)
	// GetByID returns the owner, or nil when unknown.
	GetByID(ctx context.Context, id string) (*ResourceOwner, error)
}

// AuthorizationCodeStore holds pending authorization codes.
type AuthorizationCodeStore interface {
	// Add stores the code until it is consumed or expires.
	Add(ctx context.Context, code *AuthorizationCode) error
	// Get returns the code without consuming it, or nil when absent.
	Get(ctx context.Context, code string) (*AuthorizationCode, error)
	// Consume atomically removes and returns the code. At most one caller
	// gets a non-nil result for a given code.
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore holds granted tokens.
type TokenStore interface {
	Add(ctx context.Context, token *GrantedToken) error
	// GetByAccessToken returns the token, or nil when unknown.
	GetByAccessToken(ctx context.Context, accessToken string) (*GrantedToken, error)
	// GetByRefreshToken returns the token, or nil when unknown.
	GetByRefreshToken(ctx context.Context, refreshToken string) (*GrantedToken, error)
	// GetBySpec returns every stored token issued to the client for exactly
	// the given scope string.
	GetBySpec(ctx context.Context, scope, clientID string) ([]*GrantedToken, error)
	// RemoveByAccessToken deletes the token and its refresh companion.
	RemoveByAccessToken(ctx context.Context, accessToken string) error
	// RemoveByRefreshToken deletes the token and its access companion.
	RemoveByRefreshToken(ctx context.Context, refreshToken string) error
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// SplitScopes splits a space-delimited scope string, dropping empties.
func SplitScopes(scope string) []string {
	return strings.Fields(scope)
}
