// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/grant"
	"github.com/openauthd/openauthd/pkg/logger"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// tokenResponse is the token endpoint success body (RFC 6749 Section 5.1).
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oautherr.New(oautherr.CodeInvalidRequest, "the request body is not a valid form"))
		return
	}

	req := &grant.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Scope:        r.PostFormValue("scope"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		RefreshToken: r.PostFormValue("refresh_token"),
	}

	token, err := s.engine.Token(r.Context(), req, authenticate.InstructionFromRequest(r))
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    token.ExpiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		IDToken:      token.IDToken,
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, oautherr.New(oautherr.CodeInvalidRequest, "the request body is not a valid form"))
		return
	}

	req := &grant.RevokeRequest{
		Token:         r.PostFormValue("token"),
		TokenTypeHint: r.PostFormValue("token_type_hint"),
	}
	if err := s.engine.Revoke(r.Context(), req, authenticate.InstructionFromRequest(r)); err != nil {
		writeOAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleJWKS publishes the public halves of the server's keys.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	all, err := s.keys.All(r.Context())
	if err != nil {
		writeOAuthError(w, oautherr.Internal(err))
		return
	}

	published := make([]json.RawMessage, 0, len(all))
	for _, key := range all {
		raw, err := key.MarshalPublicJSON()
		if err != nil {
			logger.Warnw("skipping unpublishable key", "kid", key.Kid, "error", err)
			continue
		}
		published = append(published, raw)
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": published})
}

// handleDiscovery serves the OpenID Provider metadata.
func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":              s.issuer,
		"token_endpoint":      s.issuer + TokenPath,
		"revocation_endpoint": s.issuer + RevokePath,
		"jwks_uri":            s.issuer + JWKSPath,
		"grant_types_supported": []string{
			storage.GrantTypeAuthorizationCode,
			storage.GrantTypeClientCredentials,
			storage.GrantTypePassword,
			storage.GrantTypeRefreshToken,
		},
		"response_types_supported": []string{
			storage.ResponseTypeCode,
			storage.ResponseTypeToken,
			storage.ResponseTypeIDToken,
		},
		"token_endpoint_auth_methods_supported": []string{
			storage.AuthMethodSecretBasic,
			storage.AuthMethodSecretPost,
			storage.AuthMethodSecretJWT,
			storage.AuthMethodPrivateKeyJWT,
			storage.AuthMethodTLSClientAuth,
		},
		"id_token_signing_alg_values_supported": []string{
			"HS256", "HS384", "HS512",
			"RS256", "RS384", "RS512",
			"ES256", "ES384", "ES512",
		},
	})
}

func writeOAuthError(w http.ResponseWriter, err error) {
	oe := oautherr.AsError(err)
	if cause := oe.Unwrap(); cause != nil {
		logger.Errorw("request failed", "error", cause, "code", oe.Code)
	}
	if oe.StatusCode() == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="openauthd"`)
	}
	writeJSON(w, oe.StatusCode(), errorResponse{Error: oe.Code, ErrorDescription: oe.Description})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}
