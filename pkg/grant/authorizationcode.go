// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// authorizationCode exchanges a one-time code for tokens. The code is
// consumed before anything is validated: a code that reaches validation and
// fails is burned, never retried, and a concurrent exchange of the same code
// succeeds for exactly one caller.
func (e *Engine) authorizationCode(ctx context.Context, req *TokenRequest, in *authenticate.Instruction) (*storage.GrantedToken, error) {
	client, err := e.authenticator.Authenticate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := checkGrantType(client, storage.GrantTypeAuthorizationCode); err != nil {
		return nil, err
	}

	if req.Code == "" {
		return nil, oautherr.New(oautherr.CodeInvalidRequest, "the parameter code is missing")
	}

	code, err := e.codes.Consume(ctx, req.Code)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if code == nil {
		return nil, oautherr.New(oautherr.CodeInvalidGrant, "the authorization code is not correct")
	}

	if code.ClientID != client.ID {
		return nil, oautherr.Newf(oautherr.CodeInvalidGrant,
			"the authorization code has not been issued for the client id %s", client.ID)
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, oautherr.New(oautherr.CodeInvalidGrant,
			"the redirect uri is not the same than the one passed in the authorization request")
	}
	if !e.now().Before(code.CreatedAt.Add(e.codeValidity)) {
		return nil, oautherr.New(oautherr.CodeInvalidGrant, "the authorization code is obsolete")
	}
	if !registeredRedirectURI(client, req.RedirectURI) {
		return nil, oautherr.Newf(oautherr.CodeInvalidGrant,
			"the redirect url %s doesn't exist or is not valid", req.RedirectURI)
	}

	return e.reuseOrMint(ctx, client, code.Scopes, code.Code, code.IDTokenPayload, code.UserInfoPayload)
}

// registeredRedirectURI reports whether uri is one of the client's
// registered redirection endpoints.
func registeredRedirectURI(client *storage.Client, uri string) bool {
	for _, registered := range client.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
