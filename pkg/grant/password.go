// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/idtoken"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// resourceOwnerPassword exchanges end-user credentials for a token pair with
// an id_token. The client must be registered for both the token and
// id_token response types.
func (e *Engine) resourceOwnerPassword(ctx context.Context, req *TokenRequest, in *authenticate.Instruction) (*storage.GrantedToken, error) {
	client, err := e.authenticator.Authenticate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := checkGrantType(client, storage.GrantTypePassword); err != nil {
		return nil, err
	}
	if err := checkResponseTypes(client, storage.ResponseTypeToken, storage.ResponseTypeIDToken); err != nil {
		return nil, err
	}

	if req.Username == "" {
		return nil, oautherr.New(oautherr.CodeInvalidRequest, "the parameter username is missing")
	}
	if req.Password == "" {
		return nil, oautherr.New(oautherr.CodeInvalidRequest, "the parameter password is missing")
	}

	owner, err := e.owners.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if owner == nil {
		return nil, oautherr.New(oautherr.CodeInvalidGrant, "resource owner credentials are not valid")
	}

	names, err := e.validateScopes(ctx, client, req.Scope)
	if err != nil {
		return nil, err
	}

	principal := &idtoken.Principal{
		Subject:               owner.ID,
		Claims:                owner.Claims,
		AuthenticationInstant: owner.AuthenticationInstant,
	}
	idReq := &idtoken.Request{ClientID: client.ID, Scopes: names}

	idPayload, err := e.generator.GenerateIDTokenPayload(ctx, principal, idReq)
	if err != nil {
		return nil, err
	}
	userPayload, err := e.generator.GenerateUserInfoPayload(ctx, principal, idReq)
	if err != nil {
		return nil, err
	}

	return e.reuseOrMint(ctx, client, scopesOf(names), "", idPayload, userPayload)
}
