// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/oautherr"
	"github.com/openauthd/openauthd/pkg/storage"
)

// refreshToken rotates a token pair: the old pair is replaced by a fresh one
// carrying the same scope and claim-sets. Only the client the pair was
// issued to can use it.
func (e *Engine) refreshToken(ctx context.Context, req *TokenRequest, in *authenticate.Instruction) (*storage.GrantedToken, error) {
	client, err := e.authenticator.Authenticate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := checkGrantType(client, storage.GrantTypeRefreshToken); err != nil {
		return nil, err
	}

	if req.RefreshToken == "" {
		return nil, oautherr.New(oautherr.CodeInvalidRequest, "the parameter refresh_token is missing")
	}

	existing, err := e.tokens.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, oautherr.Internal(err)
	}
	if existing == nil {
		return nil, oautherr.New(oautherr.CodeInvalidGrant, "the refresh token is not valid")
	}
	if existing.ClientID != client.ID {
		return nil, oautherr.New(oautherr.CodeInvalidGrant, "the refresh token can be used only by the same issuer")
	}

	token := e.mint(client, existing.Scope, existing.IDTokenPayload.Clone(), existing.UserInfoPayload.Clone())
	if token.IDTokenPayload != nil {
		if err := e.generator.FillInAdditionalClaims(token.IDTokenPayload, client, "", token.AccessToken); err != nil {
			return nil, oautherr.Internal(err)
		}
		signed, err := e.generator.SignAndEncrypt(ctx, token.IDTokenPayload, client)
		if err != nil {
			return nil, err
		}
		token.IDToken = signed
	}

	if e.rotateRefresh {
		if err := e.tokens.Add(ctx, token); err != nil {
			return nil, oautherr.Internal(err)
		}
		if err := e.tokens.RemoveByRefreshToken(ctx, req.RefreshToken); err != nil {
			return nil, oautherr.Internal(err)
		}
		return token, nil
	}

	// Rotation disabled: the new pair keeps the presented refresh token, so
	// the old record has to go before the new one claims its index entry.
	token.RefreshToken = existing.RefreshToken
	if err := e.tokens.RemoveByRefreshToken(ctx, req.RefreshToken); err != nil {
		return nil, oautherr.Internal(err)
	}
	if err := e.tokens.Add(ctx, token); err != nil {
		return nil, oautherr.Internal(err)
	}
	return token, nil
}
