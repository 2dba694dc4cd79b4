// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/logger"
	"github.com/openauthd/openauthd/pkg/oautherr"
)

// RevokeRequest is a parsed revocation endpoint request body (RFC 7009).
type RevokeRequest struct {
	Token string

	// TokenTypeHint is accepted and ignored; both lookups run regardless.
	TokenTypeHint string
}

// Revoke invalidates a token pair. Revoking a token the server does not
// know succeeds: the caller only cares that the token is no longer usable.
// A known token belonging to another client is rejected.
func (e *Engine) Revoke(ctx context.Context, req *RevokeRequest, in *authenticate.Instruction) error {
	client, err := e.authenticator.Authenticate(ctx, in)
	if err != nil {
		return err
	}

	if req.Token == "" {
		return oautherr.New(oautherr.CodeInvalidRequest, "the parameter token is missing")
	}

	token, err := e.tokens.GetByAccessToken(ctx, req.Token)
	if err != nil {
		return oautherr.Internal(err)
	}
	if token == nil {
		token, err = e.tokens.GetByRefreshToken(ctx, req.Token)
		if err != nil {
			return oautherr.Internal(err)
		}
	}
	if token == nil {
		logger.Debugw("revocation of unknown token", "client_id", client.ID)
		return nil
	}

	if token.ClientID != client.ID {
		return oautherr.New(oautherr.CodeInvalidToken, "the token has not been issued for the given client id")
	}

	if err := e.tokens.RemoveByAccessToken(ctx, token.AccessToken); err != nil {
		return oautherr.Internal(err)
	}
	logger.Infow("token revoked", "client_id", client.ID)
	return nil
}
