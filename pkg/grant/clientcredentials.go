// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"context"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/storage"
)

// clientCredentials issues a token to the client itself. No id_token is
// produced; an equivalent live token for the same client and scope is
// returned instead of minting a new one.
func (e *Engine) clientCredentials(ctx context.Context, req *TokenRequest, in *authenticate.Instruction) (*storage.GrantedToken, error) {
	client, err := e.authenticator.Authenticate(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := checkGrantType(client, storage.GrantTypeClientCredentials); err != nil {
		return nil, err
	}
	if err := checkResponseTypes(client, storage.ResponseTypeToken); err != nil {
		return nil, err
	}

	names, err := e.validateScopes(ctx, client, req.Scope)
	if err != nil {
		return nil, err
	}

	return e.reuseOrMint(ctx, client, scopesOf(names), "", nil, nil)
}
