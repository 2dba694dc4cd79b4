// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// RemoteFetcher resolves keys published at a jwks_uri. Key sets are cached
// and refreshed in the background, so repeated lookups for the same client
// do not hit the network.
type RemoteFetcher struct {
	cache *jwk.Cache

	mu         sync.Mutex
	registered map[string]bool
}

// NewRemoteFetcher creates a fetcher backed by an auto-refreshing JWKS cache.
// The context bounds the lifetime of the background refresh workers.
func NewRemoteFetcher(ctx context.Context, client *http.Client) (*RemoteFetcher, error) {
	opts := []httprc.NewClientOption{}
	if client != nil {
		opts = append(opts, httprc.WithHTTPClient(client))
	}
	cache, err := jwk.NewCache(ctx, httprc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}
	return &RemoteFetcher{
		cache:      cache,
		registered: make(map[string]bool),
	}, nil
}

// FetchKey returns the key with the given kid from the JWKS at uri, or nil
// if the set has no such key.
func (f *RemoteFetcher) FetchKey(ctx context.Context, uri, kid string) (*JSONWebKey, error) {
	if err := f.register(ctx, uri); err != nil {
		return nil, err
	}

	set, err := f.cache.Lookup(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", uri, err)
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, nil
	}
	return FromJWK(key)
}

func (f *RemoteFetcher) register(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registered[uri] {
		return nil
	}
	if err := f.cache.Register(ctx, uri); err != nil {
		return fmt.Errorf("failed to register JWKS URL %s: %w", uri, err)
	}
	f.registered[uri] = true
	return nil
}
