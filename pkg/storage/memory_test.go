// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSecretMatches(t *testing.T) {
	t.Parallel()

	plain := &ClientSecret{Kind: SecretPlain, Value: "client1-secret"}
	assert.True(t, plain.Matches("client1-secret"))
	assert.False(t, plain.Matches("wrong"))

	digest, err := HashSecret("client1-secret")
	require.NoError(t, err)
	hashed := &ClientSecret{Kind: SecretHashed, Value: digest}
	assert.True(t, hashed.Matches("client1-secret"))
	assert.False(t, hashed.Matches("wrong"))
}

func TestResourceOwnerAuthenticate(t *testing.T) {
	t.Parallel()

	repo := NewMemoryResourceOwnerRepository(&ResourceOwner{
		ID:       "habarthierry@hotmail.fr",
		Password: "password",
		Claims:   map[string]any{"sub": "habarthierry@hotmail.fr"},
	})

	owner, err := repo.Authenticate(context.Background(), "habarthierry@hotmail.fr", "password")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "habarthierry@hotmail.fr", owner.ID)

	owner, err = repo.Authenticate(context.Background(), "habarthierry@hotmail.fr", "wrong")
	require.NoError(t, err)
	assert.Nil(t, owner)

	owner, err = repo.Authenticate(context.Background(), "unknown", "password")
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestClientHelpers(t *testing.T) {
	t.Parallel()

	client := &Client{
		ID:            "client1",
		GrantTypes:    []string{GrantTypeClientCredentials},
		ResponseTypes: []string{ResponseTypeToken, ResponseTypeIDToken},
		AllowedScopes: []string{"openid", "profile"},
		Secrets: []ClientSecret{
			{Kind: SecretPlain, Value: "secret"},
		},
	}

	assert.Equal(t, AuthMethodSecretBasic, client.AuthMethod())
	assert.True(t, client.HasGrantType(GrantTypeClientCredentials))
	assert.False(t, client.HasGrantType(GrantTypePassword))
	assert.True(t, client.HasAllowedScopes([]string{"openid"}))
	assert.False(t, client.HasAllowedScopes([]string{"openid", "email"}))
	assert.NotNil(t, client.Secret("secret"))
	assert.Nil(t, client.Secret("wrong"))
	assert.Equal(t, "secret", client.PlainSecret())
}

func TestMemoryCodeStoreConsumeOnce(t *testing.T) {
	t.Parallel()

	store := NewMemoryCodeStore(context.Background(), time.Minute)
	code := &AuthorizationCode{Code: "abc", ClientID: "client1", CreatedAt: time.Now()}
	require.NoError(t, store.Add(context.Background(), code))

	got, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, got)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := store.Consume(context.Background(), "abc")
			assert.NoError(t, err)
			if consumed != nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one consumer wins the code")

	got, err = store.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCodeStoreExpiry(t *testing.T) {
	t.Parallel()

	store := NewMemoryCodeStore(context.Background(), time.Minute)
	code := &AuthorizationCode{Code: "old", CreatedAt: time.Now().Add(-2 * time.Minute)}
	require.NoError(t, store.Add(context.Background(), code))

	got, err := store.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Nil(t, got)

	consumed, err := store.Consume(context.Background(), "old")
	require.NoError(t, err)
	assert.Nil(t, consumed)
}

func TestMemoryTokenStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryTokenStore(context.Background())
	token := &GrantedToken{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		Scope:        "openid",
		ClientID:     "client1",
		ExpiresIn:    3600,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Add(context.Background(), token))

	byAccess, err := store.GetByAccessToken(context.Background(), "at-1")
	require.NoError(t, err)
	require.NotNil(t, byAccess)

	byRefresh, err := store.GetByRefreshToken(context.Background(), "rt-1")
	require.NoError(t, err)
	require.NotNil(t, byRefresh)
	assert.Equal(t, "at-1", byRefresh.AccessToken)

	bySpec, err := store.GetBySpec(context.Background(), "openid", "client1")
	require.NoError(t, err)
	assert.Len(t, bySpec, 1)

	bySpec, err = store.GetBySpec(context.Background(), "profile", "client1")
	require.NoError(t, err)
	assert.Empty(t, bySpec)

	require.NoError(t, store.RemoveByRefreshToken(context.Background(), "rt-1"))

	byAccess, err = store.GetByAccessToken(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Nil(t, byAccess, "removing by refresh token removes the access token too")
}

func TestGrantedTokenExpiredBoundary(t *testing.T) {
	t.Parallel()

	now := time.Now()
	token := &GrantedToken{CreatedAt: now.Add(-time.Hour), ExpiresIn: 3600}
	assert.True(t, token.Expired(now), "a token expiring exactly now is expired")
	assert.False(t, token.Expired(now.Add(-time.Second)))
}
