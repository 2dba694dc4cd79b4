// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func TestRedisCodeStore(t *testing.T) {
	t.Parallel()

	store, mr := redisStore(t, WithCodeTTL(10*time.Minute))
	ctx := context.Background()

	code := &AuthorizationCode{
		Code:        "abc",
		ClientID:    "client1",
		RedirectURI: "https://client.example.com/cb",
		Scopes:      "openid",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.Add(ctx, code))

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "client1", got.ClientID)

	consumed, err := store.Consume(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, consumed)

	again, err := store.Consume(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, again, "a code is consumed at most once")

	require.NoError(t, store.Add(ctx, code))
	mr.FastForward(11 * time.Minute)

	got, err = store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got, "codes expire with the key TTL")
}

func TestRedisTokenStore(t *testing.T) {
	t.Parallel()

	store, _ := redisStore(t)
	tokens := store.Tokens()
	ctx := context.Background()

	token := &GrantedToken{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		Scope:        "openid profile",
		ClientID:     "client1",
		ExpiresIn:    3600,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, tokens.Add(ctx, token))

	byAccess, err := tokens.GetByAccessToken(ctx, "at-1")
	require.NoError(t, err)
	require.NotNil(t, byAccess)
	assert.Equal(t, "openid profile", byAccess.Scope)

	byRefresh, err := tokens.GetByRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	require.NotNil(t, byRefresh)
	assert.Equal(t, "at-1", byRefresh.AccessToken)

	bySpec, err := tokens.GetBySpec(ctx, "openid profile", "client1")
	require.NoError(t, err)
	assert.Len(t, bySpec, 1)

	require.NoError(t, tokens.RemoveByAccessToken(ctx, "at-1"))

	byRefresh, err = tokens.GetByRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.Nil(t, byRefresh)

	bySpec, err = tokens.GetBySpec(ctx, "openid profile", "client1")
	require.NoError(t, err)
	assert.Empty(t, bySpec)
}

func TestRedisTokenIndexPrunesExpiredEntries(t *testing.T) {
	t.Parallel()

	store, mr := redisStore(t, WithTokenTTL(time.Hour))
	tokens := store.Tokens()
	ctx := context.Background()

	require.NoError(t, tokens.Add(ctx, &GrantedToken{
		AccessToken: "at-1",
		Scope:       "openid",
		ClientID:    "client1",
		ExpiresIn:   3600,
		CreatedAt:   time.Now().UTC(),
	}))

	mr.FastForward(2 * time.Hour)
	mr.SetAdd("openauthd:spec:client1:openid", "at-1")

	bySpec, err := tokens.GetBySpec(ctx, "openid", "client1")
	require.NoError(t, err)
	assert.Empty(t, bySpec, "index entries whose record expired are dropped")
}

func TestRedisKeyPrefix(t *testing.T) {
	t.Parallel()

	store, mr := redisStore(t, WithKeyPrefix("tenant-a:"))
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &AuthorizationCode{Code: "abc", CreatedAt: time.Now().UTC()}))
	assert.True(t, mr.Exists("tenant-a:code:abc"))
}
