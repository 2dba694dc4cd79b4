// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openauthd/openauthd/pkg/logger"
)

// Redis key TTL defaults. The token TTL bounds how long a refresh token can
// be replayed, not the access token lifetime; the grant engine checks that.
const (
	defaultCodeTTL  = 10 * time.Minute
	defaultTokenTTL = 30 * 24 * time.Hour
)

// RedisStore backs the authorization code and granted token stores with
// Redis, letting several server instances share state. Expiry is delegated
// to key TTLs.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	codeTTL  time.Duration
	tokenTTL time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key, so several deployments can share an
// instance.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.codeTTL = ttl
	}
}

// WithTokenTTL overrides how long granted token records are retained.
func WithTokenTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.tokenTTL = ttl
	}
}

// NewRedisStore creates a store on an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:   client,
		prefix:   "openauthd:",
		codeTTL:  defaultCodeTTL,
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) codeKey(code string) string {
	return s.prefix + "code:" + code
}

func (s *RedisStore) accessKey(token string) string {
	return s.prefix + "at:" + token
}

func (s *RedisStore) refreshKey(token string) string {
	return s.prefix + "rt:" + token
}

func (s *RedisStore) specKey(scope, clientID string) string {
	return s.prefix + "spec:" + clientID + ":" + scope
}

// Add implements AuthorizationCodeStore.
func (s *RedisStore) Add(ctx context.Context, code *AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to encode authorization code: %w", err)
	}
	if err := s.client.Set(ctx, s.codeKey(code.Code), data, s.codeTTL).Err(); err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	return nil
}

// Get implements AuthorizationCodeStore.
func (s *RedisStore) Get(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.client.Get(ctx, s.codeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}
	return decodeCode(data)
}

// Consume implements AuthorizationCodeStore. GETDEL makes the read-and-remove
// a single Redis command, so concurrent exchanges of one code yield exactly
// one winner even across server instances.
func (s *RedisStore) Consume(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.client.GetDel(ctx, s.codeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}
	return decodeCode(data)
}

func decodeCode(data []byte) (*AuthorizationCode, error) {
	var code AuthorizationCode
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, fmt.Errorf("failed to decode authorization code: %w", err)
	}
	return &code, nil
}

// AddToken implements TokenStore.Add.
func (s *RedisStore) AddToken(ctx context.Context, token *GrantedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode granted token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.accessKey(token.AccessToken), data, s.tokenTTL)
	if token.RefreshToken != "" {
		pipe.Set(ctx, s.refreshKey(token.RefreshToken), token.AccessToken, s.tokenTTL)
	}
	spec := s.specKey(token.Scope, token.ClientID)
	pipe.SAdd(ctx, spec, token.AccessToken)
	pipe.Expire(ctx, spec, s.tokenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store granted token: %w", err)
	}
	return nil
}

// GetByAccessToken implements TokenStore.
func (s *RedisStore) GetByAccessToken(ctx context.Context, accessToken string) (*GrantedToken, error) {
	data, err := s.client.Get(ctx, s.accessKey(accessToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read granted token: %w", err)
	}
	return decodeToken(data)
}

// GetByRefreshToken implements TokenStore.
func (s *RedisStore) GetByRefreshToken(ctx context.Context, refreshToken string) (*GrantedToken, error) {
	access, err := s.client.Get(ctx, s.refreshKey(refreshToken)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve refresh token: %w", err)
	}
	return s.GetByAccessToken(ctx, access)
}

// GetBySpec implements TokenStore. Stale index entries left behind by key
// expiry are pruned as they are found.
func (s *RedisStore) GetBySpec(ctx context.Context, scope, clientID string) ([]*GrantedToken, error) {
	spec := s.specKey(scope, clientID)
	members, err := s.client.SMembers(ctx, spec).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read token index: %w", err)
	}

	var out []*GrantedToken
	var stale []any
	for _, access := range members {
		token, err := s.GetByAccessToken(ctx, access)
		if err != nil {
			return nil, err
		}
		if token == nil {
			stale = append(stale, access)
			continue
		}
		out = append(out, token)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, spec, stale...).Err(); err != nil {
			logger.Warnw("failed to prune token index", "error", err)
		}
	}
	return out, nil
}

// RemoveByAccessToken implements TokenStore.
func (s *RedisStore) RemoveByAccessToken(ctx context.Context, accessToken string) error {
	token, err := s.GetByAccessToken(ctx, accessToken)
	if err != nil || token == nil {
		return err
	}
	return s.removeToken(ctx, token)
}

// RemoveByRefreshToken implements TokenStore.
func (s *RedisStore) RemoveByRefreshToken(ctx context.Context, refreshToken string) error {
	token, err := s.GetByRefreshToken(ctx, refreshToken)
	if err != nil || token == nil {
		return err
	}
	return s.removeToken(ctx, token)
}

func (s *RedisStore) removeToken(ctx context.Context, token *GrantedToken) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.accessKey(token.AccessToken))
	if token.RefreshToken != "" {
		pipe.Del(ctx, s.refreshKey(token.RefreshToken))
	}
	pipe.SRem(ctx, s.specKey(token.Scope, token.ClientID), token.AccessToken)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove granted token: %w", err)
	}
	return nil
}

func decodeToken(data []byte) (*GrantedToken, error) {
	var token GrantedToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode granted token: %w", err)
	}
	return &token, nil
}

// RedisTokenStore adapts RedisStore to the TokenStore interface. The
// adapter exists because Add is taken by the code store on the same struct.
type RedisTokenStore struct {
	*RedisStore
}

// Add implements TokenStore.
func (s RedisTokenStore) Add(ctx context.Context, token *GrantedToken) error {
	return s.AddToken(ctx, token)
}

// Tokens returns the TokenStore view of the store.
func (s *RedisStore) Tokens() RedisTokenStore {
	return RedisTokenStore{s}
}

var (
	_ AuthorizationCodeStore = (*RedisStore)(nil)
	_ TokenStore             = RedisTokenStore{}
)
