// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"time"

	"github.com/openauthd/openauthd/pkg/logger"
)

// defaultCleanupInterval is how often the in-memory stores sweep expired
// entries.
const defaultCleanupInterval = time.Minute

// MemoryClientRepository is a fixed, in-memory client registry.
type MemoryClientRepository struct {
	mu      sync.RWMutex
	clients map[string]*Client
	order   []string
}

// NewMemoryClientRepository creates a registry seeded with the given clients.
func NewMemoryClientRepository(clients ...*Client) *MemoryClientRepository {
	r := &MemoryClientRepository{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		r.Add(c)
	}
	return r
}

// Add registers a client, replacing any previous one with the same id.
func (r *MemoryClientRepository) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[client.ID]; !exists {
		r.order = append(r.order, client.ID)
	}
	r.clients[client.ID] = client
}

// GetByID implements ClientRepository.
func (r *MemoryClientRepository) GetByID(_ context.Context, id string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[id], nil
}

// GetAll implements ClientRepository. Clients come back in registration order.
func (r *MemoryClientRepository) GetAll(_ context.Context) ([]*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.clients[id])
	}
	return out, nil
}

// MemoryScopeRepository is a fixed, in-memory scope registry.
type MemoryScopeRepository struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
}

// NewMemoryScopeRepository creates a registry seeded with the given scopes.
func NewMemoryScopeRepository(scopes ...*Scope) *MemoryScopeRepository {
	r := &MemoryScopeRepository{scopes: make(map[string]*Scope, len(scopes))}
	for _, s := range scopes {
		r.scopes[s.Name] = s
	}
	return r
}

// Add registers a scope.
func (r *MemoryScopeRepository) Add(scope *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[scope.Name] = scope
}

// SearchByNames implements ScopeRepository.
func (r *MemoryScopeRepository) SearchByNames(_ context.Context, names []string) ([]*Scope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Scope
	for _, name := range names {
		if s, ok := r.scopes[name]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// MemoryResourceOwnerRepository is a fixed, in-memory user registry.
type MemoryResourceOwnerRepository struct {
	mu     sync.RWMutex
	owners map[string]*ResourceOwner
}

// NewMemoryResourceOwnerRepository creates a registry seeded with the given
// owners, keyed by id.
func NewMemoryResourceOwnerRepository(owners ...*ResourceOwner) *MemoryResourceOwnerRepository {
	r := &MemoryResourceOwnerRepository{owners: make(map[string]*ResourceOwner, len(owners))}
	for _, o := range owners {
		r.owners[o.ID] = o
	}
	return r
}

// Authenticate implements ResourceOwnerRepository.
func (r *MemoryResourceOwnerRepository) Authenticate(_ context.Context, username, password string) (*ResourceOwner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[username]
	if !ok || !owner.VerifyPassword(password) {
		return nil, nil
	}
	return owner, nil
}

// GetByID implements ResourceOwnerRepository.
func (r *MemoryResourceOwnerRepository) GetByID(_ context.Context, id string) (*ResourceOwner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[id], nil
}

type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCodeStore holds authorization codes in memory with a TTL. Expired
// entries are swept by a background loop and filtered on read.
type MemoryCodeStore struct {
	mu    sync.RWMutex
	codes map[string]timedEntry[*AuthorizationCode]
	ttl   time.Duration
}

// NewMemoryCodeStore creates a code store. The cleanup loop runs until ctx
// is cancelled.
func NewMemoryCodeStore(ctx context.Context, ttl time.Duration) *MemoryCodeStore {
	s := &MemoryCodeStore{
		codes: make(map[string]timedEntry[*AuthorizationCode]),
		ttl:   ttl,
	}
	go s.cleanupLoop(ctx, defaultCleanupInterval)
	return s
}

// Add implements AuthorizationCodeStore.
func (s *MemoryCodeStore) Add(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = timedEntry[*AuthorizationCode]{
		value:     code,
		expiresAt: code.CreatedAt.Add(s.ttl),
	}
	return nil
}

// Get implements AuthorizationCodeStore.
func (s *MemoryCodeStore) Get(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.codes[code]
	if !ok || entry.expired(time.Now()) {
		return nil, nil
	}
	return entry.value, nil
}

// Consume implements AuthorizationCodeStore. The lookup and delete happen
// under one lock, so concurrent exchanges of the same code yield exactly one
// winner.
func (s *MemoryCodeStore) Consume(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	delete(s.codes, code)
	if entry.expired(time.Now()) {
		return nil, nil
	}
	return entry.value, nil
}

func (s *MemoryCodeStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryCodeStore) removeExpired() {
	now := time.Now()

	s.mu.RLock()
	var expired []string
	for code, entry := range s.codes {
		if entry.expired(now) {
			expired = append(expired, code)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, code := range expired {
		if entry, ok := s.codes[code]; ok && entry.expired(now) {
			delete(s.codes, code)
		}
	}
	s.mu.Unlock()

	logger.Debugw("swept expired authorization codes", "count", len(expired))
}

// MemoryTokenStore holds granted tokens in memory, indexed by access token,
// refresh token and (scope, client) pair.
type MemoryTokenStore struct {
	mu        sync.RWMutex
	byAccess  map[string]*GrantedToken
	byRefresh map[string]string
}

// NewMemoryTokenStore creates a token store. The cleanup loop runs until ctx
// is cancelled.
func NewMemoryTokenStore(ctx context.Context) *MemoryTokenStore {
	s := &MemoryTokenStore{
		byAccess:  make(map[string]*GrantedToken),
		byRefresh: make(map[string]string),
	}
	go s.cleanupLoop(ctx, defaultCleanupInterval)
	return s
}

// Add implements TokenStore.
func (s *MemoryTokenStore) Add(_ context.Context, token *GrantedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAccess[token.AccessToken] = token
	if token.RefreshToken != "" {
		s.byRefresh[token.RefreshToken] = token.AccessToken
	}
	return nil
}

// GetByAccessToken implements TokenStore.
func (s *MemoryTokenStore) GetByAccessToken(_ context.Context, accessToken string) (*GrantedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byAccess[accessToken], nil
}

// GetByRefreshToken implements TokenStore.
func (s *MemoryTokenStore) GetByRefreshToken(_ context.Context, refreshToken string) (*GrantedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	access, ok := s.byRefresh[refreshToken]
	if !ok {
		return nil, nil
	}
	return s.byAccess[access], nil
}

// GetBySpec implements TokenStore.
func (s *MemoryTokenStore) GetBySpec(_ context.Context, scope, clientID string) ([]*GrantedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*GrantedToken
	for _, token := range s.byAccess {
		if token.Scope == scope && token.ClientID == clientID {
			out = append(out, token)
		}
	}
	return out, nil
}

// RemoveByAccessToken implements TokenStore.
func (s *MemoryTokenStore) RemoveByAccessToken(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(accessToken)
	return nil
}

// RemoveByRefreshToken implements TokenStore.
func (s *MemoryTokenStore) RemoveByRefreshToken(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if access, ok := s.byRefresh[refreshToken]; ok {
		s.removeLocked(access)
	}
	return nil
}

func (s *MemoryTokenStore) removeLocked(accessToken string) {
	token, ok := s.byAccess[accessToken]
	if !ok {
		return
	}
	delete(s.byAccess, accessToken)
	if token.RefreshToken != "" {
		delete(s.byRefresh, token.RefreshToken)
	}
}

func (s *MemoryTokenStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired drops tokens whose refresh window is over. A token with a
// refresh companion stays until the refresh token itself is unusable, which
// the grant engine enforces; here only blatantly stale access-only tokens go.
func (s *MemoryTokenStore) removeExpired() {
	now := time.Now()

	s.mu.RLock()
	var expired []string
	for access, token := range s.byAccess {
		if token.RefreshToken == "" && token.Expired(now) {
			expired = append(expired, access)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	for _, access := range expired {
		s.removeLocked(access)
	}
	s.mu.Unlock()

	logger.Debugw("swept expired tokens", "count", len(expired))
}

var (
	_ ClientRepository        = (*MemoryClientRepository)(nil)
	_ ScopeRepository         = (*MemoryScopeRepository)(nil)
	_ ResourceOwnerRepository = (*MemoryResourceOwnerRepository)(nil)
	_ AuthorizationCodeStore  = (*MemoryCodeStore)(nil)
	_ TokenStore              = (*MemoryTokenStore)(nil)
)
