// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openauthd/openauthd/pkg/storage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "issuer: https://server.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, time.Hour, cfg.TokenValidity())
	assert.Equal(t, 10*time.Minute, cfg.CodeValidity())
	assert.Equal(t, "RS256", cfg.SigningAlgorithm)
	assert.False(t, cfg.AllowNoneAlgorithm)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
issuer: https://server.example.com
listen_addr: ":9000"
token_validity_seconds: 7200
redis:
  enabled: true
  addr: localhost:6379
  key_prefix: "auth:"
clients:
  - id: client1
    secret: secret
    token_endpoint_auth_method: client_secret_post
    grant_types: [client_credentials]
    response_types: [token]
    allowed_scopes: [openid]
scopes:
  - name: openid
    is_openid: true
users:
  - id: habarthierry@hotmail.fr
    password: password
    claims:
      name: Thierry
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 2*time.Hour, cfg.TokenValidity())
	assert.True(t, cfg.Redis.Enabled)

	clients := cfg.StorageClients()
	require.Len(t, clients, 1)
	assert.Equal(t, storage.AuthMethodSecretPost, clients[0].AuthMethod())
	require.Len(t, clients[0].Secrets, 1)
	assert.Equal(t, storage.SecretPlain, clients[0].Secrets[0].Kind)

	scopes := cfg.StorageScopes()
	require.Len(t, scopes, 1)
	assert.True(t, scopes[0].IsOpenID)

	users := cfg.StorageUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "Thierry", users[0].Claims["name"])
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		c := &Config{Issuer: "https://server.example.com"}
		c.applyDefaults()
		return c
	}

	assert.NoError(t, base().Validate())

	missing := base()
	missing.Issuer = ""
	assert.ErrorContains(t, missing.Validate(), "issuer is required")

	redis := base()
	redis.Redis.Enabled = true
	assert.ErrorContains(t, redis.Validate(), "redis.addr is required")

	dup := base()
	dup.Clients = []ClientConfig{{ID: "client1"}, {ID: "client1"}}
	assert.ErrorContains(t, dup.Validate(), "duplicate client id")

	anonymous := base()
	anonymous.Clients = []ClientConfig{{}}
	assert.ErrorContains(t, anonymous.Validate(), "every client needs an id")
}
