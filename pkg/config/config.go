// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the server configuration from a YAML
// file and OPENAUTHD_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openauthd/openauthd/pkg/keys"
	"github.com/openauthd/openauthd/pkg/storage"
)

// Defaults applied when the file and environment leave a field unset.
const (
	DefaultListenAddr           = ":8080"
	DefaultTokenValiditySeconds = 3600
	DefaultCodeValiditySeconds  = 600
)

// Config is the full server configuration.
type Config struct {
	// Issuer is the issuer name written into tokens and expected in client
	// assertion audiences.
	Issuer string `mapstructure:"issuer"`

	// ListenAddr is the HTTP listen address.
	ListenAddr string `mapstructure:"listen_addr"`

	TokenValiditySeconds int `mapstructure:"token_validity_seconds"`
	CodeValiditySeconds  int `mapstructure:"code_validity_seconds"`

	// AllowNoneAlgorithm enables unsigned tokens. Off unless explicitly
	// turned on.
	AllowNoneAlgorithm bool `mapstructure:"allow_none_algorithm"`

	// SigningKeyFile is a PEM private key used to sign tokens. When empty an
	// ephemeral key is generated at startup.
	SigningKeyFile   string `mapstructure:"signing_key_file"`
	SigningKeyID     string `mapstructure:"signing_key_id"`
	SigningAlgorithm string `mapstructure:"signing_algorithm"`

	Redis RedisConfig `mapstructure:"redis"`

	Clients []ClientConfig `mapstructure:"clients"`
	Scopes  []ScopeConfig  `mapstructure:"scopes"`
	Users   []UserConfig   `mapstructure:"users"`
}

// RedisConfig selects the shared Redis backend for codes and tokens. When
// disabled everything stays in process memory.
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ClientConfig is one registered client.
type ClientConfig struct {
	ID                          string   `mapstructure:"id"`
	Name                        string   `mapstructure:"name"`
	Secret                      string   `mapstructure:"secret"`
	HashedSecret                string   `mapstructure:"hashed_secret"`
	TokenEndpointAuthMethod     string   `mapstructure:"token_endpoint_auth_method"`
	JwksURI                     string   `mapstructure:"jwks_uri"`
	IDTokenSignedResponseAlg    string   `mapstructure:"id_token_signed_response_alg"`
	IDTokenEncryptedResponseAlg string   `mapstructure:"id_token_encrypted_response_alg"`
	IDTokenEncryptedResponseEnc string   `mapstructure:"id_token_encrypted_response_enc"`
	TLSClientAuthSubjectDN      string   `mapstructure:"tls_client_auth_subject_dn"`
	GrantTypes                  []string `mapstructure:"grant_types"`
	ResponseTypes               []string `mapstructure:"response_types"`
	RedirectURIs                []string `mapstructure:"redirect_uris"`
	AllowedScopes               []string `mapstructure:"allowed_scopes"`
}

// ScopeConfig is one registered scope.
type ScopeConfig struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	IsOpenID    bool     `mapstructure:"is_openid"`
	Claims      []string `mapstructure:"claims"`
}

// UserConfig is one resource owner.
type UserConfig struct {
	ID             string         `mapstructure:"id"`
	Password       string         `mapstructure:"password"`
	PasswordHashed bool           `mapstructure:"password_hashed"`
	Claims         map[string]any `mapstructure:"claims"`
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPENAUTHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("token_validity_seconds", DefaultTokenValiditySeconds)
	v.SetDefault("code_validity_seconds", DefaultCodeValiditySeconds)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.TokenValiditySeconds == 0 {
		c.TokenValiditySeconds = DefaultTokenValiditySeconds
	}
	if c.CodeValiditySeconds == 0 {
		c.CodeValiditySeconds = DefaultCodeValiditySeconds
	}
	if c.SigningAlgorithm == "" {
		c.SigningAlgorithm = keys.DefaultAlgorithm
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if c.TokenValiditySeconds < 0 || c.CodeValiditySeconds < 0 {
		return fmt.Errorf("validity durations cannot be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	seen := make(map[string]bool, len(c.Clients))
	for _, client := range c.Clients {
		if client.ID == "" {
			return fmt.Errorf("every client needs an id")
		}
		if seen[client.ID] {
			return fmt.Errorf("duplicate client id %q", client.ID)
		}
		seen[client.ID] = true
	}
	return nil
}

// TokenValidity returns the access token lifetime.
func (c *Config) TokenValidity() time.Duration {
	return time.Duration(c.TokenValiditySeconds) * time.Second
}

// CodeValidity returns the authorization code lifetime.
func (c *Config) CodeValidity() time.Duration {
	return time.Duration(c.CodeValiditySeconds) * time.Second
}

// StorageClients converts the configured clients to the storage model.
func (c *Config) StorageClients() []*storage.Client {
	out := make([]*storage.Client, 0, len(c.Clients))
	for _, cc := range c.Clients {
		client := &storage.Client{
			ID:                          cc.ID,
			Name:                        cc.Name,
			TokenEndpointAuthMethod:     cc.TokenEndpointAuthMethod,
			JwksURI:                     cc.JwksURI,
			IDTokenSignedResponseAlg:    cc.IDTokenSignedResponseAlg,
			IDTokenEncryptedResponseAlg: cc.IDTokenEncryptedResponseAlg,
			IDTokenEncryptedResponseEnc: cc.IDTokenEncryptedResponseEnc,
			TLSClientAuthSubjectDN:      cc.TLSClientAuthSubjectDN,
			GrantTypes:                  cc.GrantTypes,
			ResponseTypes:               cc.ResponseTypes,
			RedirectURIs:                cc.RedirectURIs,
			AllowedScopes:               cc.AllowedScopes,
		}
		if cc.Secret != "" {
			client.Secrets = append(client.Secrets, storage.ClientSecret{Kind: storage.SecretPlain, Value: cc.Secret})
		}
		if cc.HashedSecret != "" {
			client.Secrets = append(client.Secrets, storage.ClientSecret{Kind: storage.SecretHashed, Value: cc.HashedSecret})
		}
		out = append(out, client)
	}
	return out
}

// StorageScopes converts the configured scopes to the storage model.
func (c *Config) StorageScopes() []*storage.Scope {
	out := make([]*storage.Scope, 0, len(c.Scopes))
	for _, sc := range c.Scopes {
		out = append(out, &storage.Scope{
			Name:        sc.Name,
			Description: sc.Description,
			IsOpenID:    sc.IsOpenID,
			Claims:      sc.Claims,
		})
	}
	return out
}

// StorageUsers converts the configured users to the storage model.
func (c *Config) StorageUsers() []*storage.ResourceOwner {
	out := make([]*storage.ResourceOwner, 0, len(c.Users))
	for _, uc := range c.Users {
		out = append(out, &storage.ResourceOwner{
			ID:             uc.ID,
			Password:       uc.Password,
			PasswordHashed: uc.PasswordHashed,
			Claims:         uc.Claims,
		})
	}
	return out
}
