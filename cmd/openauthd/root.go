// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/openauthd/openauthd/pkg/authenticate"
	"github.com/openauthd/openauthd/pkg/config"
	"github.com/openauthd/openauthd/pkg/grant"
	"github.com/openauthd/openauthd/pkg/idtoken"
	"github.com/openauthd/openauthd/pkg/jwt"
	"github.com/openauthd/openauthd/pkg/keys"
	"github.com/openauthd/openauthd/pkg/logger"
	"github.com/openauthd/openauthd/pkg/server"
	"github.com/openauthd/openauthd/pkg/storage"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "openauthd",
		Short:        "OAuth2/OIDC authorization server",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")
	return cmd
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	signingKey, err := loadSigningKey(cfg)
	if err != nil {
		return err
	}
	keyStore := keys.NewMemoryStore(signingKey)
	logger.Infow("signing key ready", "kid", signingKey.Kid, "alg", signingKey.Alg)

	clients := storage.NewMemoryClientRepository(cfg.StorageClients()...)
	scopes := storage.NewMemoryScopeRepository(cfg.StorageScopes()...)
	owners := storage.NewMemoryResourceOwnerRepository(cfg.StorageUsers()...)

	codes, tokens, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}

	codec := jwt.NewCodec(jwt.WithNoneAlgorithm(cfg.AllowNoneAlgorithm))

	remote, err := keys.NewRemoteFetcher(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to set up remote key fetching: %w", err)
	}

	authenticator := authenticate.New(clients, keyStore, codec, cfg.Issuer,
		authenticate.WithRemoteFetcher(remote))
	generator := idtoken.NewGenerator(clients, scopes, keyStore, codec, cfg.Issuer,
		idtoken.WithValidity(cfg.TokenValidity()))
	engine := grant.NewEngine(clients, scopes, owners, codes, tokens, authenticator, generator,
		grant.WithTokenValidity(cfg.TokenValidity()),
		grant.WithCodeValidity(cfg.CodeValidity()))

	srv := server.New(cfg.ListenAddr, cfg.Issuer, engine, keyStore)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadSigningKey(cfg *config.Config) (*keys.JSONWebKey, error) {
	if cfg.SigningKeyFile != "" {
		return keys.LoadSigningJWK(cfg.SigningKeyFile, cfg.SigningKeyID, cfg.SigningAlgorithm)
	}
	logger.Warn("no signing key configured, generating an ephemeral one")
	return keys.GenerateSigningJWK(cfg.SigningAlgorithm)
}

func buildStores(ctx context.Context, cfg *config.Config) (storage.AuthorizationCodeStore, storage.TokenStore, error) {
	if !cfg.Redis.Enabled {
		return storage.NewMemoryCodeStore(ctx, cfg.CodeValidity()), storage.NewMemoryTokenStore(ctx), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
	}

	opts := []storage.RedisOption{storage.WithCodeTTL(cfg.CodeValidity())}
	if cfg.Redis.KeyPrefix != "" {
		opts = append(opts, storage.WithKeyPrefix(cfg.Redis.KeyPrefix))
	}
	store := storage.NewRedisStore(client, opts...)
	logger.Infow("using redis storage", "addr", cfg.Redis.Addr)
	return store, store.Tokens(), nil
}
