// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the authorization server over HTTP: the token and
// revocation endpoints, the published key set and the discovery document.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openauthd/openauthd/pkg/grant"
	"github.com/openauthd/openauthd/pkg/keys"
	"github.com/openauthd/openauthd/pkg/logger"
)

// Endpoint paths.
const (
	TokenPath     = "/oauth/token"
	RevokePath    = "/oauth/revoke"
	JWKSPath      = "/.well-known/jwks.json"
	DiscoveryPath = "/.well-known/openid-configuration"
)

// Server is the HTTP front of the authorization server.
type Server struct {
	engine *grant.Engine
	keys   keys.Store
	issuer string
	router chi.Router
	http   *http.Server
}

// New creates a server listening on addr once Start is called.
func New(addr, issuer string, engine *grant.Engine, keyStore keys.Store) *Server {
	s := &Server{
		engine: engine,
		keys:   keyStore,
		issuer: issuer,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post(TokenPath, s.handleToken)
	r.Post(RevokePath, s.handleRevoke)
	r.Get(JWKSPath, s.handleJWKS)
	r.Get(DiscoveryPath, s.handleDiscovery)
	r.Get("/health", s.handleHealth)
	s.router = r

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.Infow("starting authorization server", "addr", s.http.Addr, "issuer", s.issuer)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down authorization server")
	return s.http.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugw("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

func (*Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
