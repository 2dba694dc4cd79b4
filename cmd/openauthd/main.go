// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Command openauthd runs the OAuth2/OIDC authorization server.
package main

import (
	"os"

	"github.com/openauthd/openauthd/pkg/logger"
)

func main() {
	logger.Initialize()
	if err := newRootCmd().Execute(); err != nil {
		logger.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
