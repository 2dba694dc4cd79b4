// Copyright 2025 the openauthd authors
// SPDX-License-Identifier: Apache-2.0

// Package oautherr defines the OAuth2 error taxonomy used across the token
// endpoint. Protocol rejections (RFC 6749 Section 5.2) are modeled as value
// errors carrying an error code and a non-sensitive description, so the grant
// engine can map them onto a single error response without exception-driven
// control flow.
package oautherr

import (
	"errors"
	"fmt"
	"net/http"
)

// OAuth2 error codes per RFC 6749 Section 5.2.
const (
	CodeInvalidRequest = "invalid_request"
	CodeInvalidClient  = "invalid_client"
	CodeInvalidGrant   = "invalid_grant"
	CodeInvalidScope   = "invalid_scope"
	CodeInvalidToken   = "invalid_token"
	CodeInternalError  = "internal_error"
)

// Error is an OAuth2 protocol error. Description never contains key material
// or internal detail; those stay in the wrapped cause, which is logged but
// not serialized.
type Error struct {
	Code        string
	Description string
	cause       error
}

// New creates a protocol error with the given code and description.
func New(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Newf creates a protocol error with a formatted description.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// Internal creates an opaque internal_error carrying the cause for logging.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternalError, Description: "an internal error occurred", cause: cause}
}

// Wrap attaches an internal cause to the error. The cause is available via
// errors.Unwrap but is never written to the client.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Description: e.Description, cause: cause}
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Unwrap returns the internal cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on the error code so sentinel comparisons work across wrapping.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// StatusCode returns the HTTP status the error maps to at the token endpoint.
// invalid_client is 401 per RFC 6749 Section 5.2; internal errors are 500;
// everything else is 400.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeInvalidClient:
		return http.StatusUnauthorized
	case CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// AsError extracts an *Error from err, mapping unknown errors to an opaque
// internal_error so storage and crypto detail never reaches the caller.
func AsError(err error) *Error {
	var oe *Error
	if errors.As(err, &oe) {
		return oe
	}
	return New(CodeInternalError, "an internal error occurred").Wrap(err)
}
