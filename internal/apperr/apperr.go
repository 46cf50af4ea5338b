// Package apperr classifies gateway failures and maps them to HTTP statuses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the failure class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindClient
	KindUnauthorized
	KindUpstream
	KindTimeout
)

// Error carries a Kind, a client-safe message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Client returns a client error (400) with the given message.
func Client(format string, args ...any) error {
	return &Error{Kind: KindClient, Msg: fmt.Sprintf(format, args...)}
}

// Unauthorized returns an error that maps to 401.
func Unauthorized(reason string) error {
	return &Error{Kind: KindUnauthorized, Msg: reason}
}

// Upstream wraps a failed origin or object store call.
func Upstream(msg string, err error) error {
	kind := KindUpstream
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// HostError rejects a URL whose host is not in the allow-list.
type HostError struct {
	Host    string
	Allowed []string
}

func (e *HostError) Error() string {
	if e.Host == "" {
		return "invalid url or host not allowed"
	}
	return fmt.Sprintf("host %q not allowed (allowed: %s)", e.Host, strings.Join(e.Allowed, ", "))
}

// KindOf reports the Kind of err. Unclassified errors are internal, except
// deadline errors which are timeouts.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var he *HostError
	if errors.As(err, &he) {
		return KindClient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindClient:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text that may be shown to a client for err.
func Message(err error) string {
	switch KindOf(err) {
	case KindUnauthorized:
		return "unauthorized"
	case KindClient:
		var he *HostError
		if errors.As(err, &he) {
			return he.Error()
		}
		var ae *Error
		if errors.As(err, &ae) {
			return ae.Msg
		}
		return err.Error()
	case KindUpstream:
		return "upstream fetch failed"
	case KindTimeout:
		return "upstream timeout"
	default:
		return "internal error"
	}
}
