package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/charcord/internal/domain"
)

// Kind classifies provider failures for the conversation controller.
type Kind int

const (
	// KindAuthMissing means the backend requires a token that is not configured.
	KindAuthMissing Kind = iota
	// KindTransport means the request never produced a usable HTTP response.
	KindTransport
	// KindRejected means the backend answered but refused the generation.
	KindRejected
	// KindTimeout means the call or polling loop ran out of time.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindAuthMissing:
		return "auth_missing"
	case KindTransport:
		return "transport_error"
	case KindRejected:
		return "backend_rejected"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a classified provider failure. Detail is for the internal log
// only; callers surface a generic notice to the channel.
type Error struct {
	Kind    Kind
	Backend domain.BackendType
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Backend, e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(backend domain.BackendType, kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Detail: detail, Err: err}
}

// KindOf extracts the failure kind, defaulting to transport for unclassified
// errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransport
}

// classifyTransport maps a failed round trip to the taxonomy.
func classifyTransport(backend domain.BackendType, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(backend, KindTimeout, "request deadline exceeded", err)
	}
	return newError(backend, KindTransport, "", err)
}

// classifyStatus maps a non-2xx HTTP response to the taxonomy.
func classifyStatus(backend domain.BackendType, status int, body string) *Error {
	detail := fmt.Sprintf("status %d: %s", status, truncateDetail(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(backend, KindAuthMissing, detail, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return newError(backend, KindTimeout, detail, nil)
	default:
		return newError(backend, KindRejected, detail, nil)
	}
}

func truncateDetail(s string) string {
	const max = 300
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
