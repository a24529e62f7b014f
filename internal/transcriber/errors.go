package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type BackendErrorKind int

const (
	Unavailable BackendErrorKind = iota + 1
	Unauthorized
	Timeout
)

func (k BackendErrorKind) String() string {
	switch k {
	case Unavailable:
		return "unavailable"
	case Unauthorized:
		return "unauthorized"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("backend error %d", int(k))
}

// BackendError is fatal to the session that observed it.
type BackendError struct {
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	if e == nil {
		return "backend error"
	}
	if e.Err == nil {
		return "backend: " + e.Kind.String()
	}
	return fmt.Sprintf("backend: %s: %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewBackendError(kind BackendErrorKind, err error) error {
	return &BackendError{Kind: kind, Err: err}
}

// IsBackendError reports whether err is a BackendError of the given kind.
// A zero kind matches any BackendError.
func IsBackendError(err error, kind BackendErrorKind) bool {
	var be *BackendError
	if !errors.As(err, &be) {
		return false
	}
	return kind == 0 || be.Kind == kind
}

func kindForStatus(code int) BackendErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return Unauthorized
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return Timeout
	}
	return Unavailable
}

// classify wraps err into a BackendError, keeping an existing classification.
func classify(err error, status int) error {
	if err == nil || IsBackendError(err, 0) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewBackendError(Timeout, err)
	}
	if status != 0 {
		return NewBackendError(kindForStatus(status), err)
	}
	return NewBackendError(Unavailable, err)
}
