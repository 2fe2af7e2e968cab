package router

import (
	"errors"
	"fmt"

	"github.com/spachava753/smsbridge/store"
	"github.com/spachava753/smsbridge/transport"
)

// Kind is the machine-readable failure class of a Response.
type Kind string

const (
	// KindInvalidArgument indicates malformed or missing command arguments.
	KindInvalidArgument Kind = "invalid_argument"
	// KindPermissionDenied indicates the permission gate refused the command.
	KindPermissionDenied Kind = "permission_denied"
	// KindWriteFailed indicates the store rejected an insert.
	KindWriteFailed Kind = "write_failed"
	// KindReadFailed indicates the store failed a query.
	KindReadFailed Kind = "read_failed"
	// KindSendFailed indicates the transport rejected a message.
	KindSendFailed Kind = "send_failed"
	// KindNotImplemented indicates the command name is not supported.
	KindNotImplemented Kind = "not_implemented"
)

// Error is a typed command failure.
type Error struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e == nil {
		return "router: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("router: %s", e.Kind)
	}
	return fmt.Sprintf("router: %s: %s", e.Kind, e.Message)
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// classify converts an adapter error into a typed failure, falling back to
// kind when the error carries no code of its own.
func classify(err error, fallback Kind) *Error {
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Code {
		case store.ErrorCodeInvalidArgument:
			return &Error{Kind: KindInvalidArgument, Message: storeErr.Message}
		case store.ErrorCodeWriteFailed:
			return &Error{Kind: KindWriteFailed, Message: storeErr.Message}
		case store.ErrorCodeReadFailed:
			return &Error{Kind: KindReadFailed, Message: storeErr.Message}
		}
	}

	var transportErr *transport.Error
	if errors.As(err, &transportErr) {
		switch transportErr.Code {
		case transport.ErrorCodeInvalidArgument:
			return &Error{Kind: KindInvalidArgument, Message: transportErr.Message}
		case transport.ErrorCodeSendFailed:
			return &Error{Kind: KindSendFailed, Message: transportErr.Message}
		}
	}

	var routerErr *Error
	if errors.As(err, &routerErr) {
		return routerErr
	}
	return &Error{Kind: fallback, Message: err.Error()}
}
