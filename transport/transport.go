// Package transport hands messages to a platform send primitive.
//
// The adapter makes exactly one attempt per call. Success means the platform
// accepted the message for delivery; delivery confirmation is not observable
// here, so retries belong to the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Sender is the platform messaging-transport interface. A nil error means the
// message was accepted for delivery.
type Sender interface {
	Send(ctx context.Context, address string, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, address string, body string) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, address string, body string) error {
	return f(ctx, address, body)
}

// ErrorCode classifies transport failures.
type ErrorCode string

const (
	// ErrorCodeInvalidArgument indicates a missing address or body; the sender was not called.
	ErrorCodeInvalidArgument ErrorCode = "invalid_argument"
	// ErrorCodeSendFailed indicates the sender raised a fault.
	ErrorCodeSendFailed ErrorCode = "send_failed"
)

// Error is a typed transport error carrying the sender's diagnostic verbatim.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e == nil {
		return "transport: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("transport: %s", e.Code)
	}
	return fmt.Sprintf("transport: %s: %s", e.Code, e.Message)
}

// Adapter sends messages through a Sender.
type Adapter struct {
	sender Sender
	logger zerolog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter returns an Adapter over sender.
func NewAdapter(sender Sender, opts ...Option) *Adapter {
	a := &Adapter{sender: sender, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send hands body to the sender for address. An empty address or body is
// rejected before the sender is called.
func (a *Adapter) Send(ctx context.Context, address string, body string) (bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return false, &Error{Code: ErrorCodeInvalidArgument, Message: "address is required"}
	}
	if strings.TrimSpace(body) == "" {
		return false, &Error{Code: ErrorCodeInvalidArgument, Message: "body is required"}
	}

	if err := a.sender.Send(ctx, address, body); err != nil {
		a.logger.Warn().Err(err).Str("address", address).Msg("send failed")
		var transportErr *Error
		if errors.As(err, &transportErr) {
			return false, &Error{Code: ErrorCodeSendFailed, Message: transportErr.Message}
		}
		return false, &Error{Code: ErrorCodeSendFailed, Message: err.Error()}
	}

	a.logger.Debug().Str("address", address).Int("length", len(body)).Msg("message accepted by transport")
	return true, nil
}
