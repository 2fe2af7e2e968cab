// Package store adapts a platform message content provider into a typed
// message store.
//
// Reads are lazy and restartable: every iteration of [Adapter.ListInbound]
// re-queries the provider and no cursor survives between calls. Writes insert
// a new read+seen record into the inbox or sent collection and never touch
// existing records.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/rs/zerolog"

	"github.com/spachava753/smsbridge/sms"
)

// Collection names a provider collection.
type Collection string

const (
	// CollectionInbox holds received messages.
	CollectionInbox Collection = "inbox"
	// CollectionSent holds sent messages.
	CollectionSent Collection = "sent"
)

// CollectionFor returns the collection a message with direction d belongs to.
func CollectionFor(d sms.Direction) (Collection, error) {
	switch d {
	case sms.DirectionInbound:
		return CollectionInbox, nil
	case sms.DirectionOutbound:
		return CollectionSent, nil
	default:
		return "", fmt.Errorf("store: invalid direction %q", d)
	}
}

// Record is one raw provider row.
type Record struct {
	ID      string
	Address string
	Body    string
	Date    int64
	Type    int
	Read    bool
	Seen    bool
}

// Provider is the platform content-provider interface.
//
// Query yields rows of a collection in the provider's native order. Insert
// returns the new row's reference, or "" when the provider accepted the call
// but produced no row.
type Provider interface {
	Query(ctx context.Context, collection Collection) iter.Seq2[Record, error]
	Insert(ctx context.Context, collection Collection, record Record) (string, error)
}

// ErrorCode classifies store failures.
type ErrorCode string

const (
	// ErrorCodeInvalidArgument indicates a malformed message; the provider was not called.
	ErrorCodeInvalidArgument ErrorCode = "invalid_argument"
	// ErrorCodeWriteFailed indicates the provider rejected or failed an insert.
	ErrorCodeWriteFailed ErrorCode = "write_failed"
	// ErrorCodeReadFailed indicates the provider failed a query.
	ErrorCodeReadFailed ErrorCode = "read_failed"
)

// Error is a typed store error. Message carries the provider's diagnostic
// text verbatim when one exists.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e == nil {
		return "store: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("store: %s", e.Code)
	}
	return fmt.Sprintf("store: %s: %s", e.Code, e.Message)
}

// Adapter reads and writes messages through a Provider.
type Adapter struct {
	provider Provider
	logger   zerolog.Logger
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter returns an Adapter over provider.
func NewAdapter(provider Provider, opts ...Option) *Adapter {
	a := &Adapter{provider: provider, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ListInbound returns the inbox as a lazy sequence. Each range over the
// result issues a fresh provider query. Direction is taken from each row's
// type column.
func (a *Adapter) ListInbound(ctx context.Context) iter.Seq2[sms.Message, error] {
	return a.List(ctx, CollectionInbox)
}

// List returns collection as a lazy sequence in provider order.
func (a *Adapter) List(ctx context.Context, collection Collection) iter.Seq2[sms.Message, error] {
	return func(yield func(sms.Message, error) bool) {
		for record, err := range a.provider.Query(ctx, collection) {
			if err != nil {
				yield(sms.Message{}, &Error{Code: ErrorCodeReadFailed, Message: diagnostic(err)})
				return
			}
			if !yield(messageFromRecord(record), nil) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[sms.Message, error]) ([]sms.Message, error) {
	out := make([]sms.Message, 0, 32)
	for msg, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Write inserts msg as a new read+seen record in the collection matching its
// direction. It reports true only when the provider returned a reference.
func (a *Adapter) Write(ctx context.Context, msg sms.Message) (bool, error) {
	if strings.TrimSpace(msg.Address) == "" {
		return false, &Error{Code: ErrorCodeInvalidArgument, Message: "address is required"}
	}
	collection, err := CollectionFor(msg.Direction)
	if err != nil {
		return false, &Error{Code: ErrorCodeInvalidArgument, Message: fmt.Sprintf("invalid direction %q", msg.Direction)}
	}

	ref, err := a.provider.Insert(ctx, collection, Record{
		Address: msg.Address,
		Body:    msg.Body,
		Date:    msg.Timestamp,
		Type:    msg.Direction.TypeCode(),
		Read:    true,
		Seen:    true,
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("collection", string(collection)).Msg("insert failed")
		return false, &Error{Code: ErrorCodeWriteFailed, Message: diagnostic(err)}
	}
	if ref == "" {
		return false, &Error{Code: ErrorCodeWriteFailed, Message: fmt.Sprintf("insert into %s returned no reference", collection)}
	}

	a.logger.Debug().Str("collection", string(collection)).Str("ref", ref).Msg("message inserted")
	return true, nil
}

func messageFromRecord(record Record) sms.Message {
	return sms.Message{
		ID:        record.ID,
		Address:   record.Address,
		Body:      record.Body,
		Timestamp: record.Date,
		Direction: sms.DirectionFromType(record.Type),
	}
}

// diagnostic returns the innermost provider message without package prefixes
// added by this module.
func diagnostic(err error) string {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Message
	}
	return err.Error()
}
