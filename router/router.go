package router

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spachava753/smsbridge/permission"
	"github.com/spachava753/smsbridge/sms"
	"github.com/spachava753/smsbridge/store"
)

// Command names.
const (
	CommandWriteMessage        = "writeMessage"
	CommandListInboundMessages = "listInboundMessages"
	CommandSendMessage         = "sendMessage"
	CommandRequestPermissions  = "requestPermissions"
)

// Command is one request crossing the caller boundary. ID correlates the
// command with its single Response; the router assigns one when empty.
type Command struct {
	ID   string
	Name string
	Args Args
}

// Response is the outcome of one Command. Exactly one of Payload (when OK)
// or Error is meaningful.
type Response struct {
	ID      string `json:"id" yaml:"id"`
	Command string `json:"method" yaml:"method"`
	OK      bool   `json:"ok" yaml:"ok"`
	Payload any    `json:"result,omitempty" yaml:"result,omitempty"`
	Error   *Error `json:"error,omitempty" yaml:"error,omitempty"`
}

// PermissionDecision is delivered to the hook registered with
// OnPermissionDecision when the platform answers a requestPermissions command.
type PermissionDecision struct {
	CommandID string                                     `json:"command_id" yaml:"command_id"`
	RequestID string                                     `json:"request_id" yaml:"request_id"`
	States    map[permission.Capability]permission.State `json:"states" yaml:"states"`
}

// DecisionHandler receives permission decisions.
type DecisionHandler func(PermissionDecision)

// Gate is the permission gate used by the router.
type Gate interface {
	Check(ctx context.Context, capability permission.Capability) (permission.State, error)
	Request(ctx context.Context, capabilities []permission.Capability, handler permission.Handler) (string, error)
	AbandonAll() int
}

// Store is the message store used by the router.
type Store interface {
	ListInbound(ctx context.Context) iter.Seq2[sms.Message, error]
	Write(ctx context.Context, msg sms.Message) (bool, error)
}

// Transport is the send primitive used by the router.
type Transport interface {
	Send(ctx context.Context, address string, body string) (bool, error)
}

type call func(ctx context.Context) (any, error)

type route struct {
	// capability is checked before the adapter runs; empty means no check.
	capability permission.Capability
	// failure is the kind reported for denials and unclassified faults.
	failure Kind
	prepare func(r *Router, cmd Command) (call, *Error)
}

// Router dispatches Commands. Dispatch is serialized: one command is fully
// resolved before the next starts.
type Router struct {
	gate      Gate
	store     Store
	transport Transport
	logger    zerolog.Logger
	metrics   *Metrics
	newID     func() string
	routes    map[string]route

	mu sync.Mutex

	hookMu sync.RWMutex
	hook   DecisionHandler
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMetrics records dispatch metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// New returns a Router over the given collaborators. Call Close on teardown
// to abandon pending permission requests.
func New(gate Gate, messages Store, sender Transport, opts ...Option) *Router {
	r := &Router{
		gate:      gate,
		store:     messages,
		transport: sender,
		logger:    zerolog.Nop(),
		newID:     uuid.NewString,
		routes: map[string]route{
			CommandWriteMessage: {
				capability: permission.CapabilityWriteMessages,
				failure:    KindWriteFailed,
				prepare:    prepareWriteMessage,
			},
			CommandListInboundMessages: {
				capability: permission.CapabilityReadMessages,
				failure:    KindPermissionDenied,
				prepare:    prepareListInbound,
			},
			CommandSendMessage: {
				capability: permission.CapabilitySendMessages,
				failure:    KindSendFailed,
				prepare:    prepareSendMessage,
			},
			CommandRequestPermissions: {
				failure: KindPermissionDenied,
				prepare: prepareRequestPermissions,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnPermissionDecision registers the hook that receives permission decisions.
// A nil handler clears it; decisions arriving without a hook are dropped.
func (r *Router) OnPermissionDecision(handler DecisionHandler) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hook = handler
}

// Close abandons every pending permission request. Handlers of abandoned
// requests never fire.
func (r *Router) Close() {
	if n := r.gate.AbandonAll(); n > 0 {
		r.logger.Debug().Int("abandoned", n).Msg("abandoned pending permission requests")
	}
}

// Handle dispatches cmd to exactly one handler and returns its single Response.
func (r *Router) Handle(ctx context.Context, cmd Command) (resp Response) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cmd.ID == "" {
		cmd.ID = r.newID()
	}
	start := time.Now()
	metricName := cmd.Name

	defer func() {
		outcome := "ok"
		level := zerolog.InfoLevel
		message := ""
		if resp.Error != nil {
			outcome = string(resp.Error.Kind)
			level = zerolog.WarnLevel
			message = resp.Error.Message
		}
		event := r.logger.WithLevel(level)
		if message != "" {
			event = event.Str("error", message)
		}
		event.
			Str("id", cmd.ID).
			Str("command", cmd.Name).
			Str("outcome", outcome).
			Dur("latency", time.Since(start)).
			Msg("command handled")
		r.metrics.observe(metricName, outcome, time.Since(start))
	}()

	rt, ok := r.routes[cmd.Name]
	if !ok {
		metricName = "unknown"
		return failure(cmd, errorf(KindNotImplemented, "command %q is not implemented", cmd.Name))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("id", cmd.ID).Interface("panic", rec).Msg("command handler panicked")
			resp = failure(cmd, errorf(rt.failure, "%v", rec))
		}
	}()

	fn, argErr := rt.prepare(r, cmd)
	if argErr != nil {
		return failure(cmd, argErr)
	}

	if rt.capability != "" {
		if denied := r.authorize(ctx, rt); denied != nil {
			return failure(cmd, denied)
		}
	}

	payload, err := fn(ctx)
	if err != nil {
		return failure(cmd, classify(err, rt.failure))
	}
	return Response{ID: cmd.ID, Command: cmd.Name, OK: true, Payload: payload}
}

func (r *Router) authorize(ctx context.Context, rt route) *Error {
	state, err := r.gate.Check(ctx, rt.capability)
	if err != nil {
		return &Error{Kind: rt.failure, Message: err.Error()}
	}
	if state != permission.StateGranted {
		return errorf(rt.failure, "%s permission is %s", rt.capability, state)
	}
	return nil
}

func (r *Router) forwardDecision(commandID string) permission.Handler {
	return func(d permission.Decision) {
		r.hookMu.RLock()
		hook := r.hook
		r.hookMu.RUnlock()

		if hook == nil {
			r.logger.Warn().Str("id", commandID).Str("request_id", d.RequestID).Msg("permission decision dropped: no hook registered")
			return
		}
		hook(PermissionDecision{CommandID: commandID, RequestID: d.RequestID, States: d.States})
	}
}

func failure(cmd Command, err *Error) Response {
	return Response{ID: cmd.ID, Command: cmd.Name, Error: err}
}

func prepareWriteMessage(r *Router, cmd Command) (call, *Error) {
	address, argErr := cmd.Args.requiredString("address", true)
	if argErr != nil {
		return nil, argErr
	}
	body, argErr := cmd.Args.requiredString("body", false)
	if argErr != nil {
		return nil, argErr
	}
	timestamp, argErr := cmd.Args.requiredInt64("timestamp")
	if argErr != nil {
		return nil, argErr
	}
	direction, argErr := cmd.Args.direction("direction")
	if argErr != nil {
		return nil, argErr
	}

	msg := sms.Message{Address: address, Body: body, Timestamp: timestamp, Direction: direction}
	return func(ctx context.Context) (any, error) {
		return r.store.Write(ctx, msg)
	}, nil
}

func prepareListInbound(r *Router, _ Command) (call, *Error) {
	return func(ctx context.Context) (any, error) {
		messages, err := store.Collect(r.store.ListInbound(ctx))
		if err != nil {
			return nil, err
		}
		return messages, nil
	}, nil
}

func prepareSendMessage(r *Router, cmd Command) (call, *Error) {
	address, argErr := cmd.Args.requiredString("address", true)
	if argErr != nil {
		return nil, argErr
	}
	body, argErr := cmd.Args.requiredString("body", true)
	if argErr != nil {
		return nil, argErr
	}
	return func(ctx context.Context) (any, error) {
		return r.transport.Send(ctx, address, body)
	}, nil
}

func prepareRequestPermissions(r *Router, cmd Command) (call, *Error) {
	capabilities, argErr := cmd.Args.capabilities("capabilities")
	if argErr != nil {
		return nil, argErr
	}
	return func(ctx context.Context) (any, error) {
		id, err := r.gate.Request(ctx, capabilities, r.forwardDecision(cmd.ID))
		if err != nil {
			return nil, fmt.Errorf("requesting permissions failed: %w", err)
		}
		r.logger.Debug().Str("id", cmd.ID).Str("request_id", id).Msg("permission request dispatched")
		return true, nil
	}, nil
}
