package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Gate checks and requests capabilities against a Platform and tracks the
// decision handlers of in-flight requests.
type Gate struct {
	platform Platform
	logger   zerolog.Logger
	newID    func() string

	mu      sync.Mutex
	pending map[string]pendingRequest
}

type pendingRequest struct {
	handler Handler
	// cancel ends the context handed to Platform.Prompt.
	cancel  context.CancelFunc
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithIDGenerator overrides request id generation.
func WithIDGenerator(fn func() string) Option {
	return func(g *Gate) {
		if fn != nil {
			g.newID = fn
		}
	}
}

// NewGate returns a Gate backed by platform.
func NewGate(platform Platform, opts ...Option) *Gate {
	g := &Gate{
		platform: platform,
		logger:   zerolog.Nop(),
		newID:    uuid.NewString,
		pending:  map[string]pendingRequest{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check returns the current platform state for capability.
func (g *Gate) Check(ctx context.Context, capability Capability) (State, error) {
	if !capability.Valid() {
		return "", fmt.Errorf("permission: unknown capability %q", capability)
	}
	state, err := g.platform.Status(ctx, capability)
	if err != nil {
		return "", fmt.Errorf("permission: checking %s failed: %w", capability, err)
	}
	g.logger.Debug().Str("capability", string(capability)).Str("state", string(state)).Msg("permission checked")
	return state, nil
}

// Request fires a platform prompt for capabilities and returns the request id
// without waiting for the answer. handler runs exactly once when the platform
// delivers a decision, and never if the request is abandoned first.
func (g *Gate) Request(ctx context.Context, capabilities []Capability, handler Handler) (string, error) {
	if len(capabilities) == 0 {
		return "", errors.New("permission: at least one capability is required")
	}
	requested := make([]Capability, 0, len(capabilities))
	seen := map[Capability]struct{}{}
	for _, capability := range capabilities {
		if !capability.Valid() {
			return "", fmt.Errorf("permission: unknown capability %q", capability)
		}
		if _, ok := seen[capability]; ok {
			continue
		}
		seen[capability] = struct{}{}
		requested = append(requested, capability)
	}
	if handler == nil {
		handler = func(Decision) {}
	}

	// The prompt outlives the caller's ctx and ends when the request is
	// answered or abandoned.
	promptCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	id := g.newID()
	g.mu.Lock()
	g.pending[id] = pendingRequest{handler: handler, cancel: cancel}
	g.mu.Unlock()

	err := g.platform.Prompt(promptCtx, requested, func(states map[Capability]State) {
		g.deliver(id, states)
	})
	if err != nil {
		g.Abandon(id)
		return "", fmt.Errorf("permission: prompting failed: %w", err)
	}

	g.logger.Debug().Str("request_id", id).Int("capabilities", len(requested)).Msg("permission request dispatched")
	return id, nil
}

// Abandon deregisters the handler for id and cancels its prompt context. It
// reports whether a pending request was removed.
func (g *Gate) Abandon(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pending[id]
	if !ok {
		return false
	}
	delete(g.pending, id)
	req.cancel()
	g.logger.Debug().Str("request_id", id).Msg("permission request abandoned")
	return true
}

// AbandonAll deregisters every pending handler and returns how many were removed.
func (g *Gate) AbandonAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.pending)
	for _, req := range g.pending {
		req.cancel()
	}
	g.pending = map[string]pendingRequest{}
	return n
}

// Pending returns the number of requests still waiting for a decision.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *Gate) deliver(id string, states map[Capability]State) {
	g.mu.Lock()
	req, ok := g.pending[id]
	delete(g.pending, id)
	g.mu.Unlock()

	if !ok {
		g.logger.Debug().Str("request_id", id).Msg("dropping decision for unknown request")
		return
	}
	req.cancel()

	copied := make(map[Capability]State, len(states))
	for capability, state := range states {
		copied[capability] = state
	}
	g.logger.Debug().Str("request_id", id).Msg("permission decision delivered")
	req.handler(Decision{RequestID: id, States: copied})
}
