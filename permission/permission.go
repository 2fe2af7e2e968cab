package permission

import (
	"context"
	"fmt"
	"strings"
)

// Capability is a platform-gated permission category.
type Capability string

const (
	// CapabilityReadMessages allows reading the message store.
	CapabilityReadMessages Capability = "read_messages"
	// CapabilitySendMessages allows handing messages to the transport.
	CapabilitySendMessages Capability = "send_messages"
	// CapabilityWriteMessages allows inserting records into the message store.
	CapabilityWriteMessages Capability = "write_messages"
)

// Capabilities returns every known capability in a stable order.
func Capabilities() []Capability {
	return []Capability{CapabilityReadMessages, CapabilitySendMessages, CapabilityWriteMessages}
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityReadMessages, CapabilitySendMessages, CapabilityWriteMessages:
		return true
	default:
		return false
	}
}

// ParseCapability normalizes raw into a known capability.
func ParseCapability(raw string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("permission: unknown capability %q", raw)
	}
	return c, nil
}

// State is the platform's grant state for one capability.
type State string

const (
	// StateGranted indicates the capability is available.
	StateGranted State = "GRANTED"
	// StateDenied indicates the user or policy refused the capability.
	StateDenied State = "DENIED"
	// StateNotRequested indicates the user has not been asked yet.
	StateNotRequested State = "NOT_REQUESTED"
)

// ParseState normalizes raw into a known state.
func ParseState(raw string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StateGranted, StateDenied, StateNotRequested:
		return s, nil
	default:
		return "", fmt.Errorf("permission: unknown state %q", raw)
	}
}

// Decision is the eventual outcome of one permission request.
type Decision struct {
	RequestID string               `json:"request_id"`
	States    map[Capability]State `json:"states"`
}

// Granted reports whether every capability in the decision was granted.
func (d Decision) Granted() bool {
	if len(d.States) == 0 {
		return false
	}
	for _, state := range d.States {
		if state != StateGranted {
			return false
		}
	}
	return true
}

// Handler receives a permission decision.
type Handler func(Decision)

// Platform is the operating system's permission-grant interface.
//
// Prompt must not block on the user's answer. It reports the answer, at most
// once, by calling deliver from any goroutine. A platform that never learns the
// answer never calls deliver. The ctx passed to Prompt is canceled once the
// request is answered or abandoned; background work started by Prompt should
// stop then.
type Platform interface {
	Status(ctx context.Context, capability Capability) (State, error)
	Prompt(ctx context.Context, capabilities []Capability, deliver func(map[Capability]State)) error
}
