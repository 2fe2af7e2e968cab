package permission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

type failingPlatform struct{}

func (failingPlatform) Status(context.Context, Capability) (State, error) {
	return "", errors.New("service unavailable")
}

func (failingPlatform) Prompt(context.Context, []Capability, func(map[Capability]State)) error {
	return errors.New("no activity attached")
}

func TestCheckObservesPlatformState(t *testing.T) {
	platform := NewStatic(CapabilityReadMessages)
	gate := NewGate(platform)
	ctx := context.Background()

	state, err := gate.Check(ctx, CapabilityReadMessages)
	be.Err(t, err, nil)
	be.Equal(t, state, StateGranted)

	state, err = gate.Check(ctx, CapabilitySendMessages)
	be.Err(t, err, nil)
	be.Equal(t, state, StateNotRequested)

	platform.Set(CapabilityReadMessages, StateDenied)
	state, err = gate.Check(ctx, CapabilityReadMessages)
	be.Err(t, err, nil)
	be.Equal(t, state, StateDenied)

	_, err = gate.Check(ctx, Capability("camera"))
	be.True(t, err != nil)
}

func TestCheckWrapsPlatformError(t *testing.T) {
	gate := NewGate(failingPlatform{})
	_, err := gate.Check(context.Background(), CapabilityReadMessages)
	be.True(t, err != nil)
	be.True(t, errors.Unwrap(err) != nil)
}

func TestRequestReturnsBeforeDecision(t *testing.T) {
	platform := NewStatic()
	gate := NewGate(platform)

	var calls atomic.Int32
	start := time.Now()
	id, err := gate.Request(context.Background(), []Capability{CapabilityReadMessages, CapabilitySendMessages}, func(Decision) {
		calls.Add(1)
	})
	be.Err(t, err, nil)
	be.True(t, id != "")
	be.True(t, time.Since(start) < time.Second)
	be.Equal(t, calls.Load(), int32(0))
	be.Equal(t, gate.Pending(), 1)
	be.Equal(t, platform.Outstanding(), 1)
}

func TestDecisionFiresExactlyOnce(t *testing.T) {
	platform := NewStatic()
	gate := NewGate(platform, WithIDGenerator(func() string { return "req-1" }))

	var got []Decision
	id, err := gate.Request(context.Background(), []Capability{CapabilityReadMessages, CapabilityReadMessages}, func(d Decision) {
		got = append(got, d)
	})
	be.Err(t, err, nil)
	be.Equal(t, id, "req-1")

	be.Equal(t, platform.Resolve(StateGranted), 1)
	be.Equal(t, len(got), 1)
	be.Equal(t, got[0].RequestID, "req-1")
	be.Equal(t, len(got[0].States), 1)
	be.Equal(t, got[0].States[CapabilityReadMessages], StateGranted)
	be.True(t, got[0].Granted())
	be.Equal(t, gate.Pending(), 0)

	gate.deliver("req-1", map[Capability]State{CapabilityReadMessages: StateDenied})
	be.Equal(t, len(got), 1)

	state, err := gate.Check(context.Background(), CapabilityReadMessages)
	be.Err(t, err, nil)
	be.Equal(t, state, StateGranted)
}

func TestAbandonedRequestNeverFires(t *testing.T) {
	platform := NewStatic()
	gate := NewGate(platform)

	fired := false
	id, err := gate.Request(context.Background(), []Capability{CapabilitySendMessages}, func(Decision) {
		fired = true
	})
	be.Err(t, err, nil)

	be.True(t, gate.Abandon(id))
	be.True(t, !gate.Abandon(id))
	be.Equal(t, gate.Pending(), 0)

	platform.Resolve(StateDenied)
	be.True(t, !fired)
}

func TestAbandonAll(t *testing.T) {
	gate := NewGate(NewStatic())
	for i := 0; i < 3; i++ {
		_, err := gate.Request(context.Background(), []Capability{CapabilityReadMessages}, nil)
		be.Err(t, err, nil)
	}
	be.Equal(t, gate.AbandonAll(), 3)
	be.Equal(t, gate.Pending(), 0)
}

func TestAutoAnswerDeliversAsynchronously(t *testing.T) {
	platform := NewStatic()
	platform.AutoAnswer = StateDenied
	gate := NewGate(platform)

	decisions := make(chan Decision, 1)
	_, err := gate.Request(context.Background(), []Capability{CapabilitySendMessages}, func(d Decision) {
		decisions <- d
	})
	be.Err(t, err, nil)

	select {
	case d := <-decisions:
		be.Equal(t, d.States[CapabilitySendMessages], StateDenied)
		be.True(t, !d.Granted())
	case <-time.After(5 * time.Second):
		t.Fatal("decision was not delivered")
	}
	be.Equal(t, gate.Pending(), 0)
}

func TestRequestValidation(t *testing.T) {
	gate := NewGate(NewStatic())

	_, err := gate.Request(context.Background(), nil, nil)
	be.True(t, err != nil)

	_, err = gate.Request(context.Background(), []Capability{"camera"}, nil)
	be.True(t, err != nil)
	be.Equal(t, gate.Pending(), 0)
}

func TestRequestPromptFailureDeregisters(t *testing.T) {
	gate := NewGate(failingPlatform{})
	_, err := gate.Request(context.Background(), []Capability{CapabilityReadMessages}, nil)
	be.True(t, err != nil)
	be.Equal(t, gate.Pending(), 0)
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability(" READ_MESSAGES ")
	be.Err(t, err, nil)
	be.Equal(t, c, CapabilityReadMessages)

	_, err = ParseCapability("contacts")
	be.True(t, err != nil)
	be.Equal(t, len(Capabilities()), 3)
}

// recordingPlatform keeps the context and deliver func of every prompt.
type recordingPlatform struct {
	ctxs     []context.Context
	delivers []func(map[Capability]State)
}

func (p *recordingPlatform) Status(context.Context, Capability) (State, error) {
	return StateNotRequested, nil
}

func (p *recordingPlatform) Prompt(ctx context.Context, _ []Capability, deliver func(map[Capability]State)) error {
	p.ctxs = append(p.ctxs, ctx)
	p.delivers = append(p.delivers, deliver)
	return nil
}

func TestPromptContextEndsWithRequest(t *testing.T) {
	platform := &recordingPlatform{}
	gate := NewGate(platform)

	callerCtx, cancelCaller := context.WithCancel(context.Background())
	abandoned, err := gate.Request(callerCtx, []Capability{CapabilityReadMessages}, nil)
	be.Err(t, err, nil)
	_, err = gate.Request(context.Background(), []Capability{CapabilityReadMessages}, nil)
	be.Err(t, err, nil)
	_, err = gate.Request(context.Background(), []Capability{CapabilityReadMessages}, nil)
	be.Err(t, err, nil)
	be.Equal(t, len(platform.ctxs), 3)

	cancelCaller()
	be.Err(t, platform.ctxs[0].Err(), nil)

	be.True(t, gate.Abandon(abandoned))
	be.Err(t, platform.ctxs[0].Err(), context.Canceled)
	be.Err(t, platform.ctxs[1].Err(), nil)

	platform.delivers[1](map[Capability]State{CapabilityReadMessages: StateGranted})
	be.Err(t, platform.ctxs[1].Err(), context.Canceled)
	be.Err(t, platform.ctxs[2].Err(), nil)

	be.Equal(t, gate.AbandonAll(), 1)
	be.Err(t, platform.ctxs[2].Err(), context.Canceled)
}
