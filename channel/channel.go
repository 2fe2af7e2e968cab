// Package channel carries router commands over a JSON-lines stream.
//
// Each input line is one request; each request produces exactly one response
// line with the same id. Permission decisions arrive asynchronously and are
// written as separate event lines, interleaved with responses.
//
//	-> {"id":"1","method":"requestPermissions","arguments":{"capabilities":["read_messages"]}}
//	<- {"id":"1","method":"requestPermissions","ok":true,"result":true}
//	<- {"event":"permissionDecision","command_id":"1","request_id":"...","states":{"read_messages":"GRANTED"}}
package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spachava753/smsbridge/permission"
	"github.com/spachava753/smsbridge/router"
)

const (
	maxLineBytes = 1 << 20

	// EventPermissionDecision is the event name for permission decisions.
	EventPermissionDecision = "permissionDecision"
)

// Request is one inbound command line.
type Request struct {
	ID        string         `json:"id"`
	Method    string         `json:"method"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Event is an asynchronous outbound line not tied to a response.
type Event struct {
	Event     string                                     `json:"event"`
	CommandID string                                     `json:"command_id,omitempty"`
	RequestID string                                     `json:"request_id,omitempty"`
	States    map[permission.Capability]permission.State `json:"states,omitempty"`
}

// Handler is the router surface the channel drives.
type Handler interface {
	Handle(ctx context.Context, cmd router.Command) router.Response
	OnPermissionDecision(handler router.DecisionHandler)
}

// Serve reads requests from in until EOF or ctx is done and writes responses
// and events to out. The decision hook is registered for the duration of the
// call.
func Serve(ctx context.Context, in io.Reader, out io.Writer, h Handler, logger zerolog.Logger) error {
	w := &lineWriter{out: out}

	h.OnPermissionDecision(func(d router.PermissionDecision) {
		if err := w.write(Event{
			Event:     EventPermissionDecision,
			CommandID: d.CommandID,
			RequestID: d.RequestID,
			States:    d.States,
		}); err != nil {
			logger.Error().Err(err).Str("request_id", d.RequestID).Msg("writing permission decision failed")
		}
	})
	defer h.OnPermissionDecision(nil)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := dispatch(ctx, h, line)
		if err := w.write(resp); err != nil {
			return fmt.Errorf("channel: writing response failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("channel: reading requests failed: %w", err)
	}
	return nil
}

func dispatch(ctx context.Context, h Handler, line []byte) router.Response {
	req, err := decodeRequest(line)
	if err != nil {
		// Malformed lines get a fresh id like any other command without one.
		id := req.ID
		if id == "" {
			id = uuid.NewString()
		}
		return router.Response{
			ID:      id,
			Command: req.Method,
			Error:   &router.Error{Kind: router.KindInvalidArgument, Message: err.Error()},
		}
	}
	return h.Handle(ctx, router.Command{ID: req.ID, Name: req.Method, Args: router.Args(req.Arguments)})
}

func decodeRequest(line []byte) (Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("malformed request: %v", err)
	}
	if req.Method == "" {
		return req, errors.New("malformed request: method is required")
	}
	return req, nil
}

type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) write(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.out.Write(raw)
	return err
}
