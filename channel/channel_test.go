package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"github.com/rs/zerolog"

	"github.com/spachava753/smsbridge/permission"
	"github.com/spachava753/smsbridge/router"
	"github.com/spachava753/smsbridge/store"
	"github.com/spachava753/smsbridge/transport"
)

type line struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	OK      bool              `json:"ok"`
	Result  json.RawMessage   `json:"result"`
	Error   *router.Error     `json:"error"`
	Event   string            `json:"event"`
	Command string            `json:"command_id"`
	States  map[string]string `json:"states"`
}

func newRouter(t *testing.T, platform *permission.Static) *router.Router {
	t.Helper()
	db, err := store.OpenSQLite(store.DriverPure, filepath.Join(t.TempDir(), "sms.db"))
	be.Err(t, err, nil)
	t.Cleanup(func() { db.Close() })

	sender := transport.SenderFunc(func(context.Context, string, string) error { return nil })
	r := router.New(permission.NewGate(platform), store.NewAdapter(db), transport.NewAdapter(sender))
	t.Cleanup(r.Close)
	return r
}

func decodeLines(t *testing.T, raw string) []line {
	t.Helper()
	var out []line
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		var l line
		be.Err(t, json.Unmarshal(scanner.Bytes(), &l), nil)
		out = append(out, l)
	}
	return out
}

func TestServeRoundTrip(t *testing.T) {
	r := newRouter(t, permission.NewStatic(permission.Capabilities()...))

	input := strings.Join([]string{
		`{"id":"1","method":"writeMessage","arguments":{"address":"+15551234567","body":"hi","timestamp":1700000000000,"direction":"INBOUND"}}`,
		``,
		`{"id":"2","method":"listInboundMessages"}`,
		`{"id":"3","method":"doSomethingUnsupported"}`,
		`not json`,
		`{"id":"5","method":"sendMessage","arguments":{"address":"+15551234567","body":""}}`,
	}, "\n")

	var out strings.Builder
	err := Serve(context.Background(), strings.NewReader(input), &out, r, zerolog.Nop())
	be.Err(t, err, nil)

	lines := decodeLines(t, out.String())
	be.Equal(t, len(lines), 5)

	be.Equal(t, lines[0].ID, "1")
	be.True(t, lines[0].OK)
	be.Equal(t, string(lines[0].Result), "true")

	be.Equal(t, lines[1].ID, "2")
	be.True(t, lines[1].OK)
	var messages []map[string]any
	be.Err(t, json.Unmarshal(lines[1].Result, &messages), nil)
	be.Equal(t, len(messages), 1)
	be.Equal(t, messages[0]["address"], any("+15551234567"))
	be.Equal(t, messages[0]["timestamp"], any(float64(1700000000000)))
	be.Equal(t, messages[0]["direction"], any("INBOUND"))

	be.Equal(t, lines[2].Error.Kind, router.KindNotImplemented)
	be.Equal(t, lines[3].Error.Kind, router.KindInvalidArgument)
	be.True(t, lines[3].ID != "")
	be.Equal(t, lines[4].ID, "5")
	be.Equal(t, lines[4].Error.Kind, router.KindInvalidArgument)
}

func TestServeEmitsPermissionDecisionEvent(t *testing.T) {
	platform := permission.NewStatic()
	r := newRouter(t, platform)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), inR, outW, r, zerolog.Nop())
		outW.Close()
	}()

	reader := bufio.NewReader(outR)
	readLine := func() line {
		raw, err := reader.ReadBytes('\n')
		be.Err(t, err, nil)
		var l line
		be.Err(t, json.Unmarshal(raw, &l), nil)
		return l
	}

	_, err := io.WriteString(inW, `{"id":"p1","method":"requestPermissions","arguments":{"capabilities":["read_messages"]}}`+"\n")
	be.Err(t, err, nil)

	resp := readLine()
	be.Equal(t, resp.ID, "p1")
	be.True(t, resp.OK)

	resolved := make(chan int, 1)
	go func() { resolved <- platform.Resolve(permission.StateGranted) }()

	event := readLine()
	be.Equal(t, event.Event, EventPermissionDecision)
	be.Equal(t, event.Command, "p1")
	be.Equal(t, event.States["read_messages"], "GRANTED")

	select {
	case n := <-resolved:
		be.Equal(t, n, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("resolve did not return")
	}

	inW.Close()
	be.Err(t, <-done, nil)
}

func TestDecodeRequestRequiresMethod(t *testing.T) {
	_, err := decodeRequest([]byte(`{"id":"1"}`))
	be.True(t, err != nil)

	req, err := decodeRequest([]byte(`{"id":"1","method":"sendMessage","arguments":{"timestamp":12}}`))
	be.Err(t, err, nil)
	be.Equal(t, req.Method, "sendMessage")
	_, isNumber := req.Arguments["timestamp"].(json.Number)
	be.True(t, isNumber)
}

func TestServeAcceptsIntegralNumbersInAnyForm(t *testing.T) {
	r := newRouter(t, permission.NewStatic(permission.Capabilities()...))

	input := strings.Join([]string{
		`{"id":"1","method":"writeMessage","arguments":{"address":"+15551234567","body":"a","timestamp":1700000000000.0,"direction":"INBOUND"}}`,
		`{"id":"2","method":"writeMessage","arguments":{"address":"+15551234567","body":"b","timestamp":1.7e12,"direction":1.0}}`,
		`{"id":"3","method":"writeMessage","arguments":{"address":"+15551234567","body":"c","timestamp":1700000000000.5,"direction":"INBOUND"}}`,
		`{"id":"4","method":"listInboundMessages"}`,
	}, "\n")

	var out strings.Builder
	be.Err(t, Serve(context.Background(), strings.NewReader(input), &out, r, zerolog.Nop()), nil)

	lines := decodeLines(t, out.String())
	be.Equal(t, len(lines), 4)
	be.True(t, lines[0].OK)
	be.True(t, lines[1].OK)
	be.Equal(t, lines[2].Error.Kind, router.KindInvalidArgument)

	var messages []map[string]any
	be.Err(t, json.Unmarshal(lines[3].Result, &messages), nil)
	be.Equal(t, len(messages), 2)
	for _, msg := range messages {
		be.Equal(t, msg["timestamp"], any(float64(1700000000000)))
		be.Equal(t, msg["direction"], any("INBOUND"))
	}
}

func TestServeAssignsIDToMalformedLines(t *testing.T) {
	r := newRouter(t, permission.NewStatic())

	input := "{\"method\": 5}\n{\"id\":\"keep\"}\n"
	var out strings.Builder
	be.Err(t, Serve(context.Background(), strings.NewReader(input), &out, r, zerolog.Nop()), nil)

	lines := decodeLines(t, out.String())
	be.Equal(t, len(lines), 2)
	be.True(t, lines[0].ID != "")
	be.Equal(t, lines[0].Error.Kind, router.KindInvalidArgument)
	be.Equal(t, lines[1].ID, "keep")
	be.Equal(t, lines[1].Error.Kind, router.KindInvalidArgument)
}
