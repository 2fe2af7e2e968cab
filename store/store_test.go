package store

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"

	"github.com/spachava753/smsbridge/sms"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(DriverPure, filepath.Join(t.TempDir(), "sms.db"))
	be.Err(t, err, nil)
	t.Cleanup(func() { db.Close() })
	return db
}

type countingProvider struct {
	Provider
	queries int
	inserts int
	ref     string
	err     error
}

func (p *countingProvider) Query(ctx context.Context, collection Collection) iter.Seq2[Record, error] {
	p.queries++
	return p.Provider.Query(ctx, collection)
}

func (p *countingProvider) Insert(ctx context.Context, collection Collection, record Record) (string, error) {
	p.inserts++
	if p.err != nil {
		return "", p.err
	}
	if p.Provider == nil {
		return p.ref, nil
	}
	return p.Provider.Insert(ctx, collection, record)
}

func TestWriteInboundRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(openTestDB(t))

	ok, err := adapter.Write(ctx, sms.Message{
		Address:   "+15551234567",
		Body:      "hello there",
		Timestamp: 1700000000000,
		Direction: sms.DirectionInbound,
	})
	be.Err(t, err, nil)
	be.True(t, ok)

	messages, err := Collect(adapter.ListInbound(ctx))
	be.Err(t, err, nil)
	be.Equal(t, len(messages), 1)
	be.Equal(t, messages[0].Address, "+15551234567")
	be.Equal(t, messages[0].Body, "hello there")
	be.Equal(t, messages[0].Timestamp, int64(1700000000000))
	be.Equal(t, messages[0].Direction, sms.DirectionInbound)
	be.True(t, messages[0].ID != "")
}

func TestOutboundWriteGoesToSent(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(openTestDB(t))

	ok, err := adapter.Write(ctx, sms.Message{
		Address:   "+15551234567",
		Body:      "hi",
		Timestamp: 1700000000000,
		Direction: sms.DirectionOutbound,
	})
	be.Err(t, err, nil)
	be.True(t, ok)

	inbound, err := Collect(adapter.ListInbound(ctx))
	be.Err(t, err, nil)
	be.Equal(t, len(inbound), 0)

	sent, err := Collect(adapter.List(ctx, CollectionSent))
	be.Err(t, err, nil)
	be.Equal(t, len(sent), 1)
	be.Equal(t, sent[0].Direction, sms.DirectionOutbound)
}

func TestWriteMarksReadAndSeen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	adapter := NewAdapter(db)

	_, err := adapter.Write(ctx, sms.Message{Address: "5550100", Direction: sms.DirectionInbound})
	be.Err(t, err, nil)

	for record, err := range db.Query(ctx, CollectionInbox) {
		be.Err(t, err, nil)
		be.True(t, record.Read)
		be.True(t, record.Seen)
		be.Equal(t, record.Type, sms.TypeInbox)
		be.Equal(t, record.Body, "")
	}
}

func TestListInboundPreservesProviderOrderAndRestarts(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(openTestDB(t))

	for i, ts := range []int64{100, 300, 200} {
		_, err := adapter.Write(ctx, sms.Message{
			Address:   "+1555000000" + string(rune('0'+i)),
			Body:      "m",
			Timestamp: ts,
			Direction: sms.DirectionInbound,
		})
		be.Err(t, err, nil)
	}

	seq := adapter.ListInbound(ctx)
	first, err := Collect(seq)
	be.Err(t, err, nil)
	be.Equal(t, len(first), 3)
	be.Equal(t, first[0].Timestamp, int64(300))
	be.Equal(t, first[1].Timestamp, int64(200))
	be.Equal(t, first[2].Timestamp, int64(100))

	_, err = adapter.Write(ctx, sms.Message{Address: "+15550009999", Timestamp: 400, Direction: sms.DirectionInbound})
	be.Err(t, err, nil)

	second, err := Collect(seq)
	be.Err(t, err, nil)
	be.Equal(t, len(second), 4)
	be.Equal(t, second[0].Timestamp, int64(400))
}

func TestListInboundStopsEarly(t *testing.T) {
	ctx := context.Background()
	adapter := NewAdapter(openTestDB(t))
	for i := 0; i < 5; i++ {
		_, err := adapter.Write(ctx, sms.Message{Address: "+15550000000", Timestamp: int64(i), Direction: sms.DirectionInbound})
		be.Err(t, err, nil)
	}

	n := 0
	for _, err := range adapter.ListInbound(ctx) {
		be.Err(t, err, nil)
		n++
		if n == 2 {
			break
		}
	}
	be.Equal(t, n, 2)
}

func TestWriteValidationNeverReachesProvider(t *testing.T) {
	provider := &countingProvider{ref: "x"}
	adapter := NewAdapter(provider)

	_, err := adapter.Write(context.Background(), sms.Message{Address: "  ", Body: "hi", Direction: sms.DirectionInbound})
	var storeErr *Error
	be.True(t, errors.As(err, &storeErr))
	be.Equal(t, storeErr.Code, ErrorCodeInvalidArgument)

	_, err = adapter.Write(context.Background(), sms.Message{Address: "+1555", Direction: "UP"})
	be.True(t, errors.As(err, &storeErr))
	be.Equal(t, storeErr.Code, ErrorCodeInvalidArgument)

	be.Equal(t, provider.inserts, 0)
}

func TestWriteFailureCarriesProviderDiagnostic(t *testing.T) {
	provider := &countingProvider{err: errors.New("SQLiteFullException: database or disk is full")}
	adapter := NewAdapter(provider)

	ok, err := adapter.Write(context.Background(), sms.Message{Address: "+1555", Direction: sms.DirectionOutbound})
	be.True(t, !ok)
	var storeErr *Error
	be.True(t, errors.As(err, &storeErr))
	be.Equal(t, storeErr.Code, ErrorCodeWriteFailed)
	be.Equal(t, storeErr.Message, "SQLiteFullException: database or disk is full")
	be.Equal(t, provider.inserts, 1)
}

func TestWriteWithoutReferenceFails(t *testing.T) {
	provider := &countingProvider{ref: ""}
	adapter := NewAdapter(provider)

	ok, err := adapter.Write(context.Background(), sms.Message{Address: "+1555", Direction: sms.DirectionInbound})
	be.True(t, !ok)
	var storeErr *Error
	be.True(t, errors.As(err, &storeErr))
	be.Equal(t, storeErr.Code, ErrorCodeWriteFailed)
}

func TestOpenSQLiteRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQLite("postgres", filepath.Join(t.TempDir(), "x.db"))
	be.True(t, err != nil)

	_, err = OpenSQLite(DriverPure, " ")
	be.True(t, err != nil)
}

func TestCollectionFor(t *testing.T) {
	c, err := CollectionFor(sms.DirectionInbound)
	be.Err(t, err, nil)
	be.Equal(t, c, CollectionInbox)

	c, err = CollectionFor(sms.DirectionOutbound)
	be.Err(t, err, nil)
	be.Equal(t, c, CollectionSent)

	_, err = CollectionFor("")
	be.True(t, err != nil)
}
