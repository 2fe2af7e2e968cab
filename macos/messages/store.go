package messages

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/spachava753/smsbridge/sms"
	"github.com/spachava753/smsbridge/store"
)

const listMessagesSQL = `
WITH chat_for_message AS (
	SELECT message_id, MIN(chat_id) AS chat_id
	FROM chat_message_join
	GROUP BY message_id
)
SELECT
	m.ROWID,
	COALESCE(m.guid, ''),
	COALESCE(m.text, ''),
	COALESCE(m.is_from_me, 0),
	COALESCE(m.is_read, 0),
	COALESCE(m.date, 0),
	COALESCE(h.id, ''),
	COALESCE(h.uncanonicalized_id, ''),
	COALESCE(c.chat_identifier, '')
FROM message m
LEFT JOIN handle h ON h.ROWID = m.handle_id
LEFT JOIN chat_for_message cfm ON cfm.message_id = m.ROWID
LEFT JOIN chat c ON c.ROWID = cfm.chat_id
WHERE COALESCE(m.is_empty, 0) = 0 AND COALESCE(m.is_from_me, 0) = ?
ORDER BY m.date DESC, m.ROWID DESC;
`

// Store is a read-only store.Provider over the Messages database.
type Store struct {
	path   string
	driver string
}

// NewStore returns a Store for the database at path, or the current user's
// chat.db when path is empty.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		var err error
		if path, err = DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	return &Store{path: path, driver: "sqlite3"}, nil
}

// Query implements store.Provider. Each row's type is derived from its
// is_from_me column. The database is opened per query and closed when the
// sequence ends.
func (s *Store) Query(ctx context.Context, collection store.Collection) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		fromMe := 0
		switch collection {
		case store.CollectionInbox:
		case store.CollectionSent:
			fromMe = 1
		default:
			yield(store.Record{}, fmt.Errorf("messages: unknown collection %q", collection))
			return
		}

		db, err := openSQLite(s.driver, s.path)
		if err != nil {
			yield(store.Record{}, err)
			return
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx, listMessagesSQL, fromMe)
		if err != nil {
			yield(store.Record{}, fmt.Errorf("messages: sqlite query failed: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rowID                   int64
				guid, text              string
				isFromMe, isRead        int
				date                    int64
				handle, uncanonicalized string
				chatIdentifier          string
			)
			if err := rows.Scan(&rowID, &guid, &text, &isFromMe, &isRead, &date, &handle, &uncanonicalized, &chatIdentifier); err != nil {
				yield(store.Record{}, fmt.Errorf("messages: scanning sqlite row failed: %w", err))
				return
			}
			if !yield(recordFromRow(rowID, guid, text, isFromMe, isRead, date, handle, uncanonicalized, chatIdentifier), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(store.Record{}, fmt.Errorf("messages: iterating sqlite rows failed: %w", err))
		}
	}
}

// Insert implements store.Provider and always fails with ErrReadOnly.
func (s *Store) Insert(context.Context, store.Collection, store.Record) (string, error) {
	return "", ErrReadOnly
}

func recordFromRow(rowID int64, guid, text string, isFromMe, isRead int, date int64, handle, uncanonicalized, chatIdentifier string) store.Record {
	typ := sms.TypeInbox
	if isFromMe != 0 {
		typ = sms.TypeSent
	}
	var millis int64
	if t := appleNanoToTime(date); !t.IsZero() {
		millis = t.UnixMilli()
	}
	return store.Record{
		ID:      firstNonEmpty(guid, fmt.Sprint(rowID)),
		Address: firstNonEmpty(uncanonicalized, handle, chatIdentifier),
		Body:    text,
		Date:    millis,
		Type:    typ,
		Read:    isRead != 0,
		Seen:    isRead != 0,
	}
}
