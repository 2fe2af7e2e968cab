package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/spachava753/smsbridge/sms"
)

const (
	// DriverCGO is the github.com/mattn/go-sqlite3 driver name (CGO required).
	DriverCGO = "sqlite3"
	// DriverPure is the modernc.org/sqlite driver name.
	DriverPure = "sqlite"
)

const smsSchema = `
CREATE TABLE IF NOT EXISTS sms (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	address TEXT,
	body TEXT,
	date INTEGER NOT NULL DEFAULT 0,
	type INTEGER NOT NULL,
	read INTEGER NOT NULL DEFAULT 0,
	seen INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sms_type_date ON sms (type, date);
`

// SQLite is a Provider over a local `sms` table laid out like a telephony
// content provider: one table, collections selected by the type column.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path with driver
// DriverCGO or DriverPure.
func OpenSQLite(driver string, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}

	dsn, err := sqliteDSN(driver, path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening sqlite database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connecting to sqlite database failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open database and ensures the sms table exists.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(smsSchema); err != nil {
		return nil, fmt.Errorf("store: creating sms schema failed: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Query implements Provider. Rows come back newest first, the telephony
// provider's default sort order.
func (s *SQLite) Query(ctx context.Context, collection Collection) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		typ, err := collectionType(collection)
		if err != nil {
			yield(Record{}, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, `
SELECT _id, COALESCE(address, ''), COALESCE(body, ''), date, type, read, seen
FROM sms
WHERE type = ?
ORDER BY date DESC, _id DESC`, typ)
		if err != nil {
			yield(Record{}, fmt.Errorf("sqlite query failed: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id         int64
				rec        Record
				read, seen int
			)
			if err := rows.Scan(&id, &rec.Address, &rec.Body, &rec.Date, &rec.Type, &read, &seen); err != nil {
				yield(Record{}, fmt.Errorf("scanning sqlite row failed: %w", err))
				return
			}
			rec.ID = strconv.FormatInt(id, 10)
			rec.Read = read != 0
			rec.Seen = seen != 0
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, fmt.Errorf("iterating sqlite rows failed: %w", err))
		}
	}
}

// Insert implements Provider. The collection decides the stored type code,
// matching how a telephony provider treats its inbox and sent URIs.
func (s *SQLite) Insert(ctx context.Context, collection Collection, record Record) (string, error) {
	typ, err := collectionType(collection)
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sms (address, body, date, type, read, seen) VALUES (?, ?, ?, ?, ?, ?)`,
		record.Address, record.Body, record.Date, typ, boolInt(record.Read), boolInt(record.Seen),
	)
	if err != nil {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	if id <= 0 {
		return "", nil
	}
	return fmt.Sprintf("sms/%s/%d", collection, id), nil
}

func collectionType(collection Collection) (int, error) {
	switch collection {
	case CollectionInbox:
		return sms.TypeInbox, nil
	case CollectionSent:
		return sms.TypeSent, nil
	default:
		return 0, fmt.Errorf("unknown collection %q", collection)
	}
}

func sqliteDSN(driver string, path string) (string, error) {
	escaped := strings.ReplaceAll(path, " ", "%20")
	switch driver {
	case DriverCGO:
		return fmt.Sprintf("file:%s?_busy_timeout=5000", escaped), nil
	case DriverPure:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", escaped), nil
	default:
		return "", fmt.Errorf("store: unsupported sqlite driver %q", driver)
	}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
