// Package eventlog persists bus events to an append-only SQLite table.
//
// The log is a plain bus listener: it sees events after the write that
// produced them has committed, so a failed append never affects the
// write. Entries are ordered by a logical sequence, never by timestamp.
package eventlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/infobase/internal/event"
	"github.com/roach88/infobase/internal/thing"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one persisted event.
type Record struct {
	Seq   int64       `json:"seq"`
	Event event.Event `json:"event"`
}

// Log is an append-only event log.
type Log struct {
	db    *sql.DB
	clock *Clock

	// mu serializes seq assignment with the insert so rows land in seq order.
	mu sync.Mutex
}

var _ event.Listener = (*Log)(nil)

// Open creates or opens the log at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("open event log: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("open event log: schema: %w", err)
	}

	var last int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("open event log: last seq: %w", err)
	}

	return &Log{db: db, clock: NewClockAt(last)}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Name identifies the log in failure reports.
func (l *Log) Name() string {
	return "eventlog"
}

// HandleEvent appends ev.
func (l *Log) HandleEvent(ctx context.Context, ev event.Event) error {
	_, err := l.Append(ctx, ev)
	return err
}

// Append persists ev and returns its sequence number.
func (l *Log) Append(ctx context.Context, ev event.Event) (int64, error) {
	data, err := thing.MarshalCanonical(ev.Data())
	if err != nil {
		return 0, fmt.Errorf("append event %s: %w", ev.ID(), err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.clock.Next()
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO events (seq, id, site, name, timestamp, ip, author, key, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		ev.ID(),
		ev.Site(),
		ev.Name(),
		ev.Timestamp().UTC().Format(timeLayout),
		ev.IP(),
		ev.Author(),
		ev.Key(),
		string(data),
	)
	if err != nil {
		return 0, fmt.Errorf("append event %s: %w", ev.ID(), err)
	}
	return seq, nil
}

// Read returns up to limit events of site with seq > afterSeq, in seq
// order. A non-positive limit returns everything.
func (l *Log) Read(ctx context.Context, site string, afterSeq int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, id, site, name, timestamp, ip, author, data
		FROM events
		WHERE site = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, site, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			seq                                int64
			id, s, name, ts, ip, author, data string
		)
		if err := rows.Scan(&seq, &id, &s, &name, &ts, &ip, &author, &data); err != nil {
			return nil, fmt.Errorf("read events: scan: %w", err)
		}
		when, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("read events: seq %d: %w", seq, err)
		}
		d, err := thing.DecodeData([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("read events: seq %d: %w", seq, err)
		}
		records = append(records, Record{
			Seq:   seq,
			Event: event.New(id, s, name, when, ip, author, d),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return records, nil
}
