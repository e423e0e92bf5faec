package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// Save persists a single item in its own transaction.
func (s *Store) Save(ctx context.Context, item thing.Item, meta thing.Meta) (thing.SaveResult, error) {
	results, err := s.SaveMany(ctx, []thing.Item{item}, meta)
	if err != nil {
		return thing.SaveResult{}, err
	}
	return results[0], nil
}

// SaveMany persists items atomically. Either every item gets a new revision
// or none does.
func (s *Store) SaveMany(ctx context.Context, items []thing.Item, meta thing.Meta) ([]thing.SaveResult, error) {
	if len(items) == 0 {
		return []thing.SaveResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save many: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	ts := encodeTime(meta.Timestamp)
	results := make([]thing.SaveResult, 0, len(items))

	for i, it := range items {
		if it.Key == "" || it.Type == "" {
			return nil, fmt.Errorf("save many: item %d: key and type are required", i)
		}

		data, err := encodeData(it.Data)
		if err != nil {
			return nil, fmt.Errorf("save many: item %s: %w", it.Key, err)
		}

		var latest int
		err = tx.QueryRowContext(ctx, `SELECT latest_revision FROM things WHERE key = ?`, it.Key).Scan(&latest)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("save many: read revision of %s: %w", it.Key, err)
		}
		revision := latest + 1

		_, err = tx.ExecContext(ctx, `
			INSERT INTO things (key, type, latest_revision, created, last_modified)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				type = excluded.type,
				latest_revision = excluded.latest_revision,
				last_modified = excluded.last_modified
		`, it.Key, it.Type, revision, ts, ts)
		if err != nil {
			return nil, fmt.Errorf("save many: upsert %s: %w", it.Key, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO versions
			(key, revision, type, data, created, comment, machine_comment, ip, author)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			it.Key,
			revision,
			it.Type,
			data,
			ts,
			meta.Comment,
			meta.MachineComment,
			meta.IP,
			meta.AuthorKey,
		)
		if err != nil {
			return nil, fmt.Errorf("save many: insert version %s@%d: %w", it.Key, revision, err)
		}

		results = append(results, thing.SaveResult{Key: it.Key, Revision: revision})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save many: commit: %w", err)
	}

	s.invalidate(results)

	return results, nil
}

// invalidate drops cached latest revisions of saved keys and fences off
// fills that read before the commit.
func (s *Store) invalidate(results []thing.SaveResult) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.writes++
	if c := s.currentCache(); c != nil {
		for _, r := range results {
			c.Remove(r.Key)
		}
	}
}

// NewKey allocates "<prefix>/<n>" where prefix is attrs["prefix"] or the
// last segment of the type key ("/type/page" gives "/page"). Counters are
// kept per prefix; numbers already taken by explicitly chosen keys are
// skipped.
func (s *Store) NewKey(ctx context.Context, typeKey string, attrs map[string]any) (string, error) {
	prefix, _ := attrs["prefix"].(string)
	if prefix == "" {
		base := path.Base(typeKey)
		if base == "." || base == "/" || base == "" {
			return "", fmt.Errorf("new key: cannot derive prefix from type %q", typeKey)
		}
		prefix = "/" + base
	}
	prefix = strings.TrimSuffix(prefix, "/")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("new key: begin tx: %w", err)
	}
	defer tx.Rollback()

	for {
		var n int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO seq (name, value) VALUES (?, 1)
			ON CONFLICT(name) DO UPDATE SET value = value + 1
			RETURNING value
		`, prefix).Scan(&n)
		if err != nil {
			return "", fmt.Errorf("new key: next value for %s: %w", prefix, err)
		}

		key := prefix + "/" + strconv.FormatInt(n, 10)
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM things WHERE key = ?`, key).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("new key: check %s: %w", key, err)
		}
		if exists > 0 {
			continue
		}

		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("new key: commit: %w", err)
		}
		return key, nil
	}
}

// RegisterAccount inserts a credential record. Usernames are unique.
func (s *Store) RegisterAccount(ctx context.Context, rec store.AccountRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, user_key, email, password_hash, created)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.Username,
		rec.UserKey,
		rec.Email,
		rec.PasswordHash,
		encodeTime(rec.Created),
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("register account %s: %w", rec.Username, store.ErrAccountExists)
	}
	if err != nil {
		return fmt.Errorf("register account %s: %w", rec.Username, err)
	}
	return nil
}

// DeleteAccount removes the credential record of username.
func (s *Store) DeleteAccount(ctx context.Context, username string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete account %s: %w", username, err)
	}
	return nil
}
