package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// Get returns the requested revision of key, or the latest when revision is
// 0. Latest revisions are served from the installed cache when possible.
// Returns (nil, nil) when the key or revision does not exist.
func (s *Store) Get(ctx context.Context, key string, revision int) (*thing.Thing, error) {
	if revision < 0 {
		return nil, nil
	}

	c := s.currentCache()
	var stamp uint64
	if revision == 0 && c != nil {
		if t, ok := c.Get(key); ok {
			return t, nil
		}
		stamp = s.writeStamp()
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT v.key, v.revision, v.type, v.data, v.created, t.latest_revision, t.created
		FROM versions v
		JOIN things t ON t.key = v.key
		WHERE v.key = ? AND v.revision = CASE WHEN ? = 0 THEN t.latest_revision ELSE ? END
	`, key, revision, revision)

	t, err := scanThing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s@%d: %w", key, revision, err)
	}

	if revision == 0 && c != nil {
		s.fill(c, t, stamp)
	}
	return t, nil
}

func (s *Store) writeStamp() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.writes
}

// fill caches t unless a batch committed after stamp was taken.
func (s *Store) fill(c store.Cache, t *thing.Thing, stamp uint64) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.writes != stamp {
		return
	}
	c.Add(t)
}

// GetMany returns the latest revision of each existing key, in request order.
func (s *Store) GetMany(ctx context.Context, keys []string) ([]*thing.Thing, error) {
	things := make([]*thing.Thing, 0, len(keys))
	for _, key := range keys {
		t, err := s.Get(ctx, key, 0)
		if err != nil {
			return nil, err
		}
		if t != nil {
			things = append(things, t)
		}
	}
	return things, nil
}

// Things returns the keys of latest revisions matching q.
func (s *Store) Things(ctx context.Context, q store.ThingsQuery) ([]string, error) {
	query, args, err := compileThings(q)
	if err != nil {
		return nil, fmt.Errorf("things: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("things: query: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("things: scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("things: iterate: %w", err)
	}
	return keys, nil
}

// Versions returns history rows matching q.
func (s *Store) Versions(ctx context.Context, q store.VersionsQuery) ([]thing.Version, error) {
	query, args, err := compileVersions(q)
	if err != nil {
		return nil, fmt.Errorf("versions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("versions: query: %w", err)
	}
	defer rows.Close()

	versions := []thing.Version{}
	for rows.Next() {
		var (
			v       thing.Version
			created string
		)
		if err := rows.Scan(&v.Key, &v.Revision, &v.Type, &created, &v.Comment, &v.MachineComment, &v.IP, &v.Author); err != nil {
			return nil, fmt.Errorf("versions: scan: %w", err)
		}
		if v.Created, err = decodeTime(created); err != nil {
			return nil, fmt.Errorf("versions: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions: iterate: %w", err)
	}
	return versions, nil
}

// LookupAccount returns the credential record for username, or nil.
func (s *Store) LookupAccount(ctx context.Context, username string) (*store.AccountRecord, error) {
	var (
		rec     store.AccountRecord
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT username, user_key, email, password_hash, created
		FROM accounts WHERE username = ?
	`, username).Scan(&rec.Username, &rec.UserKey, &rec.Email, &rec.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", username, err)
	}
	if rec.Created, err = decodeTime(created); err != nil {
		return nil, fmt.Errorf("lookup account %s: %w", username, err)
	}
	return &rec, nil
}

// scanThing reads a versions/things join row.
func scanThing(row *sql.Row) (*thing.Thing, error) {
	var (
		t                     thing.Thing
		data, modified, since string
	)
	if err := row.Scan(&t.Key, &t.Revision, &t.Type, &data, &modified, &t.LatestRevision, &since); err != nil {
		return nil, err
	}

	var err error
	if t.Data, err = decodeData(data); err != nil {
		return nil, err
	}
	if t.LastModified, err = decodeTime(modified); err != nil {
		return nil, err
	}
	if t.Created, err = decodeTime(since); err != nil {
		return nil, err
	}
	return &t, nil
}
