package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/infobase/internal/store"
)

const dbSuffix = ".db"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Provider keeps one SQLite database per site under a directory.
type Provider struct {
	dir string
}

var _ store.Provider = (*Provider)(nil)

// NewProvider returns a provider rooted at dir, creating it if needed.
func NewProvider(dir string) (*Provider, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &Provider{dir: dir}, nil
}

// Dir returns the directory holding site databases.
func (p *Provider) Dir() string {
	return p.dir
}

// Create initializes a new site database.
func (p *Provider) Create(ctx context.Context, name string) (store.Store, error) {
	path, err := p.path(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, &store.AlreadyExistsError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("create site %s: %w", name, err)
	}
	f.Close()

	s, err := Open(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("create site %s: %w", name, err)
	}
	return s, nil
}

// Get opens an existing site database. Missing sites yield (nil, nil).
func (p *Provider) Get(ctx context.Context, name string) (store.Store, error) {
	path, err := p.path(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("stat site %s: %w", name, err)
	}

	s, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open site %s: %w", name, err)
	}
	return s, nil
}

// Delete removes the site database and its WAL files.
func (p *Provider) Delete(ctx context.Context, name string) (bool, error) {
	path, err := p.path(name)
	if err != nil {
		return false, err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete site %s: %w", name, err)
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return true, fmt.Errorf("delete site %s: %w", name, err)
		}
	}
	return true, nil
}

// List returns the names of all sites on disk, sorted.
func (p *Provider) List() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dbSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), dbSuffix)
		if namePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (p *Provider) path(name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", store.ErrInvalidName, name)
	}
	return filepath.Join(p.dir, name+dbSuffix), nil
}
