// Package account manages the user accounts of one site.
//
// An account is two things: a public /user/<username> thing in the site's
// versioned space, and a private credential record kept by the store.
// The user thing is written through the site's internal save path so it
// gets a revision, an event and trigger firings like any other write.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/infobase/internal/request"
	"github.com/roach88/infobase/internal/store"
	"github.com/roach88/infobase/internal/thing"
)

// UserPrefix is the key prefix of user things.
const UserPrefix = "/user/"

// DefaultTokenTTL bounds the validity of login tokens.
const DefaultTokenTTL = 30 * 24 * time.Hour

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Account is the resolved identity of a user.
type Account struct {
	Key         string `json:"key"`
	Username    string `json:"username"`
	DisplayName string `json:"displayname,omitempty"`
	Email       string `json:"email,omitempty"`
}

// UserKey returns the thing key of username.
func UserKey(username string) string {
	return UserPrefix + username
}

// SaveFunc persists a user document bypassing permission checks.
type SaveFunc func(ctx context.Context, key string, data thing.Data) error

// Manager registers and resolves accounts of one site.
type Manager struct {
	site     string
	store    store.Store
	save     SaveFunc
	signer   Signer
	key      []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithSecret sets the secret tokens are signed with.
func WithSecret(secret string) Option {
	return func(m *Manager) {
		m.key = deriveKey(secret, m.site)
	}
}

// WithSigner replaces the bcrypt password signer.
func WithSigner(s Signer) Option {
	return func(m *Manager) {
		m.signer = s
	}
}

// WithTokenTTL sets how long login tokens remain valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.tokenTTL = ttl
	}
}

// WithClock sets the time source used for records and tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns the account manager of site.
func NewManager(site string, s store.Store, save SaveFunc, opts ...Option) *Manager {
	m := &Manager{
		site:     site,
		store:    s,
		save:     save,
		signer:   Bcrypt{},
		key:      deriveKey("", site),
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register creates the credential record and the user thing of username.
// data is merged into the user document; displayname defaults to the
// username. The credential record claims the username and is removed again
// when the user thing cannot be saved.
func (m *Manager) Register(ctx context.Context, username, email, password string, data thing.Data) (*Account, error) {
	if !usernamePattern.MatchString(username) {
		return nil, &Error{Code: ErrCodeInvalidUsername, Username: username, Message: "username must be 1-64 letters, digits, '.', '_' or '-'"}
	}

	existing, err := m.store.LookupAccount(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	if existing != nil {
		return nil, &Error{Code: ErrCodeUsernameTaken, Username: username, Message: "username already registered"}
	}

	hash, err := m.signer.Sign(password)
	if err != nil {
		return nil, fmt.Errorf("register %s: hash password: %w", username, err)
	}

	doc := data.Clone()
	if doc == nil {
		doc = thing.Data{}
	}
	if _, ok := doc["displayname"]; !ok {
		doc["displayname"] = username
	}
	doc["type"] = thing.Ref(thing.TypeUser)

	key := UserKey(username)
	rec := store.AccountRecord{
		Username:     username,
		UserKey:      key,
		Email:        email,
		PasswordHash: hash,
		Created:      m.now(),
	}
	if err := m.store.RegisterAccount(ctx, rec); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return nil, &Error{Code: ErrCodeUsernameTaken, Username: username, Message: "username already registered"}
		}
		return nil, err
	}

	if err := m.save(ctx, key, doc); err != nil {
		if derr := m.store.DeleteAccount(ctx, username); derr != nil {
			slog.Error("roll back credentials", "site", m.site, "username", username, "error", derr)
		}
		return nil, fmt.Errorf("register %s: save user: %w", username, err)
	}

	slog.Info("account registered", "site", m.site, "username", username)

	displayName, _ := doc["displayname"].(string)
	return &Account{Key: key, Username: username, DisplayName: displayName, Email: email}, nil
}

// Login checks the password of username and returns a signed token.
func (m *Manager) Login(ctx context.Context, username, password string) (string, *Account, error) {
	rec, err := m.store.LookupAccount(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("login %s: %w", username, err)
	}
	if rec == nil || m.signer.Verify(rec.PasswordHash, password) != nil {
		return "", nil, &Error{Code: ErrCodeBadCredentials, Username: username, Message: "invalid username or password"}
	}

	acct, err := m.Get(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if acct == nil {
		return "", nil, &Error{Code: ErrCodeBadCredentials, Username: username, Message: "user thing missing"}
	}
	return signToken(m.key, username, m.now()), acct, nil
}

// Authenticate resolves a token issued by Login on this site.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Account, error) {
	username, issued, ok := parseToken(m.key, token)
	if !ok {
		return nil, &Error{Code: ErrCodeInvalidToken, Message: "token signature mismatch"}
	}
	if m.tokenTTL > 0 && m.now().Sub(issued) > m.tokenTTL {
		return nil, &Error{Code: ErrCodeInvalidToken, Username: username, Message: "token expired"}
	}

	acct, err := m.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, &Error{Code: ErrCodeInvalidToken, Username: username, Message: "unknown user"}
	}
	return acct, nil
}

// Get returns the account of username, or nil when there is no such user.
func (m *Manager) Get(ctx context.Context, username string) (*Account, error) {
	return m.byKey(ctx, UserKey(username))
}

// CurrentUser returns the account acting in ctx, or nil for anonymous
// requests and unknown users.
func (m *Manager) CurrentUser(ctx context.Context) (*Account, error) {
	key := request.User(ctx)
	if key == "" {
		return nil, nil
	}
	if !strings.HasPrefix(key, UserPrefix) {
		key = UserKey(key)
	}
	return m.byKey(ctx, key)
}

func (m *Manager) byKey(ctx context.Context, key string) (*Account, error) {
	t, err := m.store.Get(ctx, key, 0)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", key, err)
	}
	if t == nil || t.Type != thing.TypeUser {
		return nil, nil
	}

	username := strings.TrimPrefix(key, UserPrefix)
	acct := &Account{Key: key, Username: username}
	acct.DisplayName, _ = t.Data["displayname"].(string)

	rec, err := m.store.LookupAccount(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", key, err)
	}
	if rec != nil {
		acct.Email = rec.Email
	}
	return acct, nil
}
