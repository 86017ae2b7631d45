package sqlstore

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/password"
)

var (
	// ErrUserExists is returned by CreateUser for a taken username.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by operations addressing a missing user.
	ErrUserNotFound = errors.New("user not found")
)

// Store is the SQL-backed directory.
type Store struct {
	db     *db.DB
	tables db.Tables
	hasher *password.Argon2
	log    logr.Logger
}

var (
	_ cmsauth.UserProvider     = (*Store)(nil)
	_ cmsauth.PermissionSource = (*Store)(nil)
	_ cmsauth.AttemptStore     = (*Store)(nil)
)

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger used for rehash and corrupt-hash notices.
func WithLogger(l logr.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store over the tables named by prefix.
func New(store *db.DB, prefix string, hasher *password.Argon2, opts ...Option) *Store {
	s := &Store{
		db:     store,
		tables: db.TablesFor(prefix),
		hasher: hasher,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) table(name string) string {
	return s.db.Dialect().QuoteIdentifier(name)
}
