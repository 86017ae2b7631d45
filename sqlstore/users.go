package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/password"
	"github.com/MrEthical07/cmsauth/permission"
)

// User is one row of the users table.
type User struct {
	ID         int64
	Username   string
	SuperUser  bool
	Permission permission.Value
}

// VerifyCredentials checks username and secret against the stored Argon2id
// hash. Unknown users cost the same hashing work as known ones. A hash made
// with weaker parameters is upgraded after a successful check.
func (s *Store) VerifyCredentials(ctx context.Context, username, secret string) (cmsauth.Principal, bool, error) {
	var (
		id    int64
		hash  string
		super int
		perm  int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash, super_user, permission FROM "+s.table(s.tables.Users)+" WHERE username = ?",
		username,
	).Scan(&id, &hash, &super, &perm)
	if errors.Is(err, sql.ErrNoRows) {
		s.hasher.VerifyDummy(secret)
		return cmsauth.Principal{}, false, nil
	}
	if err != nil {
		return cmsauth.Principal{}, false, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}

	ok, err := s.hasher.Verify(secret, hash)
	if err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			s.log.Info("stored password hash unreadable", "user", id)
		}
		return cmsauth.Principal{}, false, nil
	}
	if !ok {
		return cmsauth.Principal{}, false, nil
	}

	if upgrade, _ := s.hasher.NeedsUpgrade(hash); upgrade {
		if err := s.setHash(ctx, id, secret); err != nil {
			s.log.Error(err, "password rehash failed", "user", id)
		}
	}

	p := cmsauth.Principal{
		UserID:     strconv.FormatInt(id, 10),
		SuperUser:  super != 0,
		Permission: permission.New(permission.Decimal(perm)),
	}
	if p.SuperUser {
		p.Permission = permission.Super()
	}
	return p, true, nil
}

// CreateUser inserts a user and returns its id.
func (s *Store) CreateUser(ctx context.Context, username, secret string, superUser bool, perm permission.Value) (int64, error) {
	if _, err := s.userID(ctx, username); err == nil {
		return 0, ErrUserExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return 0, err
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return 0, err
	}

	decimal := perm.Decimal()
	if perm.IsSuper() {
		decimal = permission.All
	}
	q := "INSERT INTO " + s.table(s.tables.Users) + " (username, password_hash, super_user, permission) VALUES (?, ?, ?, ?)"
	args := []any{username, hash, boolInt(superUser), decimal}

	if s.db.Dialect().SupportsReturning() {
		var id int64
		if err := s.db.QueryRowContext(ctx, q+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return id, nil
}

// SetPassword replaces the password of username.
func (s *Store) SetPassword(ctx context.Context, username, secret string) error {
	id, err := s.userID(ctx, username)
	if err != nil {
		return err
	}
	return s.setHash(ctx, id, secret)
}

// User looks a user up by name.
func (s *Store) User(ctx context.Context, username string) (User, error) {
	var (
		u     = User{Username: username}
		super int
		perm  int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, super_user, permission FROM "+s.table(s.tables.Users)+" WHERE username = ?",
		username,
	).Scan(&u.ID, &super, &perm)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	u.SuperUser = super != 0
	u.Permission = permission.New(permission.Decimal(perm))
	if u.SuperUser {
		u.Permission = permission.Super()
	}
	return u, nil
}

func (s *Store) userID(ctx context.Context, username string) (int64, error) {
	u, err := s.User(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (s *Store) setHash(ctx context.Context, id int64, secret string) error {
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE "+s.table(s.tables.Users)+" SET password_hash = ? WHERE id = ?", hash, id)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
