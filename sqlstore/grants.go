package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/permission"
)

// GetPermission returns the grant of userID on resourceID. Ids that are not
// numeric have no grants.
func (s *Store) GetPermission(ctx context.Context, userID string, resourceID int) (permission.Input, bool, error) {
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return permission.Input{}, false, nil
	}

	var perm int
	err = s.db.QueryRowContext(ctx,
		"SELECT permission FROM "+s.table(s.tables.Grants)+" WHERE user_id = ? AND resource_id = ?",
		uid, resourceID,
	).Scan(&perm)
	if errors.Is(err, sql.ErrNoRows) {
		return permission.Input{}, false, nil
	}
	if err != nil {
		return permission.Input{}, false, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return permission.Decimal(perm), true, nil
}

// Grant sets the permission of userID on resourceID, replacing any earlier
// grant.
func (s *Store) Grant(ctx context.Context, userID int64, resourceID int, perm permission.Value) error {
	if perm.IsSuper() {
		return errors.New("super user is not a grant")
	}
	d := s.db.Dialect()
	q := "INSERT INTO " + s.table(s.tables.Grants) + " (user_id, resource_id, permission) VALUES (?, ?, ?)" +
		d.Upsert([]string{"user_id", "resource_id"}, []string{"permission"})
	if _, err := s.db.ExecContext(ctx, q, userID, resourceID, perm.Decimal()); err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return nil
}

// Revoke removes the grant of userID on resourceID.
func (s *Store) Revoke(ctx context.Context, userID int64, resourceID int) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM "+s.table(s.tables.Grants)+" WHERE user_id = ? AND resource_id = ?",
		userID, resourceID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return nil
}
