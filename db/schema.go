package db

import (
	"context"
	"fmt"
)

// Tables holds the physical table names derived from a prefix.
type Tables struct {
	Sessions      string
	LoginAttempts string
	Users         string
	Grants        string
}

// TablesFor applies prefix to every cmsauth table name.
func TablesFor(prefix string) Tables {
	return Tables{
		Sessions:      prefix + "sessions",
		LoginAttempts: prefix + "login_attempts",
		Users:         prefix + "users",
		Grants:        prefix + "grants",
	}
}

// Install creates every cmsauth table that does not exist yet. It never alters
// existing tables.
func (d *DB) Install(ctx context.Context, prefix string) error {
	for _, stmt := range d.schema(TablesFor(prefix)) {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (d *DB) schema(t Tables) []string {
	q := d.dialect.QuoteIdentifier

	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch d.dialect {
	case MySQL:
		serial = "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case Postgres:
		serial = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + q(t.Sessions) + ` (
	session_id    CHAR(32) NOT NULL PRIMARY KEY,
	ip_address    VARCHAR(64) NOT NULL,
	user_agent    VARCHAR(512) NOT NULL,
	last_activity BIGINT NOT NULL,
	timeout       BIGINT NOT NULL,
	fixed         SMALLINT NOT NULL DEFAULT 0,
	data          TEXT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + q(t.LoginAttempts) + ` (
	ip_address   VARCHAR(64) NOT NULL PRIMARY KEY,
	attempts     INTEGER NOT NULL,
	last_attempt BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS ` + q(t.Users) + ` (
	id            ` + serial + `,
	username      VARCHAR(191) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	super_user    SMALLINT NOT NULL DEFAULT 0,
	permission    INTEGER NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS ` + q(t.Grants) + ` (
	user_id     BIGINT NOT NULL,
	resource_id INTEGER NOT NULL,
	permission  INTEGER NOT NULL,
	PRIMARY KEY (user_id, resource_id)
)`,
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS; the primary key covers lookups there.
	if d.dialect != MySQL {
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS `+q(t.Sessions+"_expiry")+` ON `+q(t.Sessions)+` (last_activity)`)
	}
	return stmts
}
