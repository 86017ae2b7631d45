package db

import (
	"strconv"
	"strings"
)

// Dialect names the SQL flavour of the backing store.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the dialect names used in configuration files, including
// the common driver aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", ErrUnsupportedDialect
}

func (d Dialect) String() string {
	return string(d)
}

// QuoteIdentifier quotes a table or column name. Embedded quote characters are
// doubled.
func (d Dialect) QuoteIdentifier(name string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Rebind rewrites ? placeholders into the dialect's native form. Question marks
// inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CookieHash returns an expression computing the lowercase hex md5 of column
// concatenated with one bound parameter.
func (d Dialect) CookieHash(column string) string {
	col := d.QuoteIdentifier(column)
	switch d {
	case MySQL:
		return "MD5(CONCAT(" + col + ", ?))"
	default:
		return "md5(" + col + " || ?)"
	}
}

// Upsert returns the clause that turns a plain INSERT into an insert-or-update
// keyed on conflict.
func (d Dialect) Upsert(conflict []string, update []string) string {
	sets := make([]string, 0, len(update))
	if d == MySQL {
		for _, c := range update {
			q := d.QuoteIdentifier(c)
			sets = append(sets, q+" = VALUES("+q+")")
		}
		return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}

	keys := make([]string, 0, len(conflict))
	for _, c := range conflict {
		keys = append(keys, d.QuoteIdentifier(c))
	}
	for _, c := range update {
		q := d.QuoteIdentifier(c)
		sets = append(sets, q+" = excluded."+q)
	}
	return " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d Dialect) SupportsReturning() bool {
	return d != MySQL
}

func (d Dialect) driverName() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "pgx"
	default:
		return sqliteDriverName
	}
}
