package db

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// sqliteDriverName is a go-sqlite3 driver with an md5() SQL function, which
// SQLite does not ship.
const sqliteDriverName = "sqlite3_cmsauth"

var registerSQLite sync.Once

func ensureSQLiteDriver() {
	registerSQLite.Do(func() {
		sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("md5", md5Hex, true)
			},
		})
	})
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
