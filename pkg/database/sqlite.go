package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectSQLite opens a local sqlite file (or ":memory:") or a remote libsql:// database.
// Used for single-node deployments and tests; production uses ConnectPostgres.
func ConnectSQLite(url string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch {
	case strings.HasPrefix(url, "libsql://"):
		conn, err := sql.Open("libsql", url)
		if err != nil {
			return nil, fmt.Errorf("open libsql: %w", err)
		}
		dialector = sqlite.New(sqlite.Config{Conn: conn})
	default:
		dialector = sqlite.Open(url)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// sqlite serializes writers anyway; one connection keeps ":memory:" databases shared
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}
