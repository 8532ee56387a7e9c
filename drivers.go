package main

import (
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers "sqlserver"
	_ "modernc.org/sqlite"              // registers "sqlite"
)

// OpenDatabase opens and pings the catalog database.
func OpenDatabase(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn required (set database.dsn or --dsn)")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// One connection keeps attached catalog schemas visible to every query.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, newConnectionError("connect", "", err)
	}
	return db, nil
}
