// Copyright 2025 James Ross
package pgclient

import (
	"database/sql"

	"github.com/filevault/dedup-backend/internal/config"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// New opens a pooled Postgres connection using cfg.Postgres. The returned
// *sql.DB is safe for concurrent use by every package that needs a
// connection (store, vectorindex).
func New(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
