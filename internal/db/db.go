// Package db opens the Postgres connection and applies the embedded schema.
// The schema lives in migrations/0001_init.sql and needs the pgvector
// extension for the doc_chunks embedding column.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/lib/pq"

	"github.com/railsense/railsense/internal/config"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// buildDSN prefers an explicit DSN and otherwise assembles one from the
// individual connection fields. SSL defaults to disabled.
func buildDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
}

// ApplyMigrations runs the embedded schema files in name order, one
// statement at a time. Every statement is guarded by IF NOT EXISTS or
// tolerated on "already exists", so startup against an initialized database
// is a no-op.
func ApplyMigrations(db *sql.DB) error {
	files, err := fs.Glob(schemaFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := fs.ReadFile(schemaFS, file)
		if err != nil {
			return err
		}
		for _, stmt := range splitStatements(string(content)) {
			if _, err := db.Exec(stmt); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("apply %s: %w", file, err)
			}
		}
	}
	return nil
}

// splitStatements cuts a schema file on ";". The init schema carries no
// function bodies or string literals containing semicolons, so a plain
// split is enough.
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
