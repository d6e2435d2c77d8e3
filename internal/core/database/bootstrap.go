package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"
)

//go:embed scripts/*.sql
var bootstrapFS embed.FS

const schemaVersion = 1

// dialect captures the few statements that differ between backends.
type dialect struct {
	name        string
	script      string
	metaExists  string
	versionSeen string
}

var (
	postgresDialect = dialect{
		name:   "postgres",
		script: "scripts/postgres.sql",
		metaExists: `
			SELECT EXISTS (
			  SELECT 1 FROM information_schema.tables
			  WHERE table_name = 'docchat_meta'
			)`,
		versionSeen: `SELECT EXISTS (SELECT 1 FROM docchat_meta WHERE version = $1)`,
	}
	sqliteDialect = dialect{
		name:        "sqlite",
		script:      "scripts/sqlite.sql",
		metaExists:  `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'docchat_meta')`,
		versionSeen: `SELECT EXISTS (SELECT 1 FROM docchat_meta WHERE version = ?)`,
	}
)

// EnsureBootstrapped creates the schema unless the meta table already
// records the current version.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, d dialect) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	var exists bool
	if err := db.QueryRowContext(ctxBoot, d.metaExists).Scan(&exists); err != nil {
		return fmt.Errorf("meta table check failed: %w", err)
	}
	if !exists {
		return runBootstrap(ctxBoot, db, d)
	}

	var hasVersion bool
	if err := db.QueryRowContext(ctxBoot, d.versionSeen, schemaVersion).Scan(&hasVersion); err != nil {
		return fmt.Errorf("meta version check failed: %w", err)
	}
	if !hasVersion {
		return runBootstrap(ctxBoot, db, d)
	}
	return nil
}

func runBootstrap(ctx context.Context, db *sql.DB, d dialect) error {
	sqlBytes, err := bootstrapFS.ReadFile(d.script)
	if err != nil {
		return fmt.Errorf("read %s: %w", d.script, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec %s bootstrap: %w", d.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
