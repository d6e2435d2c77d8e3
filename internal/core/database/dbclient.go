package db

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
)

// NewDatabaseClient opens the relational store named by cfg.DatabaseURL:
// Postgres for postgres:// URLs, SQLite otherwise.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.IsPostgres() {
		return NewPostgresClient(ctx, cfg)
	}
	return NewSQLiteClient(ctx, SQLitePath(cfg.DatabaseURL))
}
