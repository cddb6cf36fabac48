package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/schema.sql
var schemaSQL string

// Schema answers readiness questions about the database layout.
type Schema struct {
	db DBTX
}

// NewSchema builds a Schema bound to the given connection.
func NewSchema(db DBTX) *Schema {
	return &Schema{db: db}
}

// TableExists reports whether the named table is visible on the search path.
func (s *Schema) TableExists(ctx context.Context, table string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("platform/db: check %s: %w", table, err)
	}
	return exists, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Schema) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("platform/db: schema not configured")
	}
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}

// ApplySchema migrates inside a single transaction so a failing statement
// leaves no partial layout behind.
func ApplySchema(ctx context.Context, pool TxBeginner) error {
	return WithTx(ctx, pool, func(tx pgx.Tx) error {
		return NewSchema(tx).Migrate(ctx)
	})
}

// SchemaSQL exposes the embedded DDL for tooling.
func SchemaSQL() string {
	return schemaSQL
}
