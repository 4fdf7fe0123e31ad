package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies the embedded schema. Every statement is IF NOT EXISTS, so
// running it on each start is safe. Without arguments pgx uses the simple
// protocol, which accepts the whole multi-statement script.
func Migrate(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
