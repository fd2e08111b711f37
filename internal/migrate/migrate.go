// Package migrate applies embedded SQL migrations when the local store opens.
package migrate

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"

	"github.com/classkeeper/classkeeper/migrations"
)

// Up runs all pending migrations from the embedded filesystem against an
// already-open SQLite handle.
func Up(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}
