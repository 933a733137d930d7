// Package migrate brings the database schema up to date from the embedded
// migration files.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vaultkeep/vaultkeep/migrations"
)

// Up applies all pending migrations. goose needs database/sql, so it opens
// its own short-lived connection via the pgx stdlib driver instead of the
// pool the repositories use.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
