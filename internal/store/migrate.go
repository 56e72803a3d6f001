package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pressly/goose/v3"

	"qrattend/internal/store/migrations"
)

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("nil database provided")
	}
	if err := prepare(); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// MigrationStatus logs the state of each migration through goose's logger.
func MigrationStatus(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("nil database provided")
	}
	if err := prepare(); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, ".")
}

func prepare() error {
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect("postgres")
}
