package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies every up migration under sourceDir (a "file://" path) to
// dsn, leaving the schema untouched when it is already current.
func Migrate(dsn, sourceDir string) error {
	m, err := migrate.New(sourceDir, dsn)
	if err != nil {
		return fmt.Errorf("%w: init migrator: %v", ErrDatabaseError, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: apply migrations: %v", ErrDatabaseError, err)
	}
	return nil
}

// This blank reference keeps the postgres driver package imported and
// linkable even on builds that only ever call Migrate with a prebuilt dsn.
var _ = postgres.Config{}
