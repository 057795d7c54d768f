// Package store owns the schema of the metadata database.
package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/umich-dbgroup/litmus/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the metadata database at url to the latest version.
func Migrate(url string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Store] Schema up to date")
			return nil
		}
		return fmt.Errorf("failed to migrate: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("[Store] Migrated metadata database", "version", version)
	return nil
}
