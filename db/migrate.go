package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/smartpigdefi/smartpig/logger"
)

const MigrationsPath = "file://db/migrations"

// Migrate applies all pending migrations from source to the database at connStr.
func Migrate(source, connStr string) error {
	mig, err := migrate.New(source, connStr)
	if err != nil {
		return fmt.Errorf("cannot create migrate instance: %w", err)
	}
	defer mig.Close()

	if err := mig.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log.Info("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrate up: %w", err)
	}

	version, _, _ := mig.Version()
	logger.Log.WithField("version", version).Info("Database migrations applied")
	return nil
}
