package postgres

import (
	"embed"
	"errors"
	"fmt"
	"taskflow/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrator(dbURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("источник миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, fmt.Errorf("инициализация миграций: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) error {
	srcErr, dbErr := m.Close()
	return multierr.Combine(srcErr, dbErr)
}

// Migrate применяет все встроенные миграции
func Migrate(dbURL string) (err error) {
	logger.Info("Repository: Применение миграций")

	m, err := newMigrator(dbURL)
	if err != nil {
		logger.Error("Repository: Ошибка инициализации миграций", err)
		return err
	}
	defer func() { err = multierr.Append(err, closeMigrator(m)) }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Repository: Ошибка применения миграций", err)
		return fmt.Errorf("применение миграций: %w", err)
	}

	logger.Info("Repository: Миграции применены")
	return nil
}

// Down откатывает все миграции
func Down(dbURL string) (err error) {
	logger.Info("Repository: Откат миграций")

	m, err := newMigrator(dbURL)
	if err != nil {
		logger.Error("Repository: Ошибка инициализации миграций", err)
		return err
	}
	defer func() { err = multierr.Append(err, closeMigrator(m)) }()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Repository: Ошибка отката миграций", err)
		return fmt.Errorf("откат миграций: %w", err)
	}

	logger.Info("Repository: Миграции откачены")
	return nil
}
