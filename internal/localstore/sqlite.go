package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"taskflow/internal/logger"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`,
	},
}

// SQLite хранит значения в локальной базе SQLite
type SQLite struct {
	db *sqlx.DB
}

type entry struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewSQLite открывает (или создаёт) базу по пути path и применяет схему.
// ":memory:" - база в памяти.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}
	// одно соединение: для ":memory:" каждое соединение - отдельная база
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("включение WAL: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("применение схемы: %w", err)
	}

	logger.Info("LocalStore: Локальное хранилище открыто", zap.String("path", path))
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) runMigrations() error {
	current := 0

	var tables int
	err := s.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("проверка schema_version: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("чтение версии схемы: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("начало транзакции: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("запись версии %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("фиксация миграции %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key string, dst any) (bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		logger.Error("LocalStore: Ошибка чтения", err, zap.String("key", key))
		return false, fmt.Errorf("чтение %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return true, fmt.Errorf("декодирование %q: %w", key, err)
	}
	return true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("кодирование %q: %w", key, err)
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (:key, :value, :updated_at)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		entry{Key: key, Value: string(raw), UpdatedAt: time.Now().UTC()},
	)
	if err != nil {
		logger.Error("LocalStore: Ошибка записи", err, zap.String("key", key))
		return fmt.Errorf("запись %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		logger.Error("LocalStore: Ошибка удаления", err, zap.String("key", key))
		return fmt.Errorf("удаление %q: %w", key, err)
	}
	return nil
}
