// Package postgres - удалённое хранилище задач и сессий поверх PostgreSQL (pgx).
package postgres

import (
	"context"
	"fmt"
	"taskflow/internal/logger"
	repo "taskflow/internal/repository"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const slowQuery = 100 * time.Millisecond

var _ repo.Remote = (*Storage)(nil)

type Storage struct {
	pool *pgxpool.Pool
}

// PoolConfig - размеры пула, нулевые поля заменяются значениями по умолчанию
type PoolConfig struct {
	MaxConns    int32
	MinConns    int32
	IdleTimeout time.Duration
}

func New(ctx context.Context, connString string, poolCfg PoolConfig) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.IdleTimeout > 0 {
		config.MaxConnIdleTime = poolCfg.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		logger.Debug("Repository: Неудачная проверка ping", zap.Error(err))
		return fmt.Errorf("%w: %w", repo.ErrUnavailable, err)
	}
	return nil
}

// observe пишет предупреждение о медленном запросе
func observe(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленный запрос", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}
