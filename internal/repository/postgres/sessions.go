package postgres

import (
	"context"
	"fmt"
	"taskflow/internal/logger"
	"taskflow/internal/models/session"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const sessionColumns = `id, task_id, user_id, start_time, end_time, duration, note, session_type, updated_at`

func (s *Storage) CreateSession(ctx context.Context, ts *session.TimeSession) error {
	start := time.Now()
	defer observe("CreateSession", start)

	query := `INSERT INTO time_sessions
				(task_id, user_id, start_time, end_time, duration, note, session_type, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		ts.TaskID, ts.UserID, ts.StartTime, ts.EndTime, ts.Duration, ts.Note, string(ts.Type), ts.UpdatedAt,
	).Scan(&ts.ID)
	if err != nil {
		logger.Error("Repository: Не удалось создать сессию", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("создание сессии: %w", err)
	}
	return nil
}

func (s *Storage) UpdateSession(ctx context.Context, ts *session.TimeSession) error {
	start := time.Now()
	defer observe("UpdateSession", start)

	query := `UPDATE time_sessions
			SET end_time = $1,
				duration = $2,
				note = $3,
				session_type = $4,
				updated_at = $5
			WHERE id = $6`

	tag, err := s.pool.Exec(ctx, query, ts.EndTime, ts.Duration, ts.Note, string(ts.Type), ts.UpdatedAt, ts.ID)
	if err != nil {
		logger.Error("Repository: Не удалось обновить сессию", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("обновление сессии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// UpsertSessions отправляет пакет одним обращением к серверу в одной транзакции.
// Повторная отправка тех же строк не создаёт дублей.
func (s *Storage) UpsertSessions(ctx context.Context, sessions []session.TimeSession) error {
	if len(sessions) == 0 {
		return nil
	}
	start := time.Now()
	defer observe("UpsertSessions", start)

	query := `INSERT INTO time_sessions (` + sessionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE
			SET end_time = EXCLUDED.end_time,
				duration = EXCLUDED.duration,
				note = EXCLUDED.note,
				session_type = EXCLUDED.session_type,
				updated_at = EXCLUDED.updated_at`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ts := range sessions {
			if ts.ID == uuid.Nil {
				return fmt.Errorf("сессия без id для задачи %s", ts.TaskID)
			}
			batch.Queue(query,
				ts.ID, ts.TaskID, ts.UserID, ts.StartTime, ts.EndTime, ts.Duration, ts.Note, string(ts.Type), ts.UpdatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		logger.Error("Repository: Пакетная запись сессий", err,
			zap.Int("count", len(sessions)), zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("пакетная запись сессий: %w", err)
	}
	return nil
}

func (s *Storage) ListSessions(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]session.TimeSession, error) {
	start := time.Now()
	defer observe("ListSessions", start)

	query := `SELECT ` + sessionColumns + `
			FROM time_sessions
			WHERE user_id = $1
				AND ($2::timestamptz IS NULL OR start_time >= $2)
				AND ($3::timestamptz IS NULL OR start_time < $3)
			ORDER BY start_time`

	rows, err := s.pool.Query(ctx, query, userID, bound(from), bound(to))
	if err != nil {
		logger.Error("Repository: Не удалось получить сессии", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение сессий: %w", err)
	}
	defer rows.Close()

	res := []session.TimeSession{}
	for rows.Next() {
		var ts session.TimeSession
		var kind string
		err := rows.Scan(&ts.ID, &ts.TaskID, &ts.UserID, &ts.StartTime, &ts.EndTime,
			&ts.Duration, &ts.Note, &kind, &ts.UpdatedAt)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования сессии", err)
			return nil, fmt.Errorf("сканирование сессии: %w", err)
		}
		ts.Type = session.Type(kind)
		res = append(res, ts)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return res, nil
}

// нулевое время - отсутствие границы
func bound(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
