// Package repository описывает контракт удалённого хранилища задач и сессий.
package repository

import (
	"context"
	"errors"
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("запись не найдена")
	ErrNotAuthenticated = errors.New("пользователь не аутентифицирован")
	ErrUnavailable      = errors.New("хранилище недоступно")
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type TaskRepository interface {
	HealthChecker
	// ListTasks возвращает задачи пользователя без deleted_at, новые первыми,
	// подзадачи упорядочены по position
	ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error)
	CreateTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error
	SoftDeleteTask(ctx context.Context, id uuid.UUID, at time.Time) error
	RestoreTask(ctx context.Context, id uuid.UUID) error
	PurgeTask(ctx context.Context, id uuid.UUID) error

	CreateSubtasks(ctx context.Context, taskID uuid.UUID, subtasks []task.Subtask) error
	UpdateSubtask(ctx context.Context, taskID uuid.UUID, subtask task.Subtask) error
	DeleteSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) error
	// CompleteTask атомарно сохраняет задачу и завершает все её подзадачи
	CompleteTask(ctx context.Context, t *task.Task) error
}

type SessionRepository interface {
	HealthChecker
	// CreateSession назначает ID и сохраняет строку
	CreateSession(ctx context.Context, s *session.TimeSession) error
	UpdateSession(ctx context.Context, s *session.TimeSession) error
	// UpsertSessions пишет все строки одним запросом, конфликт по id
	UpsertSessions(ctx context.Context, sessions []session.TimeSession) error
	// ListSessions фильтрует по пользователю и start_time в [from, to).
	// Нулевые from/to означают отсутствие границы.
	ListSessions(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]session.TimeSession, error)
}

// Remote - полный удалённый коллаборатор
type Remote interface {
	TaskRepository
	SessionRepository
}
