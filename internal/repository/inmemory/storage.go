package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"taskflow/internal/logger"
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage - удалённое хранилище в памяти процесса (режим разработки и тесты).
// SetFailure позволяет имитировать недоступность сети.
type Storage struct {
	mtx      *sync.RWMutex
	tasks    map[uuid.UUID]*task.Task
	sessions map[uuid.UUID]session.TimeSession
	failure  error
	upserts  int
}

func NewStorage() *Storage {
	return &Storage{
		mtx:      &sync.RWMutex{},
		tasks:    make(map[uuid.UUID]*task.Task),
		sessions: make(map[uuid.UUID]session.TimeSession),
	}
}

// SetFailure заставляет все последующие вызовы возвращать err (nil - восстановить)
func (s *Storage) SetFailure(err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.failure = err
}

// UpsertCalls - число вызовов UpsertSessions, дошедших до хранилища
func (s *Storage) UpsertCalls() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.upserts
}

func (s *Storage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failure != nil {
		return fmt.Errorf("%w: %w", repo.ErrUnavailable, s.failure)
	}
	return nil
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.check(ctx)
}

func (s *Storage) ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	res := []*task.Task{}
	for _, t := range s.tasks {
		if t.UserID != userID || t.DeletedAt != nil {
			continue
		}
		res = append(res, t.Clone())
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// GetTask возвращает задачу вместе с удалёнными (для проверок в тестах)
func (s *Storage) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *Storage) CreateTask(ctx context.Context, t *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("задача %s уже существует", t.ID)
	}
	stored := t.Clone()
	stored.Subtasks = []task.Subtask{}
	s.tasks[t.ID] = stored
	return nil
}

func (s *Storage) UpdateTask(ctx context.Context, t *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	existing, ok := s.tasks[t.ID]
	if !ok {
		return repo.ErrNotFound
	}
	updated := t.Clone()
	updated.Subtasks = existing.Subtasks
	updated.DeletedAt = existing.DeletedAt
	s.tasks[t.ID] = updated
	return nil
}

func (s *Storage) SoftDeleteTask(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	t, ok := s.tasks[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.DeletedAt = &at
	return nil
}

func (s *Storage) RestoreTask(ctx context.Context, id uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	t, ok := s.tasks[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.DeletedAt = nil
	return nil
}

func (s *Storage) PurgeTask(ctx context.Context, id uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.tasks, id)
	logger.Debug("Repository: Задача удалена окончательно", zap.String("task_id", id.String()))
	return nil
}

func (s *Storage) CreateSubtasks(ctx context.Context, taskID uuid.UUID, subtasks []task.Subtask) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return repo.ErrNotFound
	}
	t.Subtasks = append(t.Subtasks, subtasks...)
	return nil
}

func (s *Storage) UpdateSubtask(ctx context.Context, taskID uuid.UUID, subtask task.Subtask) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return repo.ErrNotFound
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subtask.ID {
			t.Subtasks[i] = subtask
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *Storage) DeleteSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	t, ok := s.tasks[taskID]
	if !ok {
		return repo.ErrNotFound
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subtaskID {
			t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

// CompleteTask меняет задачу и её подзадачи под одной блокировкой
func (s *Storage) CompleteTask(ctx context.Context, t *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	existing, ok := s.tasks[t.ID]
	if !ok {
		return repo.ErrNotFound
	}
	updated := t.Clone()
	updated.Subtasks = slices.Clone(existing.Subtasks)
	updated.DeletedAt = existing.DeletedAt
	for i := range updated.Subtasks {
		updated.Subtasks[i].Completed = true
	}
	s.tasks[t.ID] = updated
	return nil
}

func (s *Storage) CreateSession(ctx context.Context, ts *session.TimeSession) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	ts.ID = uuid.New()
	s.sessions[ts.ID] = *ts
	return nil
}

func (s *Storage) UpdateSession(ctx context.Context, ts *session.TimeSession) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.sessions[ts.ID]; !ok {
		return repo.ErrNotFound
	}
	s.sessions[ts.ID] = *ts
	return nil
}

func (s *Storage) UpsertSessions(ctx context.Context, sessions []session.TimeSession) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.upserts++
	for _, ts := range sessions {
		if ts.ID == uuid.Nil {
			return fmt.Errorf("сессия без id для задачи %s", ts.TaskID)
		}
		s.sessions[ts.ID] = ts
	}
	return nil
}

func (s *Storage) ListSessions(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]session.TimeSession, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	res := []session.TimeSession{}
	for _, ts := range s.sessions {
		if ts.UserID != userID {
			continue
		}
		if !from.IsZero() && ts.StartTime.Before(from) {
			continue
		}
		if !to.IsZero() && !ts.StartTime.Before(to) {
			continue
		}
		res = append(res, ts)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].StartTime.Before(res[j].StartTime)
	})
	return res, nil
}
