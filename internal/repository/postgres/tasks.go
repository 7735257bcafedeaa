package postgres

import (
	"context"
	"errors"
	"fmt"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
)

func estimateArgs(e *task.TimeEstimate) (*int, *string) {
	if e == nil {
		return nil, nil
	}
	v, u := e.Value, string(e.Unit)
	return &v, &u
}

func estimateFrom(value *int, unit *string) *task.TimeEstimate {
	if value == nil || unit == nil {
		return nil
	}
	return &task.TimeEstimate{Value: *value, Unit: task.EstimateUnit(*unit)}
}

func dependencyArgs(deps []uuid.UUID) []string {
	res := make([]string, 0, len(deps))
	for _, d := range deps {
		res = append(res, d.String())
	}
	return res
}

func dependenciesFrom(raw []string) []uuid.UUID {
	res := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			logger.Warn("Repository: Некорректная зависимость задачи", zap.String("value", r))
			continue
		}
		res = append(res, id)
	}
	return res
}

// ListTasks - один запрос с LEFT JOIN подзадач, сборка в порядке выдачи
func (s *Storage) ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	start := time.Now()
	defer observe("ListTasks", start)

	query := `SELECT
				t.id, t.user_id, t.title, t.description, t.category, t.tags,
				t.priority, t.status, t.progress, t.due_date,
				t.time_estimate_value, t.time_estimate_unit, t.time_spent, t.dependencies,
				t.created_at, t.updated_at, t.completed_at, t.deleted_at,
				s.id, s.title, s.description, s.completed,
				s.time_estimate_value, s.time_estimate_unit, s.position
			FROM tasks t
			LEFT JOIN subtasks s ON s.task_id = t.id
			WHERE t.user_id = $1 AND t.deleted_at IS NULL
			ORDER BY t.created_at DESC, t.id, s.position, s.created_at`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	index := make(map[uuid.UUID]*task.Task)

	for rows.Next() {
		var (
			t                 task.Task
			estValue          *int
			estUnit           *string
			deps              []string
			subID             pgtype.UUID
			subTitle, subDesc *string
			subCompleted      *bool
			subEstValue       *int
			subEstUnit        *string
			subPosition       *int
		)

		err := rows.Scan(
			&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &t.Tags,
			&t.Priority, &t.Status, &t.Progress, &t.DueDate,
			&estValue, &estUnit, &t.TimeSpent, &deps,
			&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.DeletedAt,
			&subID, &subTitle, &subDesc, &subCompleted,
			&subEstValue, &subEstUnit, &subPosition,
		)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования задачи", err)
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}

		current, ok := index[t.ID]
		if !ok {
			t.TimeEstimate = estimateFrom(estValue, estUnit)
			t.Dependencies = dependenciesFrom(deps)
			t.Subtasks = []task.Subtask{}
			current = &t
			index[t.ID] = current
			tasks = append(tasks, current)
		}

		if !subID.Valid {
			continue
		}
		st := task.Subtask{
			ID:           uuid.UUID(subID.Bytes),
			TimeEstimate: estimateFrom(subEstValue, subEstUnit),
		}
		if subTitle != nil {
			st.Title = *subTitle
		}
		if subDesc != nil {
			st.Description = *subDesc
		}
		if subCompleted != nil {
			st.Completed = *subCompleted
		}
		if subPosition != nil {
			st.Position = *subPosition
		}
		current.Subtasks = append(current.Subtasks, st)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	return tasks, nil
}

func (s *Storage) CreateTask(ctx context.Context, t *task.Task) error {
	start := time.Now()
	defer observe("CreateTask", start)

	query := `INSERT INTO tasks
				(id, user_id, title, description, category, tags, priority, status, progress,
				 due_date, time_estimate_value, time_estimate_unit, time_spent, dependencies,
				 created_at, updated_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	estValue, estUnit := estimateArgs(t.TimeEstimate)
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.Title, t.Description, t.Category, t.Tags,
		t.Priority, t.Status, t.Progress,
		t.DueDate, estValue, estUnit, t.TimeSpent, dependencyArgs(t.Dependencies),
		t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}
	return nil
}

const (
	updateTaskQuery = `UPDATE tasks
			SET title = $1,
				description = $2,
				category = $3,
				tags = $4,
				priority = $5,
				status = $6,
				progress = $7,
				due_date = $8,
				time_estimate_value = $9,
				time_estimate_unit = $10,
				time_spent = $11,
				dependencies = $12,
				updated_at = $13,
				completed_at = $14
			WHERE id = $15`

	completeSubtasksQuery = `UPDATE subtasks SET completed = TRUE, updated_at = NOW() WHERE task_id = $1`
)

func updateTaskArgs(t *task.Task) []any {
	estValue, estUnit := estimateArgs(t.TimeEstimate)
	return []any{
		t.Title, t.Description, t.Category, t.Tags, t.Priority, t.Status, t.Progress,
		t.DueDate, estValue, estUnit, t.TimeSpent, dependencyArgs(t.Dependencies),
		t.UpdatedAt, t.CompletedAt, t.ID,
	}
}

func (s *Storage) UpdateTask(ctx context.Context, t *task.Task) error {
	start := time.Now()
	defer observe("UpdateTask", start)

	tag, err := s.pool.Exec(ctx, updateTaskQuery, updateTaskArgs(t)...)
	if err != nil {
		logger.Error("Repository: Не удалось обновить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("обновление задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// мягкое удаление задачи
func (s *Storage) SoftDeleteTask(ctx context.Context, id uuid.UUID, at time.Time) error {
	start := time.Now()
	defer observe("SoftDeleteTask", start)

	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET deleted_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		logger.Error("Repository: Мягкое удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("мягкое удаление: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) RestoreTask(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer observe("RestoreTask", start)

	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: Восстановление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("восстановление задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// полное удаление из БД, подзадачи удаляются каскадом
func (s *Storage) PurgeTask(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	defer observe("PurgeTask", start)

	if _, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id); err != nil {
		logger.Error("Repository: Полное удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("полное удаление: %w", err)
	}
	return nil
}

// CreateSubtasks вставляет подзадачи в одной транзакции
func (s *Storage) CreateSubtasks(ctx context.Context, taskID uuid.UUID, subtasks []task.Subtask) error {
	if len(subtasks) == 0 {
		return nil
	}
	start := time.Now()
	defer observe("CreateSubtasks", start)

	query := `INSERT INTO subtasks
				(id, task_id, title, description, completed, time_estimate_value, time_estimate_unit, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, st := range subtasks {
			estValue, estUnit := estimateArgs(st.TimeEstimate)
			batch.Queue(query, st.ID, taskID, st.Title, st.Description, st.Completed, estValue, estUnit, st.Position)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		logger.Error("Repository: Не удалось добавить подзадачи", err,
			zap.String("task_id", taskID.String()), zap.Int("count", len(subtasks)))
		return fmt.Errorf("добавление подзадач: %w", err)
	}
	return nil
}

func (s *Storage) UpdateSubtask(ctx context.Context, taskID uuid.UUID, st task.Subtask) error {
	start := time.Now()
	defer observe("UpdateSubtask", start)

	query := `UPDATE subtasks
			SET title = $1,
				description = $2,
				completed = $3,
				time_estimate_value = $4,
				time_estimate_unit = $5,
				position = $6,
				updated_at = NOW()
			WHERE id = $7 AND task_id = $8`

	estValue, estUnit := estimateArgs(st.TimeEstimate)
	tag, err := s.pool.Exec(ctx, query, st.Title, st.Description, st.Completed, estValue, estUnit, st.Position, st.ID, taskID)
	if err != nil {
		logger.Error("Repository: Не удалось обновить подзадачу", err)
		return fmt.Errorf("обновление подзадачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) error {
	start := time.Now()
	defer observe("DeleteSubtask", start)

	tag, err := s.pool.Exec(ctx, `DELETE FROM subtasks WHERE id = $1 AND task_id = $2`, subtaskID, taskID)
	if err != nil {
		logger.Error("Repository: Не удалось удалить подзадачу", err)
		return fmt.Errorf("удаление подзадачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// CompleteTask сохраняет завершённую задачу и завершает её подзадачи в одной транзакции
func (s *Storage) CompleteTask(ctx context.Context, t *task.Task) error {
	start := time.Now()
	defer observe("CompleteTask", start)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateTaskQuery, updateTaskArgs(t)...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return repo.ErrNotFound
		}
		_, err = tx.Exec(ctx, completeSubtasksQuery, t.ID)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if err != nil {
		logger.Error("Repository: Не удалось завершить задачу", err,
			zap.String("task_id", t.ID.String()), zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("завершение задачи: %w", err)
	}
	return nil
}
