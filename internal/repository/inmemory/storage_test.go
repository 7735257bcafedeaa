package inmemory_test

import (
	"context"
	"errors"
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	"taskflow/internal/repository"
	"taskflow/internal/repository/inmemory"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(userID uuid.UUID, title string, createdAt time.Time) *task.Task {
	return &task.Task{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Category:  []string{"general"},
		Priority:  task.PriorityMedium,
		Status:    task.StatusTodo,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// TestStorage_ListTasks тестирует фильтрацию и порядок задач
func TestStorage_ListTasks(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewStorage()
	user := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := newTask(user, "older", base)
	newer := newTask(user, "newer", base.Add(time.Hour))
	foreign := newTask(uuid.New(), "foreign", base)
	deleted := newTask(user, "deleted", base)

	for _, tk := range []*task.Task{older, newer, foreign, deleted} {
		require.NoError(t, storage.CreateTask(ctx, tk))
	}
	require.NoError(t, storage.SoftDeleteTask(ctx, deleted.ID, base))

	tasks, err := storage.ListTasks(ctx, user)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "newer", tasks[0].Title)
	assert.Equal(t, "older", tasks[1].Title)
}

// TestStorage_Subtasks тестирует операции с подзадачами
func TestStorage_Subtasks(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewStorage()
	tk := newTask(uuid.New(), "parent", time.Now())
	require.NoError(t, storage.CreateTask(ctx, tk))

	a := task.Subtask{ID: uuid.New(), Title: "a", Position: 0}
	b := task.Subtask{ID: uuid.New(), Title: "a", Position: 1}
	require.NoError(t, storage.CreateSubtasks(ctx, tk.ID, []task.Subtask{a, b}))

	b.Completed = true
	require.NoError(t, storage.UpdateSubtask(ctx, tk.ID, b))

	got, err := storage.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	// одинаковые названия различаются по id
	assert.False(t, got.Subtasks[0].Completed)
	assert.True(t, got.Subtasks[1].Completed)

	require.NoError(t, storage.DeleteSubtask(ctx, tk.ID, a.ID))
	got, err = storage.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	require.Len(t, got.Subtasks, 1)
	assert.Equal(t, b.ID, got.Subtasks[0].ID)

	err = storage.DeleteSubtask(ctx, tk.ID, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

// TestStorage_CompleteTask тестирует завершение задачи вместе с подзадачами
func TestStorage_CompleteTask(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewStorage()
	tk := newTask(uuid.New(), "parent", time.Now())
	require.NoError(t, storage.CreateTask(ctx, tk))
	require.NoError(t, storage.CreateSubtasks(ctx, tk.ID, []task.Subtask{
		{ID: uuid.New(), Title: "a", Position: 0},
		{ID: uuid.New(), Title: "b", Position: 1},
	}))

	done, err := storage.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	done.Status = task.StatusCompleted

	// при недоступности не меняется ни задача, ни подзадачи
	storage.SetFailure(errors.New("network down"))
	assert.ErrorIs(t, storage.CompleteTask(ctx, done), repository.ErrUnavailable)
	storage.SetFailure(nil)

	got, err := storage.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusTodo, got.Status)
	for _, st := range got.Subtasks {
		assert.False(t, st.Completed)
	}

	require.NoError(t, storage.CompleteTask(ctx, done))
	got, err = storage.GetTask(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	require.Len(t, got.Subtasks, 2)
	for _, st := range got.Subtasks {
		assert.True(t, st.Completed)
	}

	ghost := newTask(uuid.New(), "ghost", time.Now())
	assert.ErrorIs(t, storage.CompleteTask(ctx, ghost), repository.ErrNotFound)
}

// TestStorage_UpsertSessionsIsIdempotent тестирует upsert по id
func TestStorage_UpsertSessionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewStorage()
	user := uuid.New()
	start := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	s := session.TimeSession{TaskID: uuid.New(), UserID: user, StartTime: start}
	require.NoError(t, storage.CreateSession(ctx, &s))
	require.NotEqual(t, uuid.Nil, s.ID)

	s.Close(start.Add(time.Minute))
	batch := []session.TimeSession{s}
	require.NoError(t, storage.UpsertSessions(ctx, batch))
	require.NoError(t, storage.UpsertSessions(ctx, batch))

	sessions, err := storage.ListSessions(ctx, user, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(60), sessions[0].Duration)
	assert.Equal(t, 2, storage.UpsertCalls())
}

// TestStorage_ListSessionsRange тестирует фильтр по диапазону дат
func TestStorage_ListSessionsRange(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewStorage()
	user := uuid.New()
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, offset := range []time.Duration{-time.Hour, time.Hour, 25 * time.Hour} {
		s := session.TimeSession{TaskID: uuid.New(), UserID: user, StartTime: day.Add(offset)}
		require.NoError(t, storage.CreateSession(ctx, &s))
	}

	sessions, err := storage.ListSessions(ctx, user, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, day.Add(time.Hour), sessions[0].StartTime)
}

// TestStorage_SetFailure тестирует имитацию недоступности
func TestStorage_SetFailure(t *testing.T) {
	ctx := context.Background()
	storage := inmemory.NewStorage()
	storage.SetFailure(errors.New("network down"))

	err := storage.HealthCheck(ctx)
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	err = storage.CreateTask(ctx, newTask(uuid.New(), "x", time.Now()))
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	storage.SetFailure(nil)
	assert.NoError(t, storage.HealthCheck(ctx))
}
