package handlers

import (
	"context"
	"taskflow/internal/focus"
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	"taskflow/internal/parser"
	"taskflow/internal/service"
	"taskflow/internal/syncer"
	"time"

	"github.com/google/uuid"
)

type TaskService interface {
	Tasks() []*task.Task
	ActiveTasks() []*task.Task
	DeletedTasks() []*task.Task
	Get(id uuid.UUID) (*task.Task, error)
	Add(ctx context.Context, nt service.NewTask) (*task.Task, error)
	AddFromDraft(ctx context.Context, d parser.Draft) (*task.Task, error)
	Update(ctx context.Context, id uuid.UUID, opts ...task.TaskOption) (*task.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) (*task.Task, error)
	AddSubtask(ctx context.Context, taskID uuid.UUID, title, description string) (*task.Task, error)
	DeleteSubtask(ctx context.Context, taskID, subtaskID uuid.UUID) (*task.Task, error)
	ToggleSubtask(ctx context.Context, taskID uuid.UUID, index int) (*task.Task, error)
	CompleteTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, category string, add bool) (*task.Task, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) (*task.Task, error)
	AddDependency(ctx context.Context, id, dependencyID uuid.UUID) (*task.Task, error)
	RemoveDependency(ctx context.Context, id, dependencyID uuid.UUID) (*task.Task, error)
}

type TimeService interface {
	Start(ctx context.Context, taskID uuid.UUID) (session.TimeSession, error)
	Pause(ctx context.Context) (*session.TimeSession, error)
	Stop(ctx context.Context) (*session.TimeSession, error)
	Current() (session.TimeSession, bool)
	ActiveTaskID() uuid.UUID
	SetActiveTask(id uuid.UUID)
	TaskTime(taskID uuid.UUID) int64
	IsTrackingTask(taskID uuid.UUID) bool
	Sessions() []session.TimeSession
	SessionsBetween(ctx context.Context, from, to time.Time) ([]session.TimeSession, error)
	TodaySessions(ctx context.Context) ([]session.TimeSession, error)
	Annotate(ctx context.Context, sessionID uuid.UUID, note string, kind session.Type) (session.TimeSession, error)
}

type SyncService interface {
	Status() syncer.Status
	Pending() []session.TimeSession
	SyncNow(ctx context.Context) error
	SetOnline(ctx context.Context, online bool) error
	PauseSync()
	ResumeSync()
}

type FocusService interface {
	Enter(ctx context.Context, taskID uuid.UUID) (session.FocusSession, error)
	Exit(ctx context.Context) (*session.FocusSession, error)
	AddInterruption(ctx context.Context) int
	Current() (session.FocusSession, bool)
	Sessions() []session.FocusSession
	Settings() focus.Settings
	UpdateSettings(ctx context.Context, patch focus.SettingsPatch) (focus.Settings, error)
}

// Authenticator - вход и выход пользователя процесса
type Authenticator interface {
	SignIn(userID uuid.UUID)
	SignOut()
	UserID(ctx context.Context) (uuid.UUID, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
