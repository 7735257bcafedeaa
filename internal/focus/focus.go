// Package focus ведёт сессии режима фокуса: вход, выход, счётчик прерываний.
// Учёт времени здесь не ведётся, при входе таймер только запускается.
package focus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"taskflow/internal/localstore"
	"taskflow/internal/logger"
	"taskflow/internal/models/session"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Timer - часть трекера времени, которая нужна режиму фокуса
type Timer interface {
	Start(ctx context.Context, taskID uuid.UUID) (session.TimeSession, error)
	IsTrackingTask(taskID uuid.UUID) bool
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

type Settings struct {
	AutoStartTimer      bool  `json:"autoStartTimer"`
	ShowSubtasks        bool  `json:"showSubtasks"`
	EnableNotifications bool  `json:"enableNotifications"`
	Theme               Theme `json:"theme"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoStartTimer:      true,
		ShowSubtasks:        true,
		EnableNotifications: true,
		Theme:               ThemeLight,
	}
}

// SettingsPatch - частичное обновление, nil-поля не меняются
type SettingsPatch struct {
	AutoStartTimer      *bool  `json:"autoStartTimer,omitempty"`
	ShowSubtasks        *bool  `json:"showSubtasks,omitempty"`
	EnableNotifications *bool  `json:"enableNotifications,omitempty"`
	Theme               *Theme `json:"theme,omitempty"`
}

func (p SettingsPatch) apply(s Settings) (Settings, error) {
	if p.AutoStartTimer != nil {
		s.AutoStartTimer = *p.AutoStartTimer
	}
	if p.ShowSubtasks != nil {
		s.ShowSubtasks = *p.ShowSubtasks
	}
	if p.EnableNotifications != nil {
		s.EnableNotifications = *p.EnableNotifications
	}
	if p.Theme != nil {
		switch *p.Theme {
		case ThemeLight, ThemeDark:
			s.Theme = *p.Theme
		default:
			return s, fmt.Errorf("неизвестная тема %q", *p.Theme)
		}
	}
	return s, nil
}

// State - то, что хранится под ключом focus-store
type State struct {
	Active        bool                   `json:"isActive"`
	CurrentTaskID uuid.UUID              `json:"currentTaskId"`
	Settings      Settings               `json:"settings"`
	Sessions      []session.FocusSession `json:"sessions"`
}

type Tracker struct {
	local localstore.Store
	timer Timer
	clock clockwork.Clock

	mtx   sync.RWMutex
	state State
}

func NewTracker(local localstore.Store, timer Timer, clock clockwork.Clock) *Tracker {
	return &Tracker{
		local: local,
		timer: timer,
		clock: clock,
		state: State{
			Settings: DefaultSettings(),
			Sessions: []session.FocusSession{},
		},
	}
}

// Load читает сохранённое состояние, отсутствие ключа - не ошибка
func (t *Tracker) Load(ctx context.Context) error {
	var stored State
	ok, err := t.local.Get(ctx, localstore.KeyFocus, &stored)
	if err != nil {
		logger.Error("Focus: Состояние не прочитано", err)
		return err
	}
	if !ok {
		return nil
	}
	if stored.Sessions == nil {
		stored.Sessions = []session.FocusSession{}
	}

	t.mtx.Lock()
	t.state = stored
	t.mtx.Unlock()
	return nil
}

// Enter открывает сессию фокуса для taskID. Открытая сессия другой задачи
// закрывается. При autoStartTimer запускается учёт времени, если он ещё не идёт.
// Ошибка запуска таймера возвращается, но сессия фокуса остаётся открытой.
func (t *Tracker) Enter(ctx context.Context, taskID uuid.UUID) (session.FocusSession, error) {
	t.mtx.Lock()
	now := t.clock.Now()
	i := t.openIndexLocked()
	if i >= 0 && t.state.Sessions[i].TaskID != taskID {
		t.state.Sessions[i].Close(now)
		i = -1
	}
	if i < 0 {
		t.state.Sessions = append(t.state.Sessions, session.FocusSession{TaskID: taskID, StartTime: now})
		i = len(t.state.Sessions) - 1
	}
	t.state.Active = true
	t.state.CurrentTaskID = taskID
	current := t.state.Sessions[i]
	autoStart := t.state.Settings.AutoStartTimer
	snapshot := t.snapshotLocked()
	t.mtx.Unlock()

	t.persist(ctx, snapshot)
	logger.Info("Focus: Вход в режим фокуса", zap.String("task_id", taskID.String()))

	if autoStart && t.timer != nil && !t.timer.IsTrackingTask(taskID) {
		if _, err := t.timer.Start(ctx, taskID); err != nil {
			logger.Warn("Focus: Таймер не запущен", zap.String("task_id", taskID.String()), zap.Error(err))
			return current, err
		}
	}
	return current, nil
}

// Exit закрывает открытую сессию. Учёт времени не останавливается.
func (t *Tracker) Exit(ctx context.Context) (*session.FocusSession, error) {
	t.mtx.Lock()
	i := t.openIndexLocked()
	if i < 0 {
		t.mtx.Unlock()
		return nil, nil
	}
	t.state.Sessions[i].Close(t.clock.Now())
	t.state.Active = false
	t.state.CurrentTaskID = uuid.Nil
	closed := t.state.Sessions[i]
	snapshot := t.snapshotLocked()
	t.mtx.Unlock()

	t.persist(ctx, snapshot)
	logger.Info("Focus: Выход из режима фокуса",
		zap.String("task_id", closed.TaskID.String()),
		zap.Int64("duration", closed.Duration),
		zap.Int("interruptions", closed.Interruptions))
	return &closed, nil
}

// AddInterruption увеличивает счётчик открытой сессии. Без открытой сессии
// ничего не делает и возвращает 0.
func (t *Tracker) AddInterruption(ctx context.Context) int {
	t.mtx.Lock()
	i := t.openIndexLocked()
	if i < 0 {
		t.mtx.Unlock()
		return 0
	}
	t.state.Sessions[i].Interruptions++
	count := t.state.Sessions[i].Interruptions
	snapshot := t.snapshotLocked()
	t.mtx.Unlock()

	t.persist(ctx, snapshot)
	return count
}

func (t *Tracker) Current() (session.FocusSession, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	i := t.openIndexLocked()
	if i < 0 {
		return session.FocusSession{}, false
	}
	return t.state.Sessions[i], true
}

func (t *Tracker) Active() bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.state.Active
}

func (t *Tracker) Sessions() []session.FocusSession {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return slices.Clone(t.state.Sessions)
}

func (t *Tracker) Settings() Settings {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.state.Settings
}

func (t *Tracker) UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error) {
	t.mtx.Lock()
	updated, err := patch.apply(t.state.Settings)
	if err != nil {
		current := t.state.Settings
		t.mtx.Unlock()
		return current, err
	}
	t.state.Settings = updated
	snapshot := t.snapshotLocked()
	t.mtx.Unlock()

	t.persist(ctx, snapshot)
	return updated, nil
}

func (t *Tracker) openIndexLocked() int {
	return slices.IndexFunc(t.state.Sessions, session.FocusSession.IsOpen)
}

func (t *Tracker) snapshotLocked() State {
	s := t.state
	s.Sessions = slices.Clone(t.state.Sessions)
	return s
}

// persist: ошибка локального хранилища не отменяет изменение в памяти
func (t *Tracker) persist(ctx context.Context, s State) {
	if err := t.local.Set(ctx, localstore.KeyFocus, s); err != nil {
		logger.Warn("Focus: Состояние не сохранено", zap.Error(err))
	}
}
