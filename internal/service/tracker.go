package service

import (
	"context"
	"slices"
	"sync"
	"taskflow/internal/auth"
	"taskflow/internal/localstore"
	"taskflow/internal/logger"
	"taskflow/internal/models/session"
	repo "taskflow/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SessionSyncer - менеджер синхронизации с точки зрения трекера
type SessionSyncer interface {
	SyncSession(ctx context.Context, s session.TimeSession) error
	Online() bool
	Watch(source session.Source)
	// Unwatch ждёт идущую запись снимка не дольше ctx
	Unwatch(ctx context.Context) error
}

// TimeTracker - машина состояний учёта времени: Idle или Tracking(task).
// Открыта не более одной сессии.
type TimeTracker struct {
	repo     repo.SessionRepository
	identity auth.Identity
	local    localstore.Store
	syncer   SessionSyncer
	clock    clockwork.Clock
	timeout  time.Duration

	op         sync.Mutex
	mtx        sync.RWMutex
	current    *session.TimeSession
	history    []session.TimeSession
	activeTask uuid.UUID
}

func NewTimeTracker(
	r repo.SessionRepository,
	identity auth.Identity,
	local localstore.Store,
	syncer SessionSyncer,
	clock clockwork.Clock,
	requestTimeout time.Duration,
) *TimeTracker {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &TimeTracker{
		repo:     r,
		identity: identity,
		local:    local,
		syncer:   syncer,
		clock:    clock,
		timeout:  requestTimeout,
		history:  []session.TimeSession{},
	}
}

func (t *TimeTracker) userID(ctx context.Context) (uuid.UUID, error) {
	id, err := t.identity.UserID(ctx)
	if err != nil {
		return uuid.Nil, newNotAuthenticated(err)
	}
	return id, nil
}

// Start открывает сессию для taskID. Открытая сессия другой задачи
// сначала полностью закрывается. Повторный Start той же задачи ничего не делает.
func (t *TimeTracker) Start(ctx context.Context, taskID uuid.UUID) (session.TimeSession, error) {
	userID, err := t.userID(ctx)
	if err != nil {
		return session.TimeSession{}, err
	}

	t.op.Lock()
	defer t.op.Unlock()

	if cur, ok := t.Current(); ok {
		if cur.TaskID == taskID {
			return cur, nil
		}
		if _, err := t.closeLocked(ctx, true); err != nil {
			return session.TimeSession{}, err
		}
	}

	now := t.clock.Now()
	ts := session.TimeSession{
		TaskID:    taskID,
		UserID:    userID,
		StartTime: now,
		Type:      session.TypeWork,
		UpdatedAt: now,
	}

	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// создание строки - условие входа в Tracking
	if err := t.repo.CreateSession(rctx, &ts); err != nil {
		logger.Error("Service: Не удалось начать сессию", err, zap.String("task_id", taskID.String()))
		return session.TimeSession{}, NewRemoteWriteFailed("start", err)
	}

	t.mtx.Lock()
	t.current = &ts
	t.activeTask = taskID
	t.mtx.Unlock()

	if err := t.local.Set(ctx, localstore.ActiveSessionKey(userID), ts); err != nil {
		logger.Warn("Service: Открытая сессия не сохранена локально", zap.Error(err))
	}
	if t.syncer != nil {
		t.syncer.Watch(t.openSnapshot)
	}

	logger.Info("Service: Учёт времени начат",
		zap.String("task_id", taskID.String()), zap.String("session_id", ts.ID.String()))
	return ts, nil
}

// Pause закрывает сессию, активная задача остаётся (можно продолжить)
func (t *TimeTracker) Pause(ctx context.Context) (*session.TimeSession, error) {
	return t.close(ctx, false)
}

// Stop закрывает сессию и сбрасывает активную задачу
func (t *TimeTracker) Stop(ctx context.Context) (*session.TimeSession, error) {
	return t.close(ctx, true)
}

func (t *TimeTracker) close(ctx context.Context, clearActive bool) (*session.TimeSession, error) {
	if _, err := t.userID(ctx); err != nil {
		return nil, err
	}

	t.op.Lock()
	defer t.op.Unlock()

	if !t.IsTracking() {
		if clearActive {
			t.SetActiveTask(uuid.Nil)
		}
		return nil, nil
	}
	closed, err := t.closeLocked(ctx, clearActive)
	if err != nil {
		return nil, err
	}
	return &closed, nil
}

// closeLocked закрывает открытую сессию. Если запись не удалась или сеть
// недоступна, сессия всё равно закрывается локально и уходит в очередь синхронизации.
func (t *TimeTracker) closeLocked(ctx context.Context, clearActive bool) (session.TimeSession, error) {
	// локальные записи не должны срываться из-за истёкшего запроса
	lctx := context.WithoutCancel(ctx)

	var writeErr error
	if t.syncer != nil {
		if err := t.syncer.Unwatch(ctx); err != nil {
			// снимок ещё пишется: закрытие уйдёт через очередь после него
			writeErr = err
		}
	}

	t.mtx.RLock()
	closed := *t.current
	t.mtx.RUnlock()
	closed.Close(t.clock.Now())

	switch {
	case writeErr != nil:
	case t.syncer != nil && !t.syncer.Online():
		writeErr = repo.ErrUnavailable
	default:
		rctx, cancel := context.WithTimeout(ctx, t.timeout)
		writeErr = t.repo.UpdateSession(rctx, &closed)
		cancel()
	}

	var result error
	if writeErr != nil {
		logger.Warn("Service: Закрытие сессии не подтверждено, ставим в очередь",
			zap.String("session_id", closed.ID.String()), zap.Error(writeErr))
		if t.syncer == nil {
			result = NewRemoteWriteFailed("stop", writeErr)
		} else if err := t.syncer.SyncSession(lctx, closed); err != nil {
			logger.Error("Service: Сессия не поставлена в очередь", err)
		}
	}

	t.mtx.Lock()
	t.history = append(t.history, closed)
	t.current = nil
	if clearActive {
		t.activeTask = uuid.Nil
	}
	t.mtx.Unlock()

	if err := t.local.Remove(lctx, localstore.ActiveSessionKey(closed.UserID)); err != nil {
		logger.Warn("Service: Открытая сессия не удалена локально", zap.Error(err))
	}

	logger.Info("Service: Сессия закрыта",
		zap.String("task_id", closed.TaskID.String()), zap.Int64("duration", closed.Duration))
	return closed, result
}

// TaskTime - секунды по задаче: закрытые сессии плюс текущая открытая.
// Считается из памяти при каждом вызове.
func (t *TimeTracker) TaskTime(taskID uuid.UUID) int64 {
	now := t.clock.Now()

	t.mtx.RLock()
	defer t.mtx.RUnlock()

	var total int64
	for _, s := range t.history {
		if s.TaskID == taskID {
			total += s.Duration
		}
	}
	if t.current != nil && t.current.TaskID == taskID {
		total += t.current.Elapsed(now)
	}
	return total
}

func (t *TimeTracker) openSnapshot() (session.TimeSession, bool) {
	now := t.clock.Now()
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if t.current == nil {
		return session.TimeSession{}, false
	}
	snap := *t.current
	snap.Duration = snap.Elapsed(now)
	snap.UpdatedAt = now
	return snap, true
}

func (t *TimeTracker) Current() (session.TimeSession, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if t.current == nil {
		return session.TimeSession{}, false
	}
	return *t.current, true
}

func (t *TimeTracker) IsTracking() bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.current != nil
}

// IsTrackingTask - открыта ли сессия именно для taskID
func (t *TimeTracker) IsTrackingTask(taskID uuid.UUID) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.current != nil && t.current.TaskID == taskID
}

func (t *TimeTracker) ActiveTaskID() uuid.UUID {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.activeTask
}

func (t *TimeTracker) SetActiveTask(id uuid.UUID) {
	t.mtx.Lock()
	t.activeTask = id
	t.mtx.Unlock()
}

// Sessions - закрытые сессии в порядке закрытия
func (t *TimeTracker) Sessions() []session.TimeSession {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return slices.Clone(t.history)
}

// Annotate меняет заметку и тип закрытой сессии
func (t *TimeTracker) Annotate(ctx context.Context, sessionID uuid.UUID, note string, kind session.Type) (session.TimeSession, error) {
	if _, err := t.userID(ctx); err != nil {
		return session.TimeSession{}, err
	}
	switch kind {
	case "", session.TypeWork, session.TypeBreak, session.TypeFocus:
	default:
		return session.TimeSession{}, NewValidationError("session_type", "неизвестный тип сессии")
	}

	t.op.Lock()
	defer t.op.Unlock()

	t.mtx.RLock()
	i := slices.IndexFunc(t.history, func(s session.TimeSession) bool { return s.ID == sessionID })
	var updated session.TimeSession
	if i >= 0 {
		updated = t.history[i]
	}
	t.mtx.RUnlock()
	if i < 0 {
		logger.Warn("Service: Сессия не найдена", zap.String("session_id", sessionID.String()))
		return session.TimeSession{}, NewNotFound("сессия", sessionID.String())
	}

	updated.Note = note
	updated.Type = kind
	updated.UpdatedAt = t.clock.Now()

	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.repo.UpdateSession(rctx, &updated); err != nil {
		logger.Error("Service: Заметка не сохранена", err, zap.String("session_id", sessionID.String()))
		return session.TimeSession{}, NewRemoteWriteFailed("annotate", err)
	}

	t.mtx.Lock()
	t.history[i] = updated
	t.mtx.Unlock()
	return updated, nil
}

// LoadHistory подмешивает закрытые сессии пользователя из хранилища.
// Локальные сессии, которых ещё нет в хранилище (очередь), сохраняются.
func (t *TimeTracker) LoadHistory(ctx context.Context) error {
	userID, err := t.userID(ctx)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	remote, err := t.repo.ListSessions(rctx, userID, time.Time{}, time.Time{})
	if err != nil {
		logger.Error("Service: История сессий не загружена", err)
		return NewRemoteWriteFailed("load_history", err)
	}

	t.op.Lock()
	defer t.op.Unlock()
	t.mtx.Lock()
	defer t.mtx.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(remote))
	history := make([]session.TimeSession, 0, len(remote)+len(t.history))
	for _, s := range remote {
		if s.IsOpen() {
			continue
		}
		seen[s.ID] = struct{}{}
		history = append(history, s)
	}
	for _, s := range t.history {
		if s.UserID != userID {
			continue
		}
		if _, ok := seen[s.ID]; !ok {
			history = append(history, s)
		}
	}
	t.history = history
	return nil
}

// SessionsBetween - сессии пользователя с началом в [from, to)
func (t *TimeTracker) SessionsBetween(ctx context.Context, from, to time.Time) ([]session.TimeSession, error) {
	userID, err := t.userID(ctx)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	sessions, err := t.repo.ListSessions(rctx, userID, from, to)
	if err != nil {
		logger.Error("Service: Сессии за период не получены", err)
		return nil, NewRemoteWriteFailed("list_sessions", err)
	}
	return sessions, nil
}

func (t *TimeTracker) TodaySessions(ctx context.Context) ([]session.TimeSession, error) {
	now := t.clock.Now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return t.SessionsBetween(ctx, from, from.AddDate(0, 0, 1))
}

// Rehydrate восстанавливает открытую сессию после перезапуска процесса
// или повторного входа. Сессия другого пользователя не трогается.
func (t *TimeTracker) Rehydrate(ctx context.Context) error {
	userID, err := t.userID(ctx)
	if err != nil {
		return err
	}

	t.op.Lock()
	defer t.op.Unlock()

	var ts session.TimeSession
	ok, err := t.local.Get(ctx, localstore.ActiveSessionKey(userID), &ts)
	if err != nil {
		logger.Error("Service: Открытая сессия не прочитана", err)
		return err
	}
	if !ok {
		return nil
	}
	if !ts.IsOpen() || ts.ID == uuid.Nil {
		return t.local.Remove(ctx, localstore.ActiveSessionKey(userID))
	}
	if ts.UserID != userID {
		logger.Info("Service: Открытая сессия принадлежит другому пользователю",
			zap.String("session_id", ts.ID.String()))
		return nil
	}
	if t.IsTracking() {
		return nil
	}

	t.mtx.Lock()
	t.current = &ts
	t.activeTask = ts.TaskID
	t.mtx.Unlock()

	if t.syncer != nil {
		t.syncer.Watch(t.openSnapshot)
	}
	logger.Info("Service: Открытая сессия восстановлена",
		zap.String("session_id", ts.ID.String()), zap.Time("start", ts.StartTime))
	return nil
}

// Close отключает трекер от синхронизации. Открытая сессия остаётся
// в локальном хранилище и восстанавливается через Rehydrate.
func (t *TimeTracker) Close() {
	if t.syncer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.syncer.Unwatch(ctx); err != nil {
		logger.Warn("Service: Отправка снимка не дождалась завершения", zap.Error(err))
	}
}

// Reset забывает состояние пользователя при выходе: открытую сессию,
// историю и активную задачу. Открытая сессия остаётся в локальном
// хранилище и вернётся через Rehydrate при входе того же пользователя.
func (t *TimeTracker) Reset(ctx context.Context) {
	t.op.Lock()
	defer t.op.Unlock()

	if t.syncer != nil {
		if err := t.syncer.Unwatch(ctx); err != nil {
			logger.Warn("Service: Отправка снимка не дождалась завершения", zap.Error(err))
		}
	}

	t.mtx.Lock()
	t.current = nil
	t.history = []session.TimeSession{}
	t.activeTask = uuid.Nil
	t.mtx.Unlock()

	logger.Info("Service: Состояние учёта времени сброшено")
}
