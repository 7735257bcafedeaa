// Package syncer сверяет локальное состояние сессий с удалённым хранилищем:
// периодическая отправка открытой сессии, долговременная очередь, повторы.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"taskflow/internal/localstore"
	"taskflow/internal/logger"
	"taskflow/internal/models/session"
	repo "taskflow/internal/repository"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type State string

const (
	StateSynced  State = "synced"
	StateSyncing State = "syncing"
	StateOffline State = "offline"
	StateError   State = "error"
)

type Status struct {
	State        State      `json:"state"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Pending      int        `json:"pending"`
}

type Options struct {
	AutoSync       bool
	Interval       time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	OfflineMode    bool
	RequestTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		AutoSync:       true,
		Interval:       30 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     5 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = def.RequestTimeout
	}
	return o
}

// Manager владеет очередью неподтверждённых сессий и состоянием синхронизации
type Manager struct {
	repo  repo.SessionRepository
	local localstore.Store
	clock clockwork.Clock

	mtx       sync.Mutex
	opts      Options
	queue     []session.TimeSession
	online    bool
	paused    bool
	closed    bool
	source    session.Source
	status    Status
	observers map[int]func(Status)
	nextObs   int
	stopTick  chan struct{}

	// upsertSem занят на время одной записи в хранилище (без пауз между
	// повторами); group не даёт циклам отправки пересекаться
	upsertSem chan struct{}
	group     singleflight.Group
	wg        sync.WaitGroup
}

func NewManager(r repo.SessionRepository, local localstore.Store, clock clockwork.Clock) *Manager {
	return &Manager{
		repo:      r,
		local:     local,
		clock:     clock,
		opts:      DefaultOptions(),
		queue:     []session.TimeSession{},
		online:    true,
		status:    Status{State: StateSynced},
		observers: make(map[int]func(Status)),
		upsertSem: make(chan struct{}, 1),
	}
}

// Initialize применяет настройки, загружает сохранённую очередь и,
// если сеть доступна, сразу отправляет её
func (m *Manager) Initialize(ctx context.Context, opts Options) error {
	var stored []session.TimeSession
	if _, err := m.local.Get(ctx, localstore.KeyPendingSessions, &stored); err != nil {
		logger.Error("Sync: Очередь не прочитана", err)
		return fmt.Errorf("чтение очереди: %w", err)
	}

	m.mtx.Lock()
	m.opts = opts.withDefaults()
	for _, s := range stored {
		m.enqueueLocked(s)
	}
	online := m.onlineLocked()
	if !online {
		m.status.State = StateOffline
	}
	pending := len(m.queue)
	interval := m.opts.Interval
	m.rearmLocked()
	m.mtx.Unlock()
	m.notify()

	logger.Info("Sync: Менеджер инициализирован",
		zap.Int("pending", pending), zap.Bool("online", online), zap.Duration("interval", interval))

	if online && pending > 0 {
		if err := m.flush(ctx); err != nil {
			logger.Debug("Sync: Начальная отправка очереди не удалась", zap.Error(err))
		}
	}
	return nil
}

// SyncSession ставит снимок сессии в очередь и, если сеть есть, запускает отправку
func (m *Manager) SyncSession(ctx context.Context, s session.TimeSession) error {
	if s.ID == uuid.Nil {
		return errors.New("сессия без id не может быть синхронизирована")
	}

	m.mtx.Lock()
	m.enqueueLocked(s)
	queue := slices.Clone(m.queue)
	m.rearmLocked()
	kick := m.onlineLocked() && !m.paused && !m.closed
	m.mtx.Unlock()
	m.notify()

	if err := m.persist(ctx, queue); err != nil {
		return err
	}
	if kick {
		m.kick()
	}
	return nil
}

// BulkSyncSessions - одна запись всех сессий с конфликтом по id.
// Подтверждённые записи убираются из очереди, остаток сохраняется.
func (m *Manager) BulkSyncSessions(ctx context.Context, sessions []session.TimeSession) error {
	if len(sessions) == 0 {
		return nil
	}
	return m.upsert(ctx, func() []session.TimeSession { return sessions })
}

// upsert собирает пакет уже под upsertSem: Unwatch, дождавшись семафора,
// знает, что снимок открытой сессии больше не будет записан
func (m *Manager) upsert(ctx context.Context, collect func() []session.TimeSession) error {
	select {
	case m.upsertSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.upsertSem }()

	sessions := collect()
	if len(sessions) == 0 {
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, m.timeout())
	defer cancel()

	if err := m.repo.UpsertSessions(rctx, sessions); err != nil {
		return err
	}

	m.mtx.Lock()
	m.queue = slices.DeleteFunc(m.queue, func(q session.TimeSession) bool {
		return slices.ContainsFunc(sessions, func(s session.TimeSession) bool { return sameSnapshot(q, s) })
	})
	queue := slices.Clone(m.queue)
	m.rearmLocked()
	m.mtx.Unlock()

	return m.persist(ctx, queue)
}

// SyncNow - один цикл отправки с повторами. Параллельные вызовы
// разделяют уже идущую отправку.
func (m *Manager) SyncNow(ctx context.Context) error {
	return m.flush(ctx)
}

// SetOnline вызывается при смене связности. Появление сети с непустой
// очередью сразу запускает отправку.
func (m *Manager) SetOnline(ctx context.Context, online bool) error {
	m.mtx.Lock()
	changed := m.online != online
	m.online = online
	effective := m.onlineLocked()
	pending := len(m.queue) > 0
	if !effective {
		m.status.State = StateOffline
	} else if m.status.State == StateOffline {
		m.status.State = StateSynced
	}
	m.mtx.Unlock()

	if changed {
		logger.Info("Sync: Изменилась связность", zap.Bool("online", online))
		m.notify()
	}
	if effective && pending && changed {
		return m.flush(ctx)
	}
	return nil
}

func (m *Manager) Online() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.onlineLocked()
}

func (m *Manager) onlineLocked() bool {
	return m.online && !m.opts.OfflineMode
}

func (m *Manager) Status() Status {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	st := m.status
	st.Pending = len(m.queue)
	if st.LastSyncedAt != nil {
		t := *st.LastSyncedAt
		st.LastSyncedAt = &t
	}
	return st
}

// Pending - копия очереди
func (m *Manager) Pending() []session.TimeSession {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return slices.Clone(m.queue)
}

// Subscribe регистрирует наблюдателя статуса, возвращает отписку
func (m *Manager) Subscribe(fn func(Status)) func() {
	m.mtx.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mtx.Unlock()

	return func() {
		m.mtx.Lock()
		delete(m.observers, id)
		m.mtx.Unlock()
	}
}

// Watch подключает источник открытой сессии для периодической отправки
func (m *Manager) Watch(source session.Source) {
	m.mtx.Lock()
	m.source = source
	m.rearmLocked()
	m.mtx.Unlock()
}

// Unwatch отключает источник и ждёт только идущей записи (не всего цикла
// повторов), чтобы снимок открытой сессии не перезаписал её закрытие.
// Ожидание ограничено ctx.
func (m *Manager) Unwatch(ctx context.Context) error {
	m.mtx.Lock()
	m.source = nil
	m.rearmLocked()
	m.mtx.Unlock()

	select {
	case m.upsertSem <- struct{}{}:
		<-m.upsertSem
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) PauseSync() {
	m.mtx.Lock()
	m.paused = true
	m.rearmLocked()
	m.mtx.Unlock()
	logger.Info("Sync: Синхронизация приостановлена")
}

func (m *Manager) ResumeSync() {
	m.mtx.Lock()
	m.paused = false
	m.rearmLocked()
	kick := m.onlineLocked() && len(m.queue) > 0 && !m.closed
	m.mtx.Unlock()
	logger.Info("Sync: Синхронизация возобновлена")
	if kick {
		m.kick()
	}
}

// Close останавливает таймер и фоновые отправки, очередь остаётся на диске
func (m *Manager) Close() error {
	m.mtx.Lock()
	m.closed = true
	m.source = nil
	m.rearmLocked()
	queue := slices.Clone(m.queue)
	m.mtx.Unlock()

	m.wg.Wait()
	logger.Info("Sync: Менеджер остановлен", zap.Int("pending", len(queue)))
	return m.persist(context.Background(), queue)
}

// rearmLocked держит таймер включённым, пока есть открытая сессия или очередь
func (m *Manager) rearmLocked() {
	want := m.opts.AutoSync && !m.paused && !m.closed && (m.source != nil || len(m.queue) > 0)

	switch {
	case want && m.stopTick == nil:
		stop := make(chan struct{})
		m.stopTick = stop
		ticker := m.clock.NewTicker(m.opts.Interval)
		m.wg.Add(1)
		go m.loop(ticker, stop)
	case !want && m.stopTick != nil:
		close(m.stopTick)
		m.stopTick = nil
	}
}

func (m *Manager) loop(ticker clockwork.Ticker, stop chan struct{}) {
	defer m.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !m.Online() {
				continue
			}
			if err := m.flush(context.Background()); err != nil {
				logger.Debug("Sync: Периодическая отправка не удалась", zap.Error(err))
			}
		}
	}
}

func (m *Manager) kick() {
	m.mtx.Lock()
	if m.closed {
		m.mtx.Unlock()
		return
	}
	m.wg.Add(1)
	m.mtx.Unlock()

	go func() {
		defer m.wg.Done()
		if err := m.flush(context.Background()); err != nil {
			logger.Debug("Sync: Фоновая отправка не удалась", zap.Error(err))
		}
	}()
}

func (m *Manager) flush(ctx context.Context) error {
	_, err, _ := m.group.Do("flush", func() (any, error) {
		return nil, m.flushCycle(ctx)
	})
	return err
}

// flushCycle: снимок открытой сессии + очередь, одна запись, повторы с
// постоянной задержкой. Счётчик повторов свой у каждого цикла. Пакет
// собирается заново перед каждой попыткой.
func (m *Manager) flushCycle(ctx context.Context) error {
	m.mtx.Lock()
	if !m.onlineLocked() {
		m.status.State = StateOffline
		m.mtx.Unlock()
		m.notify()
		return repo.ErrUnavailable
	}
	attempts, delay := m.opts.RetryAttempts, m.opts.RetryDelay
	m.mtx.Unlock()

	batch := m.collect()
	if len(batch) == 0 {
		return nil
	}

	m.setState(StateSyncing, "")

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts)), ctx)

	op := func() error {
		err := m.upsert(ctx, m.collect)
		if errors.Is(err, repo.ErrNotAuthenticated) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Sync: Повтор отправки", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		logger.Error("Sync: Отправка не удалась после повторов", err, zap.Int("batch", len(batch)))
		m.setState(StateError, err.Error())
		return fmt.Errorf("синхронизация: %w", err)
	}

	now := m.clock.Now()
	m.mtx.Lock()
	m.status = Status{State: StateSynced, LastSyncedAt: &now}
	m.mtx.Unlock()
	m.notify()

	logger.Debug("Sync: Отправлено", zap.Int("batch", len(batch)))
	return nil
}

// collect - очередь плюс свежий снимок открытой сессии, если она отслеживается
func (m *Manager) collect() []session.TimeSession {
	m.mtx.Lock()
	batch := slices.Clone(m.queue)
	source := m.source
	m.mtx.Unlock()

	if source != nil {
		if open, ok := source(); ok {
			batch = upsertByID(batch, open)
		}
	}
	return batch
}

func (m *Manager) setState(state State, lastErr string) {
	m.mtx.Lock()
	m.status.State = state
	m.status.LastError = lastErr
	m.mtx.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	m.mtx.Lock()
	st := m.statusLocked()
	observers := make([]func(Status), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mtx.Unlock()

	for _, fn := range observers {
		fn(st)
	}
}

func (m *Manager) timeout() time.Duration {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.opts.RequestTimeout
}

// persist сохраняет очередь; пустая очередь удаляет ключ
func (m *Manager) persist(ctx context.Context, queue []session.TimeSession) error {
	var err error
	if len(queue) == 0 {
		err = m.local.Remove(ctx, localstore.KeyPendingSessions)
	} else {
		err = m.local.Set(ctx, localstore.KeyPendingSessions, queue)
	}
	if err != nil {
		logger.Error("Sync: Очередь не сохранена", err)
		return fmt.Errorf("сохранение очереди: %w", err)
	}
	return nil
}

// enqueueLocked - последний снимок для id заменяет предыдущий
func (m *Manager) enqueueLocked(s session.TimeSession) {
	m.queue = upsertByID(m.queue, s)
}

func upsertByID(list []session.TimeSession, s session.TimeSession) []session.TimeSession {
	for i := range list {
		if list[i].ID == s.ID {
			list[i] = s
			return list
		}
	}
	return append(list, s)
}

func sameSnapshot(a, b session.TimeSession) bool {
	if a.ID != b.ID || a.Duration != b.Duration || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	return (a.EndTime == nil) == (b.EndTime == nil)
}
