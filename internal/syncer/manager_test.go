package syncer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"taskflow/internal/localstore"
	"taskflow/internal/models/session"
	"taskflow/internal/repository/inmemory"
	"taskflow/internal/syncer"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func testOptions() syncer.Options {
	return syncer.Options{
		AutoSync:       false,
		Interval:       30 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
		RequestTimeout: time.Second,
	}
}

func closedSession(user uuid.UUID, seconds int) session.TimeSession {
	s := session.TimeSession{ID: uuid.New(), TaskID: uuid.New(), UserID: user, StartTime: start}
	s.Close(start.Add(time.Duration(seconds) * time.Second))
	return s
}

type fixture struct {
	storage *inmemory.Storage
	local   *localstore.Memory
	clock   *clockwork.FakeClock
	manager *syncer.Manager
	user    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		storage: inmemory.NewStorage(),
		local:   localstore.NewMemory(),
		clock:   clockwork.NewFakeClockAt(start),
		user:    uuid.New(),
	}
	f.manager = syncer.NewManager(f.storage, f.local, f.clock)
	t.Cleanup(func() { f.manager.Close() })
	return f
}

func (f *fixture) remote(t *testing.T) []session.TimeSession {
	t.Helper()
	sessions, err := f.storage.ListSessions(context.Background(), f.user, time.Time{}, time.Time{})
	require.NoError(t, err)
	return sessions
}

// TestManager_BulkSyncIsIdempotent тестирует отсутствие дублей при повторной отправке
func TestManager_BulkSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.manager.Initialize(ctx, testOptions()))

	batch := []session.TimeSession{closedSession(f.user, 10), closedSession(f.user, 20)}
	require.NoError(t, f.manager.BulkSyncSessions(ctx, batch))
	require.NoError(t, f.manager.BulkSyncSessions(ctx, batch))

	assert.Len(t, f.remote(t), 2)
	assert.Equal(t, 2, f.storage.UpsertCalls())
}

// TestManager_RetryExhaustionKeepsQueue тестирует статус error и сохранение очереди
func TestManager_RetryExhaustionKeepsQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.manager.Initialize(ctx, testOptions()))
	f.storage.SetFailure(errors.New("connection refused"))

	s := closedSession(f.user, 30)
	require.NoError(t, f.manager.SyncSession(ctx, s))

	assert.Eventually(t, func() bool {
		return f.manager.Status().State == syncer.StateError
	}, time.Second, 5*time.Millisecond)

	status := f.manager.Status()
	assert.Equal(t, 1, status.Pending)
	assert.Contains(t, status.LastError, "connection refused")
	assert.Equal(t, []session.TimeSession{s}, f.manager.Pending())

	_, persisted := f.local.Raw(localstore.KeyPendingSessions)
	assert.True(t, persisted)

	// следующий цикл начинает повторы заново
	f.storage.SetFailure(nil)
	assert.Eventually(t, func() bool {
		return f.manager.SyncNow(ctx) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, syncer.StateSynced, f.manager.Status().State)
	assert.Empty(t, f.manager.Pending())
	assert.Len(t, f.remote(t), 1)

	_, persisted = f.local.Raw(localstore.KeyPendingSessions)
	assert.False(t, persisted)
}

// TestManager_OfflineQueueDrainsOnReconnect тестирует очередь без сети и отправку при её появлении
func TestManager_OfflineQueueDrainsOnReconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.manager.Initialize(ctx, testOptions()))
	require.NoError(t, f.manager.SetOnline(ctx, false))

	s := closedSession(f.user, 40)
	require.NoError(t, f.manager.SyncSession(ctx, s))

	status := f.manager.Status()
	assert.Equal(t, syncer.StateOffline, status.State)
	assert.Equal(t, 1, status.Pending)
	assert.Empty(t, f.remote(t))

	require.NoError(t, f.manager.SetOnline(ctx, true))

	assert.Empty(t, f.manager.Pending())
	remote := f.remote(t)
	require.Len(t, remote, 1)
	assert.Equal(t, s.ID, remote[0].ID)
	assert.Equal(t, int64(40), remote[0].Duration)
}

// TestManager_InitializeFlushesStoredQueue тестирует загрузку очереди после перезапуска
func TestManager_InitializeFlushesStoredQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stored := []session.TimeSession{closedSession(f.user, 5)}
	require.NoError(t, f.local.Set(ctx, localstore.KeyPendingSessions, stored))

	require.NoError(t, f.manager.Initialize(ctx, testOptions()))

	assert.Empty(t, f.manager.Pending())
	assert.Len(t, f.remote(t), 1)
}

// TestManager_InitializeSurvivesFailedFlush тестирует, что неудачная начальная
// отправка не срывает инициализацию и очередь сохраняется
func TestManager_InitializeSurvivesFailedFlush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stored := []session.TimeSession{closedSession(f.user, 5)}
	require.NoError(t, f.local.Set(ctx, localstore.KeyPendingSessions, stored))
	f.storage.SetFailure(errors.New("connection refused"))

	require.NoError(t, f.manager.Initialize(ctx, testOptions()))

	pending := f.manager.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, stored[0].ID, pending[0].ID)
	assert.Equal(t, syncer.StateError, f.manager.Status().State)
	_, persisted := f.local.Raw(localstore.KeyPendingSessions)
	assert.True(t, persisted)
}

// TestManager_OfflineModeOverride тестирует принудительный офлайн
func TestManager_OfflineModeOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	opts := testOptions()
	opts.OfflineMode = true
	require.NoError(t, f.manager.Initialize(ctx, opts))

	assert.False(t, f.manager.Online())
	require.NoError(t, f.manager.SyncSession(ctx, closedSession(f.user, 1)))
	assert.Error(t, f.manager.SyncNow(ctx))
	assert.Equal(t, 1, f.manager.Status().Pending)
}

// TestManager_PeriodicTickPushesOpenSession тестирует периодическую отправку открытой сессии
func TestManager_PeriodicTickPushesOpenSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	opts := testOptions()
	opts.AutoSync = true
	require.NoError(t, f.manager.Initialize(ctx, opts))

	open := session.TimeSession{ID: uuid.New(), TaskID: uuid.New(), UserID: f.user, StartTime: start}
	f.manager.Watch(func() (session.TimeSession, bool) {
		snap := open
		snap.Duration = snap.Elapsed(f.clock.Now())
		return snap, true
	})

	f.clock.BlockUntil(1)
	f.clock.Advance(30 * time.Second)

	assert.Eventually(t, func() bool {
		remote := f.remote(t)
		return len(remote) == 1 && remote[0].Duration == 30 && remote[0].IsOpen()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.manager.Unwatch(ctx))
	assert.Empty(t, f.manager.Pending())
}

// TestManager_SubscribeAndConcurrentSync тестирует наблюдателей и параллельные SyncNow
func TestManager_SubscribeAndConcurrentSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.manager.Initialize(ctx, testOptions()))
	require.NoError(t, f.manager.SetOnline(ctx, false))
	require.NoError(t, f.manager.SyncSession(ctx, closedSession(f.user, 3)))

	var mu sync.Mutex
	var states []syncer.State
	unsubscribe := f.manager.Subscribe(func(st syncer.Status) {
		mu.Lock()
		states = append(states, st.State)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, f.manager.SetOnline(ctx, true))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.manager.SyncNow(ctx))
		}()
	}
	wg.Wait()

	assert.Len(t, f.remote(t), 1)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, syncer.StateSyncing)
	assert.Equal(t, syncer.StateSynced, states[len(states)-1])
}

// gatedStorage считает попытки записи и может задерживать их до закрытия gate
type gatedStorage struct {
	*inmemory.Storage
	attempts atomic.Int32
	gate     chan struct{}
}

func (g *gatedStorage) UpsertSessions(ctx context.Context, sessions []session.TimeSession) error {
	g.attempts.Add(1)
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.Storage.UpsertSessions(ctx, sessions)
}

func (f *fixture) gated(t *testing.T, gate chan struct{}, opts syncer.Options) (*gatedStorage, *syncer.Manager) {
	t.Helper()
	g := &gatedStorage{Storage: f.storage, gate: gate}
	m := syncer.NewManager(g, f.local, f.clock)
	t.Cleanup(func() { m.Close() })
	require.NoError(t, m.Initialize(context.Background(), opts))
	return g, m
}

func (f *fixture) openSource() session.Source {
	open := session.TimeSession{ID: uuid.New(), TaskID: uuid.New(), UserID: f.user, StartTime: start}
	return func() (session.TimeSession, bool) {
		snap := open
		snap.Duration = snap.Elapsed(f.clock.Now())
		return snap, true
	}
}

// TestManager_UnwatchDoesNotWaitForRetries тестирует, что Unwatch не ждёт
// пауз между повторами
func TestManager_UnwatchDoesNotWaitForRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	opts := testOptions()
	opts.RetryAttempts = 5
	opts.RetryDelay = 300 * time.Millisecond
	g, m := f.gated(t, nil, opts)

	f.storage.SetFailure(errors.New("network down"))
	m.Watch(f.openSource())

	done := make(chan error, 1)
	go func() { done <- m.SyncNow(ctx) }()

	require.Eventually(t, func() bool { return g.attempts.Load() >= 1 }, time.Second, time.Millisecond)

	began := time.Now()
	require.NoError(t, m.Unwatch(ctx))
	assert.Less(t, time.Since(began), 150*time.Millisecond)

	f.storage.SetFailure(nil)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("цикл отправки не завершился")
	}

	// источник отключён до следующей попытки: снимок не записан
	assert.Empty(t, f.remote(t))
	assert.Equal(t, syncer.StateSynced, m.Status().State)
}

// TestManager_UnwatchBoundedByContext тестирует, что ожидание идущей записи
// ограничено контекстом
func TestManager_UnwatchBoundedByContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	gate := make(chan struct{})
	g, m := f.gated(t, gate, testOptions())

	m.Watch(f.openSource())

	done := make(chan error, 1)
	go func() { done <- m.SyncNow(ctx) }()
	require.Eventually(t, func() bool { return g.attempts.Load() == 1 }, time.Second, time.Millisecond)

	wctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := m.Unwatch(wctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(gate)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("цикл отправки не завершился")
	}

	// снимок, собранный до Unwatch, записан; повторное ожидание мгновенно
	require.Len(t, f.remote(t), 1)
	assert.True(t, f.remote(t)[0].IsOpen())
	require.NoError(t, m.Unwatch(ctx))
}
