package worker_test

import (
	"context"
	"errors"
	"taskflow/internal/localstore"
	"taskflow/internal/models/session"
	"taskflow/internal/repository/inmemory"
	"taskflow/internal/syncer"
	"taskflow/internal/worker"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, storage *inmemory.Storage, clock clockwork.Clock) *syncer.Manager {
	t.Helper()
	m := syncer.NewManager(storage, localstore.NewMemory(), clock)
	require.NoError(t, m.Initialize(context.Background(), syncer.Options{RetryDelay: time.Millisecond}))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// TestConnectivityWorker_Check тестирует переключение связности и отправку очереди
func TestConnectivityWorker_Check(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	storage := inmemory.NewStorage()
	manager := newManager(t, storage, clock)
	w := worker.NewConnectivityWorker(storage, manager, clock, nil, nil)

	storage.SetFailure(errors.New("dns"))
	assert.False(t, w.Check(ctx))
	assert.False(t, manager.Online())
	assert.Equal(t, syncer.StateOffline, manager.Status().State)

	user := uuid.New()
	s := session.TimeSession{ID: uuid.New(), TaskID: uuid.New(), UserID: user, StartTime: clock.Now()}
	s.Close(clock.Now().Add(time.Minute))
	require.NoError(t, manager.SyncSession(ctx, s))
	require.Len(t, manager.Pending(), 1)

	storage.SetFailure(nil)
	assert.True(t, w.Check(ctx))
	assert.True(t, manager.Online())
	assert.Empty(t, manager.Pending())

	remote, err := storage.ListSessions(ctx, user, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, int64(60), remote[0].Duration)
}

// TestConnectivityWorker_Start тестирует периодический запуск проверки
func TestConnectivityWorker_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	storage := inmemory.NewStorage()
	manager := newManager(t, storage, clock)
	interval := time.Second
	w := worker.NewConnectivityWorker(storage, manager, clock, &interval, nil)

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	storage.SetFailure(errors.New("down"))
	clock.Advance(interval)

	assert.Eventually(t, func() bool { return !manager.Online() }, time.Second, 5*time.Millisecond)
	assert.False(t, w.Online())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker не остановился")
	}
}
