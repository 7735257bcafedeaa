package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"taskflow/internal/auth"
	"taskflow/internal/focus"
	"taskflow/internal/handlers"
	"taskflow/internal/localstore"
	"taskflow/internal/repository/inmemory"
	"taskflow/internal/service"
	"taskflow/internal/syncer"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router  http.Handler
	storage *inmemory.Storage
	clock   *clockwork.FakeClock
	session *auth.Session
	manager *syncer.Manager
	tasks   *service.TaskStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		storage: inmemory.NewStorage(),
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		session: auth.NewSession(),
	}
	local := localstore.NewMemory()
	f.manager = syncer.NewManager(f.storage, local, f.clock)
	require.NoError(t, f.manager.Initialize(context.Background(), syncer.Options{RetryDelay: time.Millisecond}))

	tracker := service.NewTimeTracker(f.storage, f.session, local, f.manager, f.clock, time.Second)
	f.tasks = service.NewTaskStore(f.storage, f.session, f.clock, service.TaskStoreConfig{})
	focusTracker := focus.NewTracker(local, tracker, f.clock)

	r := chi.NewRouter()
	handlers.NewTaskHandler(f.tasks, tracker, stubParser{}).Routes(r)
	handlers.NewTrackingHandler(tracker, f.manager, f.tasks, f.clock).Routes(r)
	handlers.NewFocusHandler(focusTracker).Routes(r)
	handlers.NewSystemHandler(f.session, f.storage).Routes(r)
	f.router = r

	t.Cleanup(func() {
		tracker.Close()
		f.tasks.Close()
		_ = f.manager.Close()
	})
	return f
}

func (f *apiFixture) signIn(t *testing.T) {
	t.Helper()
	w := do(f.router, http.MethodPost, "/auth/signin", `{"user_id": "`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func (f *apiFixture) createTask(t *testing.T, title string) uuid.UUID {
	t.Helper()
	w := do(f.router, http.MethodPost, "/tasks", `{"title": "`+title+`", "category": ["work"]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id, err := uuid.Parse(decode(t, w)["id"].(string))
	require.NoError(t, err)
	return id
}

// TestAPI_TrackingFlow тестирует старт, паузу и остановку через HTTP
func TestAPI_TrackingFlow(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusUnauthorized, do(f.router, http.MethodGet, "/auth/me", "").Code)
	w := do(f.router, http.MethodPost, "/tracking/start", `{"task_id": "`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	f.signIn(t)
	taskID := f.createTask(t, "report")

	w = do(f.router, http.MethodPost, "/tracking/start", `{"task_id": "`+taskID.String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	f.clock.Advance(65 * time.Second)
	w = do(f.router, http.MethodGet, "/tracking/tasks/"+taskID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(65), body["seconds"])
	assert.Equal(t, "00:01:05", body["clock"])
	assert.Equal(t, true, body["tracking"])

	w = do(f.router, http.MethodPost, "/tracking/pause", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(65), decode(t, w)["duration"])

	w = do(f.router, http.MethodGet, "/tracking", "")
	body = decode(t, w)
	assert.Equal(t, false, body["tracking"])
	assert.Equal(t, taskID.String(), body["active_task_id"])

	// повторная пауза без открытой сессии
	assert.Equal(t, http.StatusNoContent, do(f.router, http.MethodPost, "/tracking/pause", "").Code)

	w = do(f.router, http.MethodGet, "/tasks/"+taskID.String(), "")
	assert.Equal(t, "1m 5s", decode(t, w)["tracked_text"])

	w = do(f.router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	assert.Equal(t, float64(65), stats["total_tracked"])

	w = do(f.router, http.MethodGet, "/tracking/today", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1m", decode(t, w)["total_text"])
}

// TestAPI_SyncEndpoints тестирует статус синхронизации и очередь
func TestAPI_SyncEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t)
	taskID := f.createTask(t, "offline")

	require.Equal(t, http.StatusOK, do(f.router, http.MethodPost, "/tracking/start", `{"task_id": "`+taskID.String()+`"}`).Code)

	w := do(f.router, http.MethodPut, "/sync/online", `{"online": false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(syncer.StateOffline), decode(t, w)["state"])

	f.clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, do(f.router, http.MethodPost, "/tracking/stop", "").Code)

	var pending []map[string]any
	w = do(f.router, http.MethodGet, "/sync/pending", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)

	assert.Equal(t, http.StatusServiceUnavailable, do(f.router, http.MethodPost, "/sync/now", "").Code)

	w = do(f.router, http.MethodPut, "/sync/online", `{"online": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(syncer.StateSynced), body["state"])
	assert.Equal(t, float64(0), body["pending"])
}

// TestAPI_FocusFlow тестирует режим фокуса с автозапуском таймера
func TestAPI_FocusFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn(t)
	taskID := f.createTask(t, "deep work")

	w := do(f.router, http.MethodPost, "/focus/enter", `{"task_id": "`+taskID.String()+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, decode(t, w), "timer_error")

	w = do(f.router, http.MethodGet, "/tracking", "")
	assert.Equal(t, true, decode(t, w)["tracking"])

	w = do(f.router, http.MethodPost, "/focus/interruptions", "")
	assert.Equal(t, float64(1), decode(t, w)["interruptions"])

	f.clock.Advance(10 * time.Minute)
	w = do(f.router, http.MethodPost, "/focus/exit", "")
	require.Equal(t, http.StatusOK, w.Code)
	closed := decode(t, w)["session"].(map[string]any)
	assert.Equal(t, float64(600), closed["duration"])

	// выход из фокуса не останавливает учёт времени
	w = do(f.router, http.MethodGet, "/tracking", "")
	assert.Equal(t, true, decode(t, w)["tracking"])

	w = do(f.router, http.MethodPatch, "/focus/settings", `{"theme": "dark"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dark", decode(t, w)["theme"])
	assert.Equal(t, http.StatusBadRequest, do(f.router, http.MethodPatch, "/focus/settings", `{"theme": "neon"}`).Code)
}

// TestAPI_HealthAndSignOut тестирует проверку здоровья и выход
func TestAPI_HealthAndSignOut(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusOK, do(f.router, http.MethodGet, "/health", "").Code)
	f.storage.SetFailure(errors.New("down"))
	assert.Equal(t, http.StatusServiceUnavailable, do(f.router, http.MethodGet, "/health", "").Code)
	f.storage.SetFailure(nil)

	f.signIn(t)
	assert.Equal(t, http.StatusOK, do(f.router, http.MethodGet, "/auth/me", "").Code)
	assert.Equal(t, http.StatusNoContent, do(f.router, http.MethodPost, "/auth/signout", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(f.router, http.MethodPost, "/tasks", `{"title": "x"}`).Code)
}
