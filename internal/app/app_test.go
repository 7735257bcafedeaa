package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"taskflow/internal/app"
	"taskflow/internal/config"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Server.Host = "127.0.0.1"
	cfg.LocalStore.Type = "memory"
	cfg.Repository.Type = "inmemory"
	cfg.Connectivity.Enabled = false
	cfg.Parser.KeyringDir = ""
	return cfg
}

// TestApp_InitAndServe тестирует сборку приложения и базовые маршруты
func TestApp_InitAndServe(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.UserID = uuid.NewString()

	a, err := app.New(cfg).
		WithClock(clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))).
		Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Shutdown()) })

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/auth/me")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/tasks", "application/json", strings.NewReader(`{"title": "write report"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

// TestApp_InvalidUserID тестирует отказ при неверном auth.user_id
func TestApp_InvalidUserID(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.UserID = "not-a-uuid"

	_, err := app.New(cfg).Init(context.Background())
	assert.Error(t, err)
}

// TestApp_RunStopsOnCancel тестирует graceful shutdown по отмене контекста
func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := app.New(testConfig()).Init(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены")
	}
}

func call(t *testing.T, method, url, body string, dst any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

// TestApp_SignOutResetsUserState тестирует выход и вход другим пользователем:
// задачи и открытая сессия первого не видны второму и возвращаются первому
func TestApp_SignOutResetsUserState(t *testing.T) {
	cfg := testConfig()
	first := uuid.New()
	cfg.Auth.UserID = first.String()

	a, err := app.New(cfg).
		WithClock(clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))).
		Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Shutdown()) })

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, srv.URL+"/tasks", `{"title": "report"}`, &created))
	require.Equal(t, http.StatusOK,
		call(t, http.MethodPost, srv.URL+"/tracking/start", `{"task_id": "`+created.ID.String()+`"}`, nil))

	type tracking struct {
		Tracking bool `json:"tracking"`
	}
	var tasks []map[string]any
	var state tracking

	assert.Equal(t, http.StatusNoContent, call(t, http.MethodPost, srv.URL+"/auth/signout", "", nil))
	second := uuid.New()
	require.Equal(t, http.StatusOK,
		call(t, http.MethodPost, srv.URL+"/auth/signin", `{"user_id": "`+second.String()+`"}`, nil))

	call(t, http.MethodGet, srv.URL+"/tracking", "", &state)
	assert.False(t, state.Tracking)
	call(t, http.MethodGet, srv.URL+"/tasks", "", &tasks)
	assert.Empty(t, tasks)

	assert.Equal(t, http.StatusNoContent, call(t, http.MethodPost, srv.URL+"/auth/signout", "", nil))
	require.Equal(t, http.StatusOK,
		call(t, http.MethodPost, srv.URL+"/auth/signin", `{"user_id": "`+first.String()+`"}`, nil))

	call(t, http.MethodGet, srv.URL+"/tracking", "", &state)
	assert.True(t, state.Tracking)
	call(t, http.MethodGet, srv.URL+"/tasks", "", &tasks)
	assert.Len(t, tasks, 1)
}
