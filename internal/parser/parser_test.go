package parser_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"taskflow/internal/models/task"
	"taskflow/internal/parser"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKey struct {
	key string
	err error
}

func (s staticKey) APIKey() (string, error) { return s.key, s.err }

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.WriteHeader(status)
		if status != http.StatusOK {
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Parse(t *testing.T) {
	content := "```json\n" + `{
		"title": "Prepare report",
		"category": "work",
		"dueDate": "2026-05-01",
		"tags": ["q2", "q2", " "],
		"priority": "High",
		"description": null,
		"timeEstimate": {"value": 1.5, "unit": "hours"},
		"subtasks": [
			{"title": "Collect data", "timeEstimate": {"value": 30, "unit": "minutes"}},
			{"title": ""}
		],
		"aiResponse": "ok"
	}` + "\n```"
	srv := chatServer(t, http.StatusOK, content)

	client := parser.New(parser.Config{BaseURL: srv.URL}, staticKey{key: "sk-test"})
	draft := client.Parse(context.Background(), "prepare the q2 report")

	assert.Empty(t, draft.Error)
	assert.Equal(t, "Prepare report", draft.Title)
	assert.Equal(t, []string{"work"}, draft.Category)
	assert.Equal(t, []string{"q2"}, draft.Tags)
	assert.Equal(t, task.PriorityHigh, draft.Priority)
	require.NotNil(t, draft.DueDate)
	assert.Equal(t, 2026, draft.DueDate.Year())
	require.NotNil(t, draft.TimeEstimate)
	assert.Equal(t, task.TimeEstimate{Value: 90, Unit: task.UnitMinutes}, *draft.TimeEstimate)
	require.Len(t, draft.Subtasks, 1)
	assert.Equal(t, 30, draft.Subtasks[0].TimeEstimate.Value)
}

func TestClient_ParseDegraded(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		keys    parser.KeySource
		reason  string
	}{
		{
			name:   "нет ключа",
			status: http.StatusOK,
			keys:   staticKey{err: errors.New("not found")},
			reason: "ключ API парсера не настроен",
		},
		{
			name:   "квота",
			status: http.StatusTooManyRequests,
			keys:   staticKey{key: "sk-test"},
			reason: "обработка недоступна (превышена квота), задача создана без разбора",
		},
		{
			name:   "ошибка сервера",
			status: http.StatusInternalServerError,
			keys:   staticKey{key: "sk-test"},
			reason: "ошибка обращения к модели, задача создана без разбора",
		},
		{
			name:    "не JSON",
			status:  http.StatusOK,
			content: "sure, here is your task",
			keys:    staticKey{key: "sk-test"},
			reason:  "не удалось разобрать ответ модели",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content)
			client := parser.New(parser.Config{BaseURL: srv.URL}, tt.keys)

			draft := client.Parse(context.Background(), "  buy milk ")

			assert.Equal(t, tt.reason, draft.Error)
			assert.Equal(t, "buy milk", draft.Title)
			assert.Equal(t, []string{task.DefaultCategory}, draft.Category)
			assert.Empty(t, draft.Subtasks)
		})
	}
}
