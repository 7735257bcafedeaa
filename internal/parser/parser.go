// Package parser превращает свободный текст в черновик задачи через
// OpenAI-совместимый API. Любая ошибка даёт деградированный черновик, а не error.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-3.5-turbo"

	errNoKey       = "ключ API парсера не настроен"
	errQuota       = "обработка недоступна (превышена квота), задача создана без разбора"
	errBadReply    = "не удалось разобрать ответ модели"
	errUnavailable = "ошибка обращения к модели, задача создана без разбора"
)

type Parser interface {
	Parse(ctx context.Context, input string) Draft
}

type DraftSubtask struct {
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	TimeEstimate *task.TimeEstimate `json:"time_estimate,omitempty"`
}

// Draft - структурированный черновик задачи. Оценки времени всегда в минутах.
type Draft struct {
	Title               string             `json:"title"`
	Category            []string           `json:"category"`
	Tags                []string           `json:"tags"`
	Priority            task.Priority      `json:"priority"`
	Description         string             `json:"description,omitempty"`
	DueDate             *time.Time         `json:"due_date,omitempty"`
	TimeEstimate        *task.TimeEstimate `json:"time_estimate,omitempty"`
	Subtasks            []DraftSubtask     `json:"subtasks"`
	ClarifyingQuestions []string           `json:"clarifying_questions,omitempty"`
	AIResponse          string             `json:"ai_response,omitempty"`
	Error               string             `json:"error,omitempty"`
}

// Degraded - черновик из сырого ввода с описанием причины
func Degraded(input, reason string) Draft {
	return Draft{
		Title:    strings.TrimSpace(input),
		Category: []string{task.DefaultCategory},
		Tags:     []string{},
		Priority: task.PriorityMedium,
		Subtasks: []DraftSubtask{},
		Error:    reason,
	}
}

type KeySource interface {
	APIKey() (string, error)
}

type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	keys   KeySource
	client *http.Client
}

// New создаёт клиента. keys используется, если ключ не задан в конфиге; может быть nil.
func New(cfg Config, keys KeySource) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		keys:   keys,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) apiKey() string {
	if c.cfg.APIKey != "" {
		return c.cfg.APIKey
	}
	if c.keys == nil {
		return ""
	}
	key, err := c.keys.APIKey()
	if err != nil {
		logger.Debug("Parser: Ключ API не получен", zap.Error(err))
		return ""
	}
	return key
}

func (c *Client) Parse(ctx context.Context, input string) Draft {
	key := c.apiKey()
	if key == "" {
		return Degraded(input, errNoKey)
	}

	content, err := c.complete(ctx, key, input)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusTooManyRequests {
			logger.Warn("Parser: Превышена квота API")
			return Degraded(input, errQuota)
		}
		logger.Error("Parser: Ошибка обращения к модели", err)
		return Degraded(input, errUnavailable)
	}

	draft, err := decodeReply(content, input)
	if err != nil {
		logger.Warn("Parser: Некорректный ответ модели", zap.Error(err))
		return Degraded(input, errBadReply)
	}
	return draft
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("статус %d: %s", e.code, e.body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, key, input string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Task: " + strings.TrimSpace(input)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("кодирование запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос к модели: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("чтение ответа: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, body: string(raw)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("декодирование ответа: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("пустой ответ модели")
	}
	return parsed.Choices[0].Message.Content, nil
}

const systemPrompt = `You are a task management assistant. Analyze the user's task and reply with ONLY valid JSON:
{
  "title": "clear, concise task title",
  "category": "work/personal/shopping/etc",
  "dueDate": "ISO date string or null",
  "tags": ["tag1", "tag2"],
  "priority": "low/medium/high",
  "description": "detailed description or null",
  "timeEstimate": {"value": number, "unit": "minutes" or "hours"},
  "subtasks": [{"title": "...", "description": "...", "timeEstimate": {"value": number, "unit": "minutes" or "hours"}}],
  "clarifyingQuestions": ["..."],
  "aiResponse": "a short friendly reply"
}`
