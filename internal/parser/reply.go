package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"taskflow/internal/models/task"
	"time"
)

type replyEstimate struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type replySubtask struct {
	Title        string         `json:"title"`
	Description  *string        `json:"description"`
	TimeEstimate *replyEstimate `json:"timeEstimate"`
}

type reply struct {
	Title               string          `json:"title"`
	Category            json.RawMessage `json:"category"`
	DueDate             *string         `json:"dueDate"`
	Tags                []string        `json:"tags"`
	Priority            string          `json:"priority"`
	Description         *string         `json:"description"`
	TimeEstimate        *replyEstimate  `json:"timeEstimate"`
	Subtasks            []replySubtask  `json:"subtasks"`
	ClarifyingQuestions []string        `json:"clarifyingQuestions"`
	AIResponse          string          `json:"aiResponse"`
}

// decodeReply разбирает JSON ответа модели и заполняет пропущенные поля
func decodeReply(content, input string) (Draft, error) {
	content = stripFence(content)

	var r reply
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return Draft{}, fmt.Errorf("декодирование черновика: %w", err)
	}

	d := Draft{
		Title:               strings.TrimSpace(r.Title),
		Category:            task.NormalizeCategory(decodeCategory(r.Category)),
		Tags:                task.NormalizeTags(r.Tags),
		Priority:            task.Priority(strings.ToLower(strings.TrimSpace(r.Priority))),
		TimeEstimate:        toMinutes(r.TimeEstimate),
		Subtasks:            make([]DraftSubtask, 0, len(r.Subtasks)),
		ClarifyingQuestions: r.ClarifyingQuestions,
		AIResponse:          r.AIResponse,
	}
	if d.Title == "" {
		d.Title = strings.TrimSpace(input)
	}
	if !task.ValidPriority(d.Priority) {
		d.Priority = task.PriorityMedium
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.DueDate != nil {
		if due, ok := parseDate(*r.DueDate); ok {
			d.DueDate = &due
		}
	}
	for _, st := range r.Subtasks {
		title := strings.TrimSpace(st.Title)
		if title == "" {
			continue
		}
		ds := DraftSubtask{Title: title, TimeEstimate: toMinutes(st.TimeEstimate)}
		if st.Description != nil {
			ds.Description = *st.Description
		}
		d.Subtasks = append(d.Subtasks, ds)
	}
	return d, nil
}

// категория приходит строкой или массивом строк
func decodeCategory(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

// toMinutes приводит оценку к минутам
func toMinutes(e *replyEstimate) *task.TimeEstimate {
	if e == nil || e.Value <= 0 {
		return nil
	}
	minutes := e.Value
	if strings.HasPrefix(strings.ToLower(e.Unit), "hour") {
		minutes *= 60
	}
	return &task.TimeEstimate{Value: int(minutes + 0.5), Unit: task.UnitMinutes}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
