package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string
type Priority string
type EstimateUnit string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	UnitMinutes EstimateUnit = "minutes"
	UnitHours   EstimateUnit = "hours"
)

const DefaultCategory = "general"

type TimeEstimate struct {
	Value int          `json:"value" db:"value"`
	Unit  EstimateUnit `json:"unit" db:"unit"`
}

// Minutes приводит оценку к минутам
func (e TimeEstimate) Minutes() int {
	if e.Unit == UnitHours {
		return e.Value * 60
	}
	return e.Value
}

type Subtask struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Title        string        `json:"title" db:"title"`
	Description  string        `json:"description" db:"description"`
	Completed    bool          `json:"completed" db:"completed"`
	TimeEstimate *TimeEstimate `json:"time_estimate,omitempty"`
	Position     int           `json:"position" db:"position"`
}

type Task struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	UserID       uuid.UUID     `json:"user_id" db:"user_id"`
	Title        string        `json:"title" db:"title"`
	Description  string        `json:"description" db:"description"`
	Category     []string      `json:"category" db:"category"`
	Tags         []string      `json:"tags" db:"tags"`
	Priority     Priority      `json:"priority" db:"priority"`
	Status       Status        `json:"status" db:"status"`
	Progress     int           `json:"progress" db:"progress"`
	DueDate      *time.Time    `json:"due_date,omitempty" db:"due_date"`
	TimeEstimate *TimeEstimate `json:"time_estimate,omitempty"`
	TimeSpent    int64         `json:"time_spent" db:"time_spent"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	DeletedAt    *time.Time    `json:"deleted_at,omitempty" db:"deleted_at"`
	Dependencies []uuid.UUID   `json:"dependencies,omitempty"`
	Subtasks     []Subtask     `json:"subtasks"`
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Complete переводит задачу в completed: прогресс 100, все подзадачи выполнены
func (t *Task) Complete(now time.Time) {
	t.Status = StatusCompleted
	t.Progress = 100
	t.CompletedAt = &now
	for i := range t.Subtasks {
		t.Subtasks[i].Completed = true
	}
}

// Clone возвращает глубокую копию, чтобы снимки не делили слайсы с хранилищем
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Category = append([]string(nil), t.Category...)
	c.Tags = append([]string(nil), t.Tags...)
	c.Dependencies = append([]uuid.UUID(nil), t.Dependencies...)
	c.Subtasks = make([]Subtask, len(t.Subtasks))
	for i, st := range t.Subtasks {
		c.Subtasks[i] = st
		if st.TimeEstimate != nil {
			est := *st.TimeEstimate
			c.Subtasks[i].TimeEstimate = &est
		}
	}
	if t.TimeEstimate != nil {
		est := *t.TimeEstimate
		c.TimeEstimate = &est
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	if t.DeletedAt != nil {
		d := *t.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// NormalizeCategory обрезает пробелы, убирает дубли и пустые значения.
// Пустой результат превращается в {"general"}.
func NormalizeCategory(categories []string) []string {
	res := normalizeSet(categories)
	if len(res) == 0 {
		return []string{DefaultCategory}
	}
	return res
}

func NormalizeTags(tags []string) []string {
	res := normalizeSet(tags)
	if res == nil {
		return []string{}
	}
	return res
}

func normalizeSet(values []string) []string {
	var res []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		res = append(res, v)
	}
	return res
}

func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func ValidUnit(u EstimateUnit) bool {
	return u == UnitMinutes || u == UnitHours
}
