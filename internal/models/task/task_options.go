package task

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type TaskOption func(*Task)

func WithTitle(title string) TaskOption {
	return func(task *Task) {
		task.Title = strings.TrimSpace(title)
	}
}

func WithDescription(description string) TaskOption {
	return func(task *Task) {
		task.Description = description
	}
}

func WithCategory(category []string) TaskOption {
	return func(task *Task) {
		task.Category = NormalizeCategory(category)
	}
}

func WithTags(tags []string) TaskOption {
	return func(task *Task) {
		task.Tags = NormalizeTags(tags)
	}
}

func WithPriority(priority Priority) TaskOption {
	if priority == "" {
		return nil
	}
	return func(task *Task) {
		task.Priority = priority
	}
}

func WithStatus(status Status) TaskOption {
	if status == "" {
		return nil
	}
	return func(task *Task) {
		task.Status = status
	}
}

func WithProgress(progress int) TaskOption {
	return func(task *Task) {
		task.Progress = progress
	}
}

func WithDueDate(dueDate *time.Time) TaskOption {
	return func(task *Task) {
		task.DueDate = dueDate
	}
}

func WithTimeEstimate(estimate *TimeEstimate) TaskOption {
	return func(task *Task) {
		task.TimeEstimate = estimate
	}
}

func WithTimeSpent(seconds int64) TaskOption {
	return func(task *Task) {
		task.TimeSpent = seconds
	}
}

// Apply применяет опции, пропуская nil (опции с пустым значением)
func (t *Task) Apply(options ...TaskOption) {
	for _, opt := range options {
		if opt != nil {
			opt(t)
		}
	}
}

// FieldError описывает нарушение инварианта модели
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate проверяет инварианты задачи до обращения к хранилищу
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &FieldError{Field: "title", Reason: "название не может быть пустым"}
	}
	if t.Progress < 0 || t.Progress > 100 {
		return &FieldError{Field: "progress", Reason: "прогресс должен быть в диапазоне 0..100"}
	}
	if !ValidPriority(t.Priority) {
		return &FieldError{Field: "priority", Reason: fmt.Sprintf("неизвестный приоритет %q", t.Priority)}
	}
	if !ValidStatus(t.Status) {
		return &FieldError{Field: "status", Reason: fmt.Sprintf("неизвестный статус %q", t.Status)}
	}
	if t.TimeEstimate != nil {
		if err := t.TimeEstimate.validate(); err != nil {
			return &FieldError{Field: "time_estimate", Reason: err.Error()}
		}
	}
	for _, st := range t.Subtasks {
		if strings.TrimSpace(st.Title) == "" {
			return &FieldError{Field: "subtasks.title", Reason: "название подзадачи не может быть пустым"}
		}
	}
	return nil
}

func (e TimeEstimate) validate() error {
	if e.Value < 0 {
		return errors.New("оценка не может быть отрицательной")
	}
	if !ValidUnit(e.Unit) {
		return fmt.Errorf("неизвестная единица %q", e.Unit)
	}
	return nil
}
