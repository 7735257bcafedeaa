package dto

import (
	"taskflow/internal/models/session"
	"taskflow/internal/models/task"
	"taskflow/internal/service"
	"taskflow/internal/timefmt"
	"time"

	"github.com/google/uuid"
)

type SubtaskRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Completed    bool               `json:"completed"`
	TimeEstimate *task.TimeEstimate `json:"time_estimate,omitempty"`
}

type CreateTaskRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Category     []string           `json:"category"`
	Tags         []string           `json:"tags"`
	Priority     task.Priority      `json:"priority"`
	Status       task.Status        `json:"status"`
	DueDate      *time.Time         `json:"due_date,omitempty"`
	TimeEstimate *task.TimeEstimate `json:"time_estimate,omitempty"`
	Subtasks     []SubtaskRequest   `json:"subtasks"`
}

func (r CreateTaskRequest) ToNewTask() service.NewTask {
	nt := service.NewTask{
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Tags:         r.Tags,
		Priority:     r.Priority,
		Status:       r.Status,
		DueDate:      r.DueDate,
		TimeEstimate: r.TimeEstimate,
	}
	for _, st := range r.Subtasks {
		nt.Subtasks = append(nt.Subtasks, service.NewSubtask{
			Title:        st.Title,
			Description:  st.Description,
			Completed:    st.Completed,
			TimeEstimate: st.TimeEstimate,
		})
	}
	return nt
}

// UpdateTaskRequest - частичное обновление, отсутствующие поля не меняются
type UpdateTaskRequest struct {
	Title        *string            `json:"title,omitempty"`
	Description  *string            `json:"description,omitempty"`
	Category     []string           `json:"category,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	Priority     *task.Priority     `json:"priority,omitempty"`
	Status       *task.Status       `json:"status,omitempty"`
	Progress     *int               `json:"progress,omitempty"`
	DueDate      *time.Time         `json:"due_date,omitempty"`
	TimeEstimate *task.TimeEstimate `json:"time_estimate,omitempty"`
}

func (r UpdateTaskRequest) Options() []task.TaskOption {
	var opts []task.TaskOption
	if r.Title != nil {
		opts = append(opts, task.WithTitle(*r.Title))
	}
	if r.Description != nil {
		opts = append(opts, task.WithDescription(*r.Description))
	}
	if r.Category != nil {
		opts = append(opts, task.WithCategory(r.Category))
	}
	if r.Tags != nil {
		opts = append(opts, task.WithTags(r.Tags))
	}
	if r.Priority != nil {
		opts = append(opts, task.WithPriority(*r.Priority))
	}
	if r.Status != nil {
		opts = append(opts, task.WithStatus(*r.Status))
	}
	if r.Progress != nil {
		opts = append(opts, task.WithProgress(*r.Progress))
	}
	if r.DueDate != nil {
		opts = append(opts, task.WithDueDate(r.DueDate))
	}
	if r.TimeEstimate != nil {
		opts = append(opts, task.WithTimeEstimate(r.TimeEstimate))
	}
	return opts
}

type CategoryRequest struct {
	Category string `json:"category"`
	Action   string `json:"action"` // "add" или "remove"
}

type ProgressRequest struct {
	Progress int `json:"progress"`
}

type DependencyRequest struct {
	DependsOn uuid.UUID `json:"depends_on"`
}

type ParseRequest struct {
	Input  string `json:"input"`
	Create bool   `json:"create"`
}

type TaskIDRequest struct {
	TaskID uuid.UUID `json:"task_id"`
}

type AnnotateRequest struct {
	Note string       `json:"note"`
	Type session.Type `json:"session_type"`
}

type OnlineRequest struct {
	Online bool `json:"online"`
}

type SignInRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type TaskResponse struct {
	*task.Task
	Tracked     int64  `json:"tracked"`
	TrackedText string `json:"tracked_text"`
	Tracking    bool   `json:"tracking"`
}

// TimeSource - учёт времени по задачам для ответов API
type TimeSource interface {
	TaskTime(taskID uuid.UUID) int64
	IsTrackingTask(taskID uuid.UUID) bool
}

func FromTask(t *task.Task, times TimeSource) TaskResponse {
	resp := TaskResponse{Task: t}
	if times != nil {
		resp.Tracked = times.TaskTime(t.ID)
		resp.Tracking = times.IsTrackingTask(t.ID)
	}
	resp.TrackedText = timefmt.Detailed(resp.Tracked)
	return resp
}

func FromTaskList(tasks []*task.Task, times TimeSource) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, times)
	}
	return result
}

type SessionResponse struct {
	session.TimeSession
	Elapsed     int64  `json:"elapsed"`
	ElapsedText string `json:"elapsed_text"`
}

func FromSession(s session.TimeSession, now time.Time) SessionResponse {
	elapsed := s.Elapsed(now)
	return SessionResponse{TimeSession: s, Elapsed: elapsed, ElapsedText: timefmt.Clock(elapsed)}
}

func FromSessionList(sessions []session.TimeSession, now time.Time) []SessionResponse {
	result := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		result[i] = FromSession(s, now)
	}
	return result
}

type TrackingResponse struct {
	Tracking     bool             `json:"tracking"`
	ActiveTaskID *uuid.UUID       `json:"active_task_id,omitempty"`
	Current      *SessionResponse `json:"current,omitempty"`
}
