package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"taskflow/internal/parser"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TaskHandler struct {
	Tasks  TaskService
	Times  dto.TimeSource
	Parser parser.Parser
}

func NewTaskHandler(tasks TaskService, times dto.TimeSource, p parser.Parser) *TaskHandler {
	return &TaskHandler{Tasks: tasks, Times: times, Parser: p}
}

func (h *TaskHandler) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)              // GET /tasks?view=active
		r.Post("/", h.PostTask)              // POST /tasks
		r.Get("/deleted", h.GetDeletedTasks) // GET /tasks/deleted

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Patch("/", h.UpdateTask)
			r.Delete("/", h.DeleteTask)

			r.Post("/restore", h.RestoreTask)
			r.Post("/complete", h.CompleteTask)
			r.Post("/category", h.UpdateCategory)
			r.Put("/progress", h.UpdateProgress)

			r.Post("/dependencies", h.AddDependency)
			r.Delete("/dependencies/{dependencyID}", h.RemoveDependency)

			r.Post("/subtasks", h.AddSubtask)
			r.Delete("/subtasks/{subtaskID}", h.DeleteSubtask)
			r.Post("/subtasks/{index}/toggle", h.ToggleSubtask)
		})
	})
	r.Post("/parse", h.Parse)
}

// respondTask пишет задачу или ошибку сервиса
func (h *TaskHandler) respondTask(w http.ResponseWriter, r *http.Request, start time.Time, operation string, status int, t *task.Task, err error) {
	if err != nil {
		handleError(w, r, err, operation)
		return
	}
	logger.Info("HTTP_OUT: Задача изменена",
		zap.String("operation", operation),
		zap.String("task_id", t.ID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", status))
	responseWithData(w, status, dto.FromTask(t, h.Times))
}

func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var tasks []*task.Task
	switch view := r.URL.Query().Get("view"); view {
	case "", "all":
		tasks = h.Tasks.Tasks()
	case "active":
		tasks = h.Tasks.ActiveTasks()
	default:
		logger.Warn("HTTP: Неверное значение параметра",
			zap.String("query", "view"),
			zap.String("value", view))
		responseWithError(w, r, http.StatusBadRequest, "view должен быть all или active")
		return
	}
	responseWithData(w, http.StatusOK, dto.FromTaskList(tasks, h.Times))
}

func (h *TaskHandler) GetDeletedTasks(w http.ResponseWriter, r *http.Request) {
	responseWithData(w, http.StatusOK, dto.FromTaskList(h.Tasks.DeletedTasks(), h.Times))
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.Tasks.Get(id)
	if err != nil {
		handleError(w, r, err, "get_task")
		return
	}
	responseWithData(w, http.StatusOK, dto.FromTask(t, h.Times))
}

func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var request dto.CreateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Title) == "" {
		logger.Warn("HTTP: Ошибка валидации",
			zap.String("field", "title"),
			zap.String("error", "empty_field"),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, r, http.StatusBadRequest, "название не может быть пустым")
		return
	}

	t, err := h.Tasks.Add(r.Context(), request.ToNewTask())
	h.respondTask(w, r, start, "create_task", http.StatusCreated, t, err)
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var request dto.UpdateTaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	t, err := h.Tasks.Update(r.Context(), id, request.Options()...)
	h.respondTask(w, r, start, "update_task", http.StatusOK, t, err)
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Tasks.Delete(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_task")
		return
	}
	logger.Info("HTTP_OUT: Задача удалена", zap.String("task_id", id.String()))
	responseWithData(w, http.StatusNoContent, nil)
}

func (h *TaskHandler) RestoreTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.Tasks.Restore(r.Context(), id)
	h.respondTask(w, r, start, "restore_task", http.StatusOK, t, err)
}

func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.Tasks.CompleteTask(r.Context(), id)
	h.respondTask(w, r, start, "complete_task", http.StatusOK, t, err)
}

func (h *TaskHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var request dto.CategoryRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	var add bool
	switch request.Action {
	case "add":
		add = true
	case "remove":
	default:
		responseWithError(w, r, http.StatusBadRequest, "action должен быть add или remove")
		return
	}

	t, err := h.Tasks.UpdateCategory(r.Context(), id, request.Category, add)
	h.respondTask(w, r, start, "update_category", http.StatusOK, t, err)
}

func (h *TaskHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var request dto.ProgressRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	t, err := h.Tasks.UpdateProgress(r.Context(), id, request.Progress)
	h.respondTask(w, r, start, "update_progress", http.StatusOK, t, err)
}

func (h *TaskHandler) AddDependency(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var request dto.DependencyRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	t, err := h.Tasks.AddDependency(r.Context(), id, request.DependsOn)
	h.respondTask(w, r, start, "add_dependency", http.StatusOK, t, err)
}

func (h *TaskHandler) RemoveDependency(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	dependencyID, ok := pathID(w, r, "dependencyID")
	if !ok {
		return
	}
	t, err := h.Tasks.RemoveDependency(r.Context(), id, dependencyID)
	h.respondTask(w, r, start, "remove_dependency", http.StatusOK, t, err)
}

func (h *TaskHandler) AddSubtask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var request dto.SubtaskRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	t, err := h.Tasks.AddSubtask(r.Context(), id, request.Title, request.Description)
	h.respondTask(w, r, start, "add_subtask", http.StatusCreated, t, err)
}

func (h *TaskHandler) DeleteSubtask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	subtaskID, ok := pathID(w, r, "subtaskID")
	if !ok {
		return
	}
	t, err := h.Tasks.DeleteSubtask(r.Context(), id, subtaskID)
	h.respondTask(w, r, start, "delete_subtask", http.StatusOK, t, err)
}

func (h *TaskHandler) ToggleSubtask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		logger.Warn("HTTP: Ошибка получения параметра", zap.Error(err))
		responseWithError(w, r, http.StatusBadRequest, "неверный индекс подзадачи")
		return
	}
	t, err := h.Tasks.ToggleSubtask(r.Context(), id, index)
	h.respondTask(w, r, start, "toggle_subtask", http.StatusOK, t, err)
}

// Parse разбирает текст в черновик. С create=true черновик сразу сохраняется,
// даже если разбор деградировал.
func (h *TaskHandler) Parse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var request dto.ParseRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Input) == "" {
		responseWithError(w, r, http.StatusBadRequest, "пустой ввод")
		return
	}

	draft := h.Parser.Parse(r.Context(), request.Input)
	if !request.Create {
		responseWithJSON(w, http.StatusOK, toPayload("draft", draft))
		return
	}

	t, err := h.Tasks.AddFromDraft(r.Context(), draft)
	if err != nil {
		handleError(w, r, err, "create_from_draft")
		return
	}
	logger.Info("HTTP_OUT: Задача создана из текста",
		zap.String("task_id", t.ID.String()),
		zap.Bool("degraded", draft.Error != ""),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusCreated,
		toPayload("draft", draft),
		toPayload("task", dto.FromTask(t, h.Times)),
	)
}
