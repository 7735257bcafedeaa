package handlers

import (
	"context"
	"fmt"
	"net/http"
	"taskflow/internal/analytics"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"
	"taskflow/internal/models/session"
	"taskflow/internal/service"
	"taskflow/internal/timefmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type TrackingHandler struct {
	Time  TimeService
	Sync  SyncService
	Tasks TaskService
	Clock clockwork.Clock
}

func NewTrackingHandler(tracker TimeService, syncer SyncService, tasks TaskService, clock clockwork.Clock) *TrackingHandler {
	return &TrackingHandler{Time: tracker, Sync: syncer, Tasks: tasks, Clock: clock}
}

func (h *TrackingHandler) Routes(r chi.Router) {
	r.Route("/tracking", func(r chi.Router) {
		r.Get("/", h.GetTracking)
		r.Post("/start", h.Start)
		r.Post("/pause", h.Pause)
		r.Post("/stop", h.Stop)
		r.Put("/active", h.SetActiveTask)
		r.Get("/sessions", h.GetSessions)
		r.Get("/today", h.GetToday)
		r.Patch("/sessions/{id}", h.Annotate)
		r.Get("/tasks/{id}", h.GetTaskTime)
	})

	r.Route("/sync", func(r chi.Router) {
		r.Get("/", h.GetSyncStatus)
		r.Get("/pending", h.GetPending)
		r.Post("/now", h.SyncNow)
		r.Put("/online", h.SetOnline)
		r.Post("/pause", h.PauseSync)
		r.Post("/resume", h.ResumeSync)
	})

	r.Get("/stats", h.GetStats)
	r.Get("/stats/tasks", h.GetTaskLogs)
}

func (h *TrackingHandler) GetTracking(w http.ResponseWriter, r *http.Request) {
	resp := dto.TrackingResponse{}
	if active := h.Time.ActiveTaskID(); active != uuid.Nil {
		resp.ActiveTaskID = &active
	}
	if cur, ok := h.Time.Current(); ok {
		s := dto.FromSession(cur, h.Clock.Now())
		resp.Tracking = true
		resp.Current = &s
	}
	responseWithData(w, http.StatusOK, resp)
}

func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var request dto.TaskIDRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.TaskID == uuid.Nil {
		responseWithError(w, r, http.StatusBadRequest, "task_id не может быть пустым")
		return
	}

	s, err := h.Time.Start(r.Context(), request.TaskID)
	if err != nil {
		handleError(w, r, err, "start_tracking")
		return
	}
	logger.Info("HTTP_OUT: Учёт времени начат",
		zap.String("task_id", request.TaskID.String()),
		zap.String("session_id", s.ID.String()))
	responseWithData(w, http.StatusOK, dto.FromSession(s, h.Clock.Now()))
}

func (h *TrackingHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.closeSession(w, r, h.Time.Pause, "pause_tracking")
}

func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.closeSession(w, r, h.Time.Stop, "stop_tracking")
}

func (h *TrackingHandler) closeSession(
	w http.ResponseWriter,
	r *http.Request,
	closeFn func(ctx context.Context) (*session.TimeSession, error),
	operation string,
) {
	closed, err := closeFn(r.Context())
	if err != nil {
		handleError(w, r, err, operation)
		return
	}
	if closed == nil {
		responseWithData(w, http.StatusNoContent, nil)
		return
	}
	responseWithData(w, http.StatusOK, dto.FromSession(*closed, h.Clock.Now()))
}

func (h *TrackingHandler) SetActiveTask(w http.ResponseWriter, r *http.Request) {
	var request dto.TaskIDRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	h.Time.SetActiveTask(request.TaskID)
	responseWithData(w, http.StatusNoContent, nil)
}

// GetSessions без from/to отдаёт закрытые сессии процесса,
// с диапазоном - запрос к хранилищу
func (h *TrackingHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("from") == "" && query.Get("to") == "" {
		responseWithData(w, http.StatusOK, dto.FromSessionList(h.Time.Sessions(), h.Clock.Now()))
		return
	}

	from, err := parseBound(query.Get("from"))
	if err != nil {
		responseWithError(w, r, http.StatusBadRequest, "неверный from: "+err.Error())
		return
	}
	to, err := parseBound(query.Get("to"))
	if err != nil {
		responseWithError(w, r, http.StatusBadRequest, "неверный to: "+err.Error())
		return
	}

	sessions, err := h.Time.SessionsBetween(r.Context(), from, to)
	if err != nil {
		handleError(w, r, err, "list_sessions")
		return
	}
	responseWithData(w, http.StatusOK, dto.FromSessionList(sessions, h.Clock.Now()))
}

func (h *TrackingHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Time.TodaySessions(r.Context())
	if err != nil {
		handleError(w, r, err, "today_sessions")
		return
	}
	now := h.Clock.Now()
	var total int64
	for _, s := range sessions {
		total += s.Elapsed(now)
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("sessions", dto.FromSessionList(sessions, now)),
		toPayload("total", total),
		toPayload("total_text", timefmt.HoursMinutes(total)),
	)
}

func (h *TrackingHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var request dto.AnnotateRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	s, err := h.Time.Annotate(r.Context(), id, request.Note, request.Type)
	if err != nil {
		handleError(w, r, err, "annotate_session")
		return
	}
	responseWithData(w, http.StatusOK, dto.FromSession(s, h.Clock.Now()))
}

func (h *TrackingHandler) GetTaskTime(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	seconds := h.Time.TaskTime(id)
	responseWithJSON(w, http.StatusOK,
		toPayload("task_id", id),
		toPayload("seconds", seconds),
		toPayload("clock", timefmt.Clock(seconds)),
		toPayload("text", timefmt.Detailed(seconds)),
		toPayload("tracking", h.Time.IsTrackingTask(id)),
	)
}

func (h *TrackingHandler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	responseWithData(w, http.StatusOK, h.Sync.Status())
}

func (h *TrackingHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	responseWithData(w, http.StatusOK, dto.FromSessionList(h.Sync.Pending(), h.Clock.Now()))
}

func (h *TrackingHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if err := h.Sync.SyncNow(r.Context()); err != nil {
		be := service.NewBusinessError(service.CodeSyncFailed, "синхронизация не выполнена",
			service.ToDetail("status", h.Sync.Status()))
		be.Err = err
		handleError(w, r, be, "sync_now")
		return
	}
	responseWithData(w, http.StatusOK, h.Sync.Status())
}

func (h *TrackingHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var request dto.OnlineRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if err := h.Sync.SetOnline(r.Context(), request.Online); err != nil {
		// смена связности применена, не удалась только отправка очереди
		logger.Warn("HTTP: Очередь не отправлена после восстановления сети", zap.Error(err))
	}
	responseWithData(w, http.StatusOK, h.Sync.Status())
}

func (h *TrackingHandler) PauseSync(w http.ResponseWriter, r *http.Request) {
	h.Sync.PauseSync()
	responseWithData(w, http.StatusOK, h.Sync.Status())
}

func (h *TrackingHandler) ResumeSync(w http.ResponseWriter, r *http.Request) {
	h.Sync.ResumeSync()
	responseWithData(w, http.StatusOK, h.Sync.Status())
}

func (h *TrackingHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := analytics.Calculate(h.Time.Sessions(), h.Tasks.Tasks())
	responseWithJSON(w, http.StatusOK,
		toPayload("stats", stats),
		toPayload("total_text", timefmt.Detailed(stats.TotalTracked)),
		toPayload("average_session_text", timefmt.Detailed(stats.AverageSession)),
	)
}

func (h *TrackingHandler) GetTaskLogs(w http.ResponseWriter, r *http.Request) {
	responseWithData(w, http.StatusOK, analytics.GroupByTask(h.Time.Sessions(), h.Tasks.Tasks()))
}

// parseBound принимает RFC3339 или дату YYYY-MM-DD; пустая строка - без границы
func parseBound(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("ожидается RFC3339 или YYYY-MM-DD: %q", value)
	}
	return t, nil
}
