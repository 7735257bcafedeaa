package handlers

import (
	"net/http"
	"taskflow/internal/focus"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type FocusHandler struct {
	Focus FocusService
}

func NewFocusHandler(f FocusService) *FocusHandler {
	return &FocusHandler{Focus: f}
}

func (h *FocusHandler) Routes(r chi.Router) {
	r.Route("/focus", func(r chi.Router) {
		r.Get("/", h.GetFocus)
		r.Post("/enter", h.Enter)
		r.Post("/exit", h.Exit)
		r.Post("/interruptions", h.AddInterruption)
		r.Get("/sessions", h.GetSessions)
		r.Get("/settings", h.GetSettings)
		r.Patch("/settings", h.UpdateSettings)
	})
}

func (h *FocusHandler) GetFocus(w http.ResponseWriter, r *http.Request) {
	payload := []Payload{toPayload("settings", h.Focus.Settings())}
	if cur, ok := h.Focus.Current(); ok {
		payload = append(payload, toPayload("current", cur))
	}
	responseWithJSON(w, http.StatusOK, payload...)
}

func (h *FocusHandler) Enter(w http.ResponseWriter, r *http.Request) {
	var request dto.TaskIDRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.TaskID == uuid.Nil {
		responseWithError(w, r, http.StatusBadRequest, "task_id не может быть пустым")
		return
	}

	current, err := h.Focus.Enter(r.Context(), request.TaskID)
	if err != nil {
		// фокус открыт, не запустился только таймер
		logger.Warn("HTTP: Таймер не запущен при входе в фокус", zap.Error(err))
		responseWithJSON(w, http.StatusOK,
			toPayload("session", current),
			toPayload("timer_error", err.Error()),
		)
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", current))
}

func (h *FocusHandler) Exit(w http.ResponseWriter, r *http.Request) {
	closed, err := h.Focus.Exit(r.Context())
	if err != nil {
		handleError(w, r, err, "exit_focus")
		return
	}
	if closed == nil {
		responseWithData(w, http.StatusNoContent, nil)
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("session", closed))
}

func (h *FocusHandler) AddInterruption(w http.ResponseWriter, r *http.Request) {
	count := h.Focus.AddInterruption(r.Context())
	responseWithJSON(w, http.StatusOK, toPayload("interruptions", count))
}

func (h *FocusHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	responseWithData(w, http.StatusOK, h.Focus.Sessions())
}

func (h *FocusHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	responseWithData(w, http.StatusOK, h.Focus.Settings())
}

func (h *FocusHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch focus.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	settings, err := h.Focus.UpdateSettings(r.Context(), patch)
	if err != nil {
		responseWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	responseWithData(w, http.StatusOK, settings)
}
