package handlers

import (
	"context"
	"net/http"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const serviceName = "taskflow"

type SystemHandler struct {
	Auth   Authenticator
	Health HealthChecker
}

func NewSystemHandler(auth Authenticator, health HealthChecker) *SystemHandler {
	return &SystemHandler{Auth: auth, Health: health}
}

func (h *SystemHandler) Routes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/me", h.Me)
		r.Post("/signin", h.SignIn)
		r.Post("/signout", h.SignOut)
	})
}

func (h *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Health.HealthCheck(ctx); err != nil {
		logger.Warn("HTTP: Хранилище недоступно", zap.Error(err))
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("service", serviceName),
			toPayload("status", "unavailable"),
			toPayload("error", err.Error()),
		)
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("service", serviceName),
		toPayload("status", "ok"),
	)
}

func (h *SystemHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := h.Auth.UserID(r.Context())
	if err != nil {
		responseWithError(w, r, http.StatusUnauthorized, "вход не выполнен")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("user_id", id))
}

func (h *SystemHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var request dto.SignInRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.UserID == uuid.Nil {
		responseWithError(w, r, http.StatusBadRequest, "user_id не может быть пустым")
		return
	}
	h.Auth.SignIn(request.UserID)
	responseWithJSON(w, http.StatusOK, toPayload("user_id", request.UserID))
}

func (h *SystemHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.Auth.SignOut()
	responseWithData(w, http.StatusNoContent, nil)
}
