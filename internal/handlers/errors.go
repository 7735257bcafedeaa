package handlers

import (
	"errors"
	"net/http"
	"taskflow/internal/logger"
	"taskflow/internal/middleware"
	"taskflow/internal/service"

	"go.uber.org/zap"
)

// handleError отвечает на ошибку сервиса. Бизнес-ошибки отдаются с кодом,
// остальные как 500.
func handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	var businessErr *service.BusinessError
	if errors.As(err, &businessErr) {
		statusCode := mapBusinessErrorToHTTP(businessErr.Code)

		logger.Warn("HTTP: Бизнес-ошибка",
			zap.String("operation", operation),
			zap.String("error_code", businessErr.Code),
			zap.Int("http_status", statusCode),
			zap.Error(err))

		responseWithJSON(w, statusCode,
			toPayload("error", businessErr.Code),
			toPayload("message", businessErr.Message),
			toPayload("details", businessErr.Details),
			toPayload("request_id", middleware.GetRequestID(r.Context())),
		)
		return
	}

	logger.Error("HTTP: Ошибка Service", err,
		zap.String("operation", operation),
		zap.String("client_ip", r.RemoteAddr))
	responseWithError(w, r, http.StatusInternalServerError, "внутренняя ошибка сервера")
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case service.CodeNotAuthenticated:
		return http.StatusUnauthorized
	case service.CodeRemoteWriteFailed:
		return http.StatusBadGateway
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeSyncFailed:
		return http.StatusServiceUnavailable
	case service.CodeRestoreExpired:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}
