package handlers

import (
	"encoding/json"
	"net/http"
	"taskflow/internal/logger"
	"taskflow/internal/middleware"

	"go.uber.org/zap"
)

type Payload struct {
	Key     string
	Payload any
}

func toPayload(key string, pl any) Payload {
	return Payload{Key: key, Payload: pl}
}

func responseWithJSON(w http.ResponseWriter, code int, payload ...Payload) {
	storage := make(map[string]any, len(payload))
	for _, pl := range payload {
		storage[pl.Key] = pl.Payload
	}
	writeJSON(w, code, storage)
}

// responseWithData отдаёт значение без обёртки
func responseWithData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, data)
}

func responseWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	responseWithJSON(w, code,
		toPayload("error", message),
		toPayload("request_id", middleware.GetRequestID(r.Context())),
	)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if code == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("HTTP: Ошибка записи ответа", zap.Error(err))
	}
}
