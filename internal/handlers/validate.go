package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"taskflow/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

func checkContentType(r *http.Request, target string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == target
}

// decodeJSON проверяет Content-Type и читает тело. При ошибке ответ уже записан.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: Неверный тип контента",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, r, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return false
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, r, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return false
	}
	return true
}

// pathID читает uuid из параметра маршрута. При ошибке ответ уже записан.
func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err == nil && id == uuid.Nil {
		err = errors.New("nil id")
	}
	if err != nil {
		logger.Warn("HTTP: Не удалось получить id",
			zap.String("param", param),
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, r, http.StatusBadRequest, "неверный "+param+": "+err.Error())
		return uuid.Nil, false
	}
	return id, true
}
