package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"taskflow/internal/logger"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const RequestIdKey contextKey = "request_id"

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get("X-Request-ID")
		if requestId == "" {
			requestId = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestId)

		ctx := context.WithValue(r.Context(), RequestIdKey, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIdKey).(string); ok {
		return id
	}
	return ""
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
		sw.ResponseWriter.WriteHeader(code)
	}
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.size += n
	return n, err
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestId := GetRequestID(r.Context())

		logger.HttpRequestInfo(r, "HTTP_IN: Начало запроса", zap.String("request_id", requestId))

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logLevel := zap.InfoLevel
		if sw.status >= 400 && sw.status < 500 {
			logLevel = zap.WarnLevel
		} else if sw.status >= 500 {
			logLevel = zap.ErrorLevel
		}
		logger.Log(
			logLevel,
			"HTTP_OUT: Завершение запроса",
			zap.String("request_id", requestId),
			zap.Int("status", sw.status),
			zap.Int("bytes_written", sw.size),
			zap.Duration("ms", time.Since(start)),
		)
	})
}

// Recover превращает панику обработчика в 500
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Logger.Error("HTTP: Паника в обработчике",
					zap.Any("panic", rec),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.ByteString("stack", debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error":      "internal_error",
					"request_id": GetRequestID(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Timeout ограничивает контекст запроса. Если обработчик ничего не успел
// записать до дедлайна, клиент получает 504.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.wroteHeader || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}
			logger.Warn(
				"HTTP: таймаут запроса",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("ms", timeout),
			)
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"error":      "request_timeout",
				"message":    "Запрос выполнялся слишком долго",
				"request_id": GetRequestID(r.Context()),
			})
		})
	}
}

type clientInfo struct {
	count   int
	resetAt time.Time
}

// RateLimit - фиксированное окно в минуту на IP
func RateLimit(rpm int) func(http.Handler) http.Handler {
	clients := make(map[string]*clientInfo)
	var mtx sync.Mutex
	window := time.Minute

	return func(next http.Handler) http.Handler {
		if rpm <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getIp(r)
			now := time.Now()

			mtx.Lock()
			info, exists := clients[ip]
			switch {
			case !exists:
				info = &clientInfo{count: 1, resetAt: now.Add(window)}
				clients[ip] = info
			case now.After(info.resetAt):
				info.count = 1
				info.resetAt = now.Add(window)
			case info.count >= rpm:
				retryAfter := int(info.resetAt.Sub(now).Seconds())
				mtx.Unlock()

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "rate_limit_exceeded",
					"message":     "Слишком много запросов. Попробуйте позже.",
					"retry_after": retryAfter,
					"request_id":  GetRequestID(r.Context()),
				})
				return
			default:
				info.count++
			}

			remaining := max(rpm-info.count, 0)
			resetUnix := info.resetAt.Unix()
			mtx.Unlock()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rpm))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetUnix, 10))

			next.ServeHTTP(w, r)
		})
	}
}

func getIp(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
