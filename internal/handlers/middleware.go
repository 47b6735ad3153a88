package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avc/storefront-orders/internal/cache"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	RequestIDKey contextKey = "request_id"
)

// IdempotencyKeyHeader: заголовок с ключом идемпотентности запроса
const IdempotencyKeyHeader = "Idempotency-Key"

// TokenValidator проверяет токен и возвращает внешний идентификатор пользователя
type TokenValidator interface {
	Validate(token string) (string, error)
}

// AuthMiddleware проверяет JWT токен и извлекает идентификатор пользователя
func AuthMiddleware(tokens TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorBody(w, http.StatusUnauthorized, "Unauthorized", "authorization header is required", logger)
				return
			}

			// Извлекаем токен из заголовка "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeErrorBody(w, http.StatusUnauthorized, "Unauthorized", "bearer token is required", logger)
				return
			}

			userID, err := tokens.Validate(parts[1])
			if err != nil {
				writeErrorBody(w, http.StatusUnauthorized, "Unauthorized", "invalid token", logger)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware генерирует уникальный request ID
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.New().String()
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware логирует HTTP запросы
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Используем chi middleware wrapper для получения статуса
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				requestID, _ := r.Context().Value(RequestIDKey).(string)
				logger.Info("HTTP request",
					zap.String("request_id", requestID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RecoveryMiddleware обрабатывает паники
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID, _ := r.Context().Value(RequestIDKey).(string)
					logger.Error("panic recovered",
						zap.String("request_id", requestID),
						zap.Any("panic", rec),
						zap.Stack("stack"),
					)
					writeErrorBody(w, http.StatusInternalServerError, kindInternal, "internal server error", logger)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter учитывает запрос субъекта в окне
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error)
}

// RateLimitMiddleware ограничивает частоту запросов пользователя.
// Если хранилище счетчиков недоступно, запрос пропускается.
func RateLimitMiddleware(limiter RateLimiter, scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, retryAfter, err := limiter.Allow(r.Context(), scope, userID)
			if err != nil {
				logger.Warn("rate limit check failed", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				seconds := int(retryAfter.Round(time.Second).Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeErrorBody(w, http.StatusTooManyRequests, kindRateLimited, "too many requests", logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IdempotencyStore хранит ответы по ключу идемпотентности
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key string) (*cache.StoredResponse, error)
	Complete(ctx context.Context, scope, key string, resp *cache.StoredResponse) error
	Release(ctx context.Context, scope, key string) error
}

// IdempotencyMiddleware повторяет сохраненный успешный ответ для того же пользователя и ключа.
// Параллельный запрос с тем же ключом получает 409. Неуспешный ответ не сохраняется.
func IdempotencyMiddleware(store IdempotencyStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			userID, ok := GetUserID(r.Context())
			if key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			stored, err := store.Reserve(r.Context(), userID, key)
			switch {
			case errors.Is(err, cache.ErrRequestInProgress):
				writeErrorBody(w, http.StatusConflict, kindRequestInProgress,
					"request with this idempotency key is in progress", logger)
				return
			case err != nil:
				logger.Warn("idempotency check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			case stored != nil:
				replay(w, stored)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)

			handled := false
			defer func() {
				// Паника в обработчике: ключ освобождается, паника идет дальше
				if !handled {
					releaseKey(r, store, userID, key, logger)
				}
			}()

			next.ServeHTTP(ww, r)
			handled = true

			status := ww.Status()
			if status >= http.StatusOK && status < http.StatusMultipleChoices {
				resp := &cache.StoredResponse{
					Status: status,
					Header: http.Header{"Content-Type": []string{ww.Header().Get("Content-Type")}},
					Body:   body.Bytes(),
				}
				ctx, cancel := storeContext(r)
				defer cancel()
				if err := store.Complete(ctx, userID, key, resp); err != nil {
					logger.Warn("failed to store idempotent response", zap.Error(err))
				}
				return
			}

			releaseKey(r, store, userID, key, logger)
		})
	}
}

// storeContext: ответ уже отправлен, поэтому ключ обновляется вне контекста запроса
func storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), 3*time.Second)
}

func releaseKey(r *http.Request, store IdempotencyStore, userID, key string, logger *zap.Logger) {
	ctx, cancel := storeContext(r)
	defer cancel()
	if err := store.Release(ctx, userID, key); err != nil {
		logger.Warn("failed to release idempotency key", zap.Error(err))
	}
}

func replay(w http.ResponseWriter, stored *cache.StoredResponse) {
	for k, values := range stored.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

// GetUserID извлекает внешний идентификатор пользователя из контекста
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
