package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// CheckFunc проверяет доступность зависимости
type CheckFunc func(ctx context.Context) error

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	checks map[string]CheckFunc
	logger *zap.Logger
}

// NewHealthHandler создает новый HealthHandler. checks содержит проверки по имени зависимости.
func NewHealthHandler(checks map[string]CheckFunc, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) run(ctx context.Context) (HealthResponse, bool) {
	// Проверяем зависимости с таймаутом
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := HealthResponse{Status: "ok", Dependencies: make(map[string]string, len(names))}
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			healthy = false
			response.Status = "degraded"
			response.Dependencies[name] = "unavailable"
			h.logger.Warn("health check: dependency unavailable", zap.String("dependency", name), zap.Error(err))
			continue
		}
		response.Dependencies[name] = "ok"
	}

	return response, healthy
}

// Health возвращает статус приложения и его зависимостей
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response, healthy := h.run(r.Context())

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response, h.logger)
}

// Ready возвращает готовность приложения принимать трафик
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, healthy := h.run(r.Context()); !healthy {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
