package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status представляет статус компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check — результат проверки одного компонента.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — ответ health-эндпоинта.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// CheckFunc проверяет доступность зависимости (Postgres, Kafka, Redis).
type CheckFunc func() error

// Handler агрегирует проверки зависимостей сервиса.
type Handler struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	degraded  map[string]bool
	version   string
	startTime time.Time
}

// NewHandler создаёт health handler.
func NewHandler(version string) *Handler {
	return &Handler{
		checks:    make(map[string]CheckFunc),
		degraded:  make(map[string]bool),
		version:   version,
		startTime: time.Now(),
	}
}

// Register добавляет проверку критичной зависимости: её отказ делает
// сервис unhealthy и снимает readiness.
func (h *Handler) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
}

// RegisterOptional добавляет проверку необязательной зависимости: её отказ
// переводит сервис в degraded, но readiness сохраняется.
func (h *Handler) RegisterOptional(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = fn
	h.degraded[name] = true
}

func (h *Handler) snapshot() (map[string]CheckFunc, map[string]bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, fn := range h.checks {
		checks[name] = fn
	}
	degraded := make(map[string]bool, len(h.degraded))
	for name := range h.degraded {
		degraded[name] = true
	}
	return checks, degraded
}

func runCheck(name string, fn CheckFunc) Check {
	start := time.Now()
	err := fn()
	check := Check{
		Name:       name,
		Status:     StatusHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// ServeHTTP отдаёт полный health-отчёт со статусами всех зависимостей.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, degraded := h.snapshot()

	results := make(map[string]Check, len(checks))
	overall := StatusHealthy
	for name, fn := range checks {
		check := runCheck(name, fn)
		if check.Status == StatusUnhealthy {
			if degraded[name] {
				check.Status = StatusDegraded
				if overall == StatusHealthy {
					overall = StatusDegraded
				}
			} else {
				overall = StatusUnhealthy
			}
		}
		results[name] = check
	}

	response := Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        results,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler — простой liveness probe, всегда 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler снимает готовность при отказе критичной зависимости.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	checks, degraded := h.snapshot()

	for name, fn := range checks {
		if degraded[name] {
			continue
		}
		if err := fn(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
