// Package health отдаёт пробы /healthz, /livez и /readyz для ops-сервера.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Status — итог проверки компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 2 * time.Second

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент; ctx ограничен таймаутом хендлера.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает зарегистрированные проверки.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	critical  map[string]bool
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    *log.Entry
}

// NewHandler создаёт handler с версией сборки в ответе.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		critical:  make(map[string]bool),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
		logger:    log.WithField("component", "health"),
	}
}

// RegisterChecker регистрирует критичную проверку: её провал делает сервис не готовым.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.register(name, checker, true)
}

// RegisterOptional регистрирует проверку, провал которой только понижает статус до degraded.
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, checker, false)
}

func (h *Handler) register(name string, checker Checker, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
	h.critical[name] = critical
}

// Register вешает пробы на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/healthz", h)
	mux.HandleFunc("/livez", LivenessHandler)
	mux.HandleFunc("/readyz", h.ReadinessHandler)
}

// Run выполняет все проверки и сводит их в общий статус.
func (h *Handler) Run(ctx context.Context) (Status, map[string]Check) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]Checker, len(h.checkers))
	critical := make(map[string]bool, len(h.critical))
	for name, checker := range h.checkers {
		checkers[name] = checker
		critical[name] = h.critical[name]
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	checks := make(map[string]Check, len(names))
	overall := StatusHealthy
	for _, name := range names {
		check := checkers[name].Check(ctx)
		if check.Name == "" {
			check.Name = name
		}
		checks[name] = check

		if check.Status == StatusHealthy {
			continue
		}
		h.logger.WithFields(log.Fields{"check": name, "status": check.Status}).Warn(check.Message)
		if check.Status == StatusUnhealthy && critical[name] {
			overall = StatusUnhealthy
		} else if overall == StatusHealthy {
			overall = StatusDegraded
		}
	}
	return overall, checks
}

// ServeHTTP отдаёт подробный отчёт; 503 только при провале критичной проверки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, checks := h.Run(r.Context())

	response := Response{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler всегда отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, если провалена хотя бы одна критичная проверка.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if status, _ := h.Run(r.Context()); status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker оборачивает функцию проверки.
type SimpleChecker struct {
	name    string
	checkFn func(ctx context.Context) error
}

// NewSimpleChecker создаёт проверку из функции.
func NewSimpleChecker(name string, checkFn func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{
		name:    name,
		checkFn: checkFn,
	}
}

// Check выполняет функцию и замеряет длительность.
func (c *SimpleChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.checkFn(ctx)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

// Pinger — хранилище, которое умеет проверять соединение.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewStorageChecker проверяет доступность хранилища через Ping.
func NewStorageChecker(name string, p Pinger) *SimpleChecker {
	return NewSimpleChecker(name, p.Ping)
}
