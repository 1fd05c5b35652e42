// Package health отдаёт состояние сервиса и его зависимостей: хранилища
// номеров и outbox, из которого события уходят в Kafka.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

// defaultCheckTimeout ограничивает одну проверку, чтобы зависшая БД не блокировала probe.
const defaultCheckTimeout = 2 * time.Second

// Status — итог проверки.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded не снимает сервис с readiness: номера выдаются, отстаёт только побочная работа.
	StatusDegraded Status = "degraded"
)

// worse возвращает более тяжёлый из двух статусов.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler хранит зарегистрированные проверки и отдаёт их по HTTP.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		out[name] = c
	}
	return out
}

// Evaluate запускает все проверки параллельно и сводит их в общий статус.
func (h *Handler) Evaluate(ctx context.Context) Response {
	checkers := h.snapshot()

	var (
		mu     sync.Mutex
		wg     conc.WaitGroup
		checks = make(map[string]Check, len(checkers))
	)
	for name, checker := range checkers {
		wg.Go(func() {
			res := checker.Check(ctx)
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		})
	}
	wg.Wait()

	overall := StatusHealthy
	for _, c := range checks {
		overall = worse(overall, c.Status)
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

// ServeHTTP отдаёт полный отчёт; 503 только при unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler отвечает 200, пока процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, если хоть одна проверка unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker превращает функцию вида Ping в Checker.
type SimpleChecker struct {
	name    string
	timeout time.Duration
	probe   func(ctx context.Context) error
}

func NewSimpleChecker(name string, probe func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, timeout: defaultCheckTimeout, probe: probe}
}

// WithTimeout переопределяет таймаут проверки.
func (c *SimpleChecker) WithTimeout(timeout time.Duration) *SimpleChecker {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

func (c *SimpleChecker) Check(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.probe(ctx)
	res := Check{Name: c.name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// OutboxStatsReader — часть OutboxRepository, нужная для проверки backlog.
type OutboxStatsReader interface {
	Stats(ctx context.Context) (domain.OutboxStats, error)
}

// OutboxBacklogChecker сообщает degraded, когда самое старое неотправленное
// событие ждёт дольше maxAge. Ошибка чтения статистики делает проверку unhealthy.
type OutboxBacklogChecker struct {
	stats  OutboxStatsReader
	maxAge time.Duration
	now    func() time.Time
}

// NewOutboxBacklogChecker создаёт проверку; maxAge <= 0 отключает порог возраста.
func NewOutboxBacklogChecker(stats OutboxStatsReader, maxAge time.Duration) *OutboxBacklogChecker {
	return &OutboxBacklogChecker{stats: stats, maxAge: maxAge, now: time.Now}
}

func (c *OutboxBacklogChecker) Check(ctx context.Context) Check {
	start := time.Now()
	res := Check{Name: "outbox", Status: StatusHealthy}

	st, err := c.stats.Stats(ctx)
	res.DurationMs = time.Since(start).Milliseconds()
	switch {
	case err != nil:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	case st.PendingCount == 0 || st.OldestPendingAt.IsZero():
	default:
		age := c.now().Sub(st.OldestPendingAt)
		if c.maxAge > 0 && age > c.maxAge {
			res.Status = StatusDegraded
		}
		res.Message = fmt.Sprintf("%d pending, oldest %s", st.PendingCount, age.Truncate(time.Second))
	}
	return res
}
