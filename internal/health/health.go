// Package health отдаёт состояние зависимостей сервиса для /healthz и /readyz.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const defaultProbeTimeout = 2 * time.Second

// Status — состояние зависимости или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) worse(other Status) bool {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	return rank[s] > rank[other]
}

// Probe — результат проверки одной зависимости.
type Probe struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report — тело ответа /healthz.
type Report struct {
	Status        Status           `json:"status"`
	CheckedAt     time.Time        `json:"checked_at"`
	Probes        map[string]Probe `json:"probes,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет одну зависимость.
type Checker interface {
	Check(ctx context.Context) Probe
}

// Dependency проверяет зависимость функцией ping.
// onFailure — статус, который получает сервис, если ping вернул ошибку.
type Dependency struct {
	name      string
	ping      func(ctx context.Context) error
	onFailure Status
}

// Critical — без этой зависимости сервис не обслуживает заказы (хранилища).
func Critical(name string, ping func(ctx context.Context) error) *Dependency {
	return &Dependency{name: name, ping: ping, onFailure: StatusUnhealthy}
}

// Optional — отказ только понижает сервис до degraded (Kafka: outbox копит уведомления).
func Optional(name string, ping func(ctx context.Context) error) *Dependency {
	return &Dependency{name: name, ping: ping, onFailure: StatusDegraded}
}

func (d *Dependency) Check(ctx context.Context) Probe {
	started := time.Now()
	err := d.ping(ctx)
	probe := Probe{Name: d.name, Status: StatusHealthy, LatencyMs: time.Since(started).Milliseconds()}
	if err != nil {
		probe.Status = d.onFailure
		probe.Error = err.Error()
	}
	return probe
}

// Registry хранит проверки и отдаёт сводку по ним.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	timeout  time.Duration
	started  time.Time
}

func NewRegistry(version string) *Registry {
	return &Registry{
		checkers: make(map[string]Checker),
		version:  version,
		timeout:  defaultProbeTimeout,
		started:  time.Now(),
	}
}

// Add регистрирует проверку; повторное имя заменяет прежнюю.
func (r *Registry) Add(name string, checker Checker) {
	r.mu.Lock()
	r.checkers[name] = checker
	r.mu.Unlock()
}

// Evaluate опрашивает все зависимости параллельно в пределах общего таймаута.
// Итоговый статус — худший из полученных.
func (r *Registry) Evaluate(ctx context.Context) Report {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	checkers := make([]Checker, 0, len(r.checkers))
	for name, checker := range r.checkers {
		names = append(names, name)
		checkers = append(checkers, checker)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	probes := make([]Probe, len(checkers))
	var g errgroup.Group
	for i, checker := range checkers {
		g.Go(func() error {
			probes[i] = checker.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:        StatusHealthy,
		CheckedAt:     time.Now().UTC(),
		Probes:        make(map[string]Probe, len(probes)),
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
	}
	for i, probe := range probes {
		report.Probes[names[i]] = probe
		if probe.Status.worse(report.Status) {
			report.Status = probe.Status
		}
	}
	return report
}

// Healthz отдаёт сводку в JSON; 503, если сервис unhealthy.
func (r *Registry) Healthz(c *gin.Context) {
	report := r.Evaluate(c.Request.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Readyz готов принимать трафик, пока нет unhealthy зависимостей.
func (r *Registry) Readyz(c *gin.Context) {
	if r.Evaluate(c.Request.Context()).Status == StatusUnhealthy {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}

// Livez отвечает 200, пока процесс жив.
func Livez(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
