package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Status — итог проверки одного компонента или сервиса целиком.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// checkTimeout ограничивает каждую проверку, чтобы зависший компонент
// не блокировал health-эндпоинт.
const checkTimeout = 2 * time.Second

// CheckResult — результат одной проверки.
type CheckResult struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — агрегированный ответ health-эндпоинта.
type Report struct {
	Status        Status        `json:"status"`
	Version       string        `json:"version,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Checks        []CheckResult `json:"checks,omitempty"`
}

// CheckFunc проверяет доступность одного компонента.
type CheckFunc func(ctx context.Context) error

// Registry выполняет зарегистрированные проверки и отдаёт агрегированный статус.
type Registry struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	version   string
	startedAt time.Time
}

// NewRegistry создаёт пустой реестр проверок.
func NewRegistry(version string) *Registry {
	return &Registry{
		checks:    make(map[string]CheckFunc),
		version:   version,
		startedAt: time.Now(),
	}
}

// Register добавляет проверку компонента. Повторная регистрация с тем же
// именем заменяет предыдущую.
func (r *Registry) Register(name string, check CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Run выполняет все проверки и собирает отчёт. Результаты отсортированы
// по имени для стабильного вывода.
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	checks := make(map[string]CheckFunc, len(r.checks))
	for name, check := range r.checks {
		checks[name] = check
	}
	r.mu.RUnlock()

	report := Report{
		Status:        StatusUp,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		result := runCheck(ctx, name, checks[name])
		if result.Status == StatusDown {
			report.Status = StatusDown
		}
		report.Checks = append(report.Checks, result)
	}

	return report
}

// GinHandler возвращает gin-обработчик health-эндпоинта: 200 когда все
// проверки прошли, 503 иначе.
func (r *Registry) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Run(c.Request.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// HTTPHandler — вариант обработчика для plain net/http mux (ops-сервер).
func (r *Registry) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		report := r.Run(req.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

func runCheck(ctx context.Context, name string, check CheckFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := check(ctx)
	result := CheckResult{
		Name:       name,
		Status:     StatusUp,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = StatusDown
		result.Error = err.Error()
	}
	return result
}
