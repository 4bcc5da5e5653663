package health

import (
	"context"
	"sync"
	"time"
)

// Checker reports whether one dependency is reachable.
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

type component struct {
	name     string
	critical bool
	checker  Checker
}

// Monitor aggregates health status from the service's dependencies.
type Monitor struct {
	components []component
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Register adds a dependency to check. Critical components take the whole
// system to critical when they fail; others only degrade it.
func (m *Monitor) Register(name string, critical bool, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, critical: critical, checker: checker})
}

// CheckHealth probes every registered component.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering dependencies
	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport.Components) > 0 {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
	}

	for _, c := range m.components {
		ch := ComponentHealth{
			Name:     c.name,
			Status:   StatusHealthy,
			Critical: c.critical,
		}

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.checker.Health(checkCtx)
		cancel()

		if err != nil {
			ch.Error = err.Error()
			if c.critical {
				ch.Status = StatusCritical
				report.SystemStatus = StatusCritical
			} else {
				ch.Status = StatusDegraded
				if report.SystemStatus == StatusHealthy {
					report.SystemStatus = StatusDegraded
				}
			}
		}

		report.Components[c.name] = ch
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
