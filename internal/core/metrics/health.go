package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     string                  `json:"status"`
	Message    string                  `json:"message"`
	Timestamp  time.Time               `json:"timestamp"`
	Duration   time.Duration           `json:"duration"`
	Components map[string]HealthStatus `json:"components"`
	Uptime     string                  `json:"uptime"`
}

// HealthCheck reports the state of one component.
type HealthCheck func(ctx context.Context) HealthStatus

// HealthChecker runs registered checks with a per-check timeout.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
	started time.Time
}

// NewHealthChecker creates a checker whose checks time out after timeout.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthChecker{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
		started: time.Now(),
	}
}

// Register adds or replaces the check for name.
func (h *HealthChecker) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Report runs every check and derives the overall status.
func (h *HealthChecker) Report(ctx context.Context) HealthReport {
	start := time.Now()

	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	components := make(map[string]HealthStatus, len(names))
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		checkStart := time.Now()
		result := HealthCheckWithTimeout(ctx, h.timeout, check)
		result.Duration = time.Since(checkStart)
		components[name] = result
	}

	status, message := overallStatus(components)
	return HealthReport{
		Status:     status,
		Message:    message,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Components: components,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
}

func overallStatus(components map[string]HealthStatus) (string, string) {
	var degraded, unhealthy int
	total := len(components)

	for _, status := range components {
		switch status.Status {
		case "healthy":
		case "degraded":
			degraded++
		default:
			unhealthy++
		}
	}

	if unhealthy > 0 {
		return "unhealthy", fmt.Sprintf("%d/%d components unhealthy", unhealthy, total)
	}
	if degraded > 0 {
		return "degraded", fmt.Sprintf("%d/%d components degraded", degraded, total)
	}
	return "healthy", fmt.Sprintf("All %d components healthy", total)
}

// NewHealthStatus creates a new health status
func NewHealthStatus(status, message string) HealthStatus {
	return HealthStatus{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithDetail adds a single detail to a health status
func (h HealthStatus) WithDetail(key string, value interface{}) HealthStatus {
	if h.Details == nil {
		h.Details = make(map[string]interface{})
	}

	h.Details[key] = value
	return h
}

// IsHealthy returns true if the status is healthy
func (h HealthStatus) IsHealthy() bool {
	return h.Status == "healthy"
}

// HealthCheckWithTimeout performs a health check with timeout
func HealthCheckWithTimeout(ctx context.Context, timeout time.Duration, check HealthCheck) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan HealthStatus, 1)

	go func() {
		resultChan <- check(ctx)
	}()

	select {
	case result := <-resultChan:
		return result
	case <-ctx.Done():
		return NewHealthStatus("unhealthy", "Health check timed out").
			WithDetail("timeout", timeout.String())
	}
}
