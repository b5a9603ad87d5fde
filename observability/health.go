package observability

import (
	"context"
	"slices"
)

// HealthStatus is the health state of a scope or of a whole engine.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDown     HealthStatus = "down"
)

var severity = map[HealthStatus]int{
	HealthStatusUp:       0,
	HealthStatusDegraded: 1,
	HealthStatusDown:     2,
}

// Worse returns the more severe of a and b.
func (a HealthStatus) Worse(b HealthStatus) HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Health is what one HealthChecker reports.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthChecker is implemented by anything that can report its health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) Health
}

// Report aggregates the health of an engine instance. Its status is the
// worst status among the components added to it.
type Report struct {
	Service    string       `json:"service"`
	Version    string       `json:"version,omitempty"`
	Status     HealthStatus `json:"status"`
	Components []Health     `json:"components,omitempty"`
}

// NewReport starts an empty report with status up.
func NewReport(service, version string) *Report {
	return &Report{Service: service, Version: version, Status: HealthStatusUp}
}

// Add records one component result.
func (r *Report) Add(h Health) {
	r.Components = append(r.Components, h)
	r.Status = r.Status.Worse(h.Status)
}

// Collect runs every checker and adds its result.
func (r *Report) Collect(ctx context.Context, checkers ...HealthChecker) *Report {
	for _, c := range checkers {
		r.Add(c.CheckHealth(ctx))
	}
	return r
}

// Component returns the first component reported under name.
func (r *Report) Component(name string) (Health, bool) {
	i := slices.IndexFunc(r.Components, func(h Health) bool { return h.Name == name })
	if i < 0 {
		return Health{}, false
	}
	return r.Components[i], true
}
