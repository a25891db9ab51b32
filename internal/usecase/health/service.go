package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds each component probe.
const DefaultCheckTimeout = 2 * time.Second

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure: answers may lack a backend's
	// contribution but the service can still respond.
	Degraded Status = "degraded"
	// Unhealthy indicates no retrieval capability remains.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Component is one probed dependency. Critical components are the retrieval
// backends: when every one of them is down the service is unhealthy, while a
// failing non-critical component (generative, cache) only degrades it.
type Component struct {
	Name     string
	Critical bool
	Checker  Checker
}

// Service coordinates health checks.
type Service struct {
	components []Component
	timeout    time.Duration
}

// New creates a Service. Components with a nil checker are skipped.
// A non-positive timeout falls back to DefaultCheckTimeout.
func New(timeout time.Duration, components ...Component) *Service {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	kept := make([]Component, 0, len(components))
	for _, c := range components {
		if c.Checker != nil {
			kept = append(kept, c)
		}
	}
	return &Service{components: kept, timeout: timeout}
}

// Check probes all components in parallel, each under its own deadline.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.components))

	g := new(errgroup.Group)
	for i := range s.components {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			if err := s.components[i].Checker.HealthCheck(cctx); err != nil {
				results[i] = CheckError
			} else {
				results[i] = CheckOK
			}
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]CheckResult, len(s.components))
	var criticalTotal, criticalDown int
	var anyDown bool
	for i, c := range s.components {
		checks[c.Name] = results[i]
		if c.Critical {
			criticalTotal++
		}
		if results[i] == CheckError {
			anyDown = true
			if c.Critical {
				criticalDown++
			}
		}
	}

	status := Healthy
	switch {
	case criticalTotal > 0 && criticalDown == criticalTotal:
		status = Unhealthy
	case anyDown:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
