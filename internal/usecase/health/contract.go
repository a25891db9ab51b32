package health

import "context"

// Checker verifies one component's availability.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
