package omnidex

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/omnidex/internal/domain/usage"
)

// UsagePeriod is the aggregation granularity for usage reports.
type UsagePeriod string

// UsagePeriod constants.
const (
	PeriodDay   UsagePeriod = "day"
	PeriodMonth UsagePeriod = "month"
	PeriodTotal UsagePeriod = "total"
)

// UsageReport contains generative usage statistics for a time period.
type UsageReport struct {
	Period      UsagePeriod
	PeriodStart time.Time
	PeriodEnd   time.Time
	Driver      string
	Metrics     UsageMetrics
	Budget      BudgetStatus
}

// UsageMetrics tracks generative resource consumption.
type UsageMetrics struct {
	GenerativeRequests int
	Tokens             int
}

// BudgetStatus tracks token quota state.
type BudgetStatus struct {
	TokensLimit     int
	TokensRemaining int
	IsExhausted     bool
	ResetsAt        time.Time
}

// Usage returns a generative usage report for the given period. Reports are
// served from in-memory counters and never fail, so the observer always
// records success. Without a generative backend all counters are zero.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) UsageReport {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, nil) }()

	report := c.usageSvc.GetReport(ctx, domusage.Period(period))
	m := report.Metrics()
	b := report.Budget()

	return UsageReport{
		Period:      UsagePeriod(report.Period()),
		PeriodStart: time.UnixMilli(report.PeriodStart()).UTC(),
		PeriodEnd:   time.UnixMilli(report.PeriodEnd()).UTC(),
		Driver:      report.Driver(),
		Metrics: UsageMetrics{
			GenerativeRequests: m.GenerativeRequests(),
			Tokens:             m.Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit:     b.TokensLimit(),
			TokensRemaining: b.TokensRemaining(),
			IsExhausted:     b.IsExhausted(),
			ResetsAt:        time.UnixMilli(b.ResetsAt()).UTC(),
		},
	}
}

// usageUseCase is the internal interface for usage reports.
type usageUseCase interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}
