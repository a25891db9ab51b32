package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/omnidex/internal/domain/usage"
	"github.com/kailas-cloud/omnidex/internal/domain/usage/budget"
	"github.com/kailas-cloud/omnidex/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	tr TrackerReader
}

// New creates a Service. tr can be nil (generative backend disabled).
func New(tr TrackerReader) *Service {
	return &Service{tr: tr}
}

// GetReport builds a usage report for the given period. The total period
// covers the tracker's lifetime against the monthly budget, which is the
// constraint that actually binds long-running consumption.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := time.Now().UTC()
	var start, end int64
	var limit, remaining int64
	var requests, tokens int64
	var driver string

	switch period {
	case domusage.PeriodDay:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		start = dayStart.UnixMilli()
		end = dayStart.Add(24 * time.Hour).UnixMilli()
		if s.tr != nil {
			limit = s.tr.DailyLimit()
			remaining = s.tr.RemainingDaily()
			requests = s.tr.DailyRequests()
			tokens = s.tr.DailyTokens()
		}
	case domusage.PeriodMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = monthStart.UnixMilli()
		end = monthStart.AddDate(0, 1, 0).UnixMilli()
		if s.tr != nil {
			limit = s.tr.MonthlyLimit()
			remaining = s.tr.RemainingMonthly()
			requests = s.tr.MonthlyRequests()
			tokens = s.tr.MonthlyTokens()
		}
	default: // total
		end = now.UnixMilli()
		if s.tr != nil {
			start = s.tr.StartedAt().UnixMilli()
			limit = s.tr.MonthlyLimit()
			remaining = s.tr.RemainingMonthly()
			requests = s.tr.TotalRequests()
			tokens = s.tr.TotalTokens()
		}
	}

	if s.tr != nil {
		driver = s.tr.Driver()
	}

	exhausted := limit > 0 && remaining <= 0
	resetsAt := end

	b := budget.New(int(limit), int(remaining), exhausted, resetsAt)
	m := metrics.New(int(requests), int(tokens))

	return domusage.NewReport(period, start, end, driver, m, b)
}
