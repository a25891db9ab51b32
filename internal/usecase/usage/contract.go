package usage

import "time"

// TrackerReader provides read-only access to usage counters and budget state.
type TrackerReader interface {
	Driver() string
	DailyLimit() int64
	MonthlyLimit() int64
	DailyTokens() int64
	MonthlyTokens() int64
	TotalTokens() int64
	DailyRequests() int64
	MonthlyRequests() int64
	TotalRequests() int64
	RemainingDaily() int64
	RemainingMonthly() int64
	StartedAt() time.Time
}
