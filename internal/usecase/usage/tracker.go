package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

// Action defines behavior when the generative token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

// Store is the persistence interface for usage counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// Tracker is an in-memory generative usage tracker with optional persistence.
// Hot path (Check) is in-memory only, no round-trip. Record updates memory
// first, then writes behind to the store. Total counters cover the tracker's
// lifetime and are never persisted.
type Tracker struct {
	mu              sync.Mutex
	dailyTokens     int64
	monthlyTokens   int64
	totalTokens     int64
	dailyRequests   int64
	monthlyRequests int64
	totalRequests   int64
	dailyLimit      int64
	monthlyLimit    int64
	action          Action
	driver          string
	startedAt       time.Time
	lastDayReset    time.Time
	lastMonthReset  time.Time
	store           Store
	logger          *zap.Logger
}

// NewTracker creates a usage tracker with the given token limits.
// A zero limit means unlimited.
func NewTracker(
	driver string, dailyLimit, monthlyLimit int64,
	action Action, logger *zap.Logger,
) *Tracker {
	now := time.Now().UTC()
	return &Tracker{
		dailyLimit:     dailyLimit,
		monthlyLimit:   monthlyLimit,
		action:         action,
		driver:         driver,
		startedAt:      now,
		lastDayReset:   truncateToDay(now),
		lastMonthReset: truncateToMonth(now),
		logger:         logger,
	}
}

// WithStore attaches a persistence store and loads current counters, so a
// restart does not reopen an exhausted budget.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.store = store
	t.loadFromStore(ctx)
	return t
}

func (t *Tracker) loadFromStore(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	counters := []struct {
		key  string
		dest *int64
	}{
		{t.tokensKey(now, "daily"), &t.dailyTokens},
		{t.tokensKey(now, "monthly"), &t.monthlyTokens},
		{t.requestsKey(now, "daily"), &t.dailyRequests},
		{t.requestsKey(now, "monthly"), &t.monthlyRequests},
	}
	for _, c := range counters {
		if val, err := t.store.Get(ctx, c.key); err == nil {
			*c.dest = val
		} else {
			t.logger.Warn("Failed to load usage counter from store",
				zap.String("key", c.key), zap.Error(err))
		}
	}

	t.logger.Info("Usage counters loaded from store",
		zap.String("driver", t.driver),
		zap.Int64("daily_tokens", t.dailyTokens),
		zap.Int64("monthly_tokens", t.monthlyTokens),
	)
	t.updateGaugesLocked()
}

func (t *Tracker) tokensKey(now time.Time, period string) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, t.driver, period, periodStamp(now, period))
}

func (t *Tracker) requestsKey(now time.Time, period string) string {
	return fmt.Sprintf("%srequests:%s:%s:%s", domain.KeyPrefix, t.driver, period, periodStamp(now, period))
}

func periodStamp(now time.Time, period string) string {
	if period == "daily" {
		return now.Format("2006-01-02")
	}
	return now.Format("2006-01")
}

// Check verifies the budget allows a new generative call. In-memory only.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.dailyLimit > 0 && t.dailyTokens >= t.dailyLimit
	monthlyExceeded := t.monthlyLimit > 0 && t.monthlyTokens >= t.monthlyLimit

	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.action == ActionReject {
		return domain.ErrGenerativeQuotaExceeded
	}

	// action=warn: log but allow the request through
	t.logger.Warn("Generative token budget exceeded",
		zap.String("driver", t.driver),
		zap.Int64("daily_tokens", t.dailyTokens),
		zap.Int64("daily_limit", t.dailyLimit),
		zap.Int64("monthly_tokens", t.monthlyTokens),
		zap.Int64("monthly_limit", t.monthlyLimit),
	)
	return nil
}

// Record registers one completed generative call and its consumed tokens.
// Updates in-memory counters, then writes behind to the store (if attached).
func (t *Tracker) Record(tokens int64) {
	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyTokens += tokens
	t.monthlyTokens += tokens
	t.totalTokens += tokens
	t.dailyRequests++
	t.monthlyRequests++
	t.totalRequests++
	t.updateGaugesLocked()

	store := t.store
	now := time.Now().UTC()
	writes := []struct {
		key string
		val int64
	}{
		{t.tokensKey(now, "daily"), tokens},
		{t.tokensKey(now, "monthly"), tokens},
		{t.requestsKey(now, "daily"), 1},
		{t.requestsKey(now, "monthly"), 1},
	}
	t.mu.Unlock()

	if store == nil {
		return
	}

	// Write-behind: fire-and-forget INCRBY so store latency never blocks
	// the caller's request path.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, w := range writes {
		if err := store.IncrBy(ctx, w.key, w.val); err != nil {
			t.logger.Warn("Failed to persist usage counter",
				zap.String("key", w.key), zap.Error(err))
		}
	}
}

func (t *Tracker) updateGaugesLocked() {
	gauge := metrics.BudgetTokensRemaining
	if t.dailyLimit > 0 {
		gauge.WithLabelValues(t.driver, "daily").Set(float64(clampZero(t.dailyLimit - t.dailyTokens)))
	}
	if t.monthlyLimit > 0 {
		gauge.WithLabelValues(t.driver, "monthly").Set(float64(clampZero(t.monthlyLimit - t.monthlyTokens)))
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (t *Tracker) RemainingDaily() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	if t.dailyLimit == 0 {
		return -1
	}
	return clampZero(t.dailyLimit - t.dailyTokens)
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (t *Tracker) RemainingMonthly() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	if t.monthlyLimit == 0 {
		return -1
	}
	return clampZero(t.monthlyLimit - t.monthlyTokens)
}

// DailyLimit returns the daily token cap.
func (t *Tracker) DailyLimit() int64 { return t.dailyLimit }

// MonthlyLimit returns the monthly token cap.
func (t *Tracker) MonthlyLimit() int64 { return t.monthlyLimit }

// DailyTokens returns tokens consumed today.
func (t *Tracker) DailyTokens() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.dailyTokens
}

// MonthlyTokens returns tokens consumed this month.
func (t *Tracker) MonthlyTokens() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthlyTokens
}

// TotalTokens returns tokens consumed since the tracker started.
func (t *Tracker) TotalTokens() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalTokens
}

// DailyRequests returns generative calls made today.
func (t *Tracker) DailyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.dailyRequests
}

// MonthlyRequests returns generative calls made this month.
func (t *Tracker) MonthlyRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetIfNeeded()
	return t.monthlyRequests
}

// TotalRequests returns generative calls made since the tracker started.
func (t *Tracker) TotalRequests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalRequests
}

// StartedAt returns when total counters began accumulating.
func (t *Tracker) StartedAt() time.Time { return t.startedAt }

// Driver returns the generative driver this tracker accounts for.
func (t *Tracker) Driver() string { return t.driver }

// resetIfNeeded zeroes period counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := time.Now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(t.lastDayReset) {
		t.dailyTokens = 0
		t.dailyRequests = 0
		t.lastDayReset = today
	}
	if thisMonth.After(t.lastMonthReset) {
		t.monthlyTokens = 0
		t.monthlyRequests = 0
		t.lastMonthReset = thisMonth
	}
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
