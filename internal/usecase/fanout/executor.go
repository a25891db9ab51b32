package fanout

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

// Config carries per-kind dispatch limits.
type Config struct {
	Timeouts   map[domain.Kind]time.Duration
	RateLimits map[domain.Kind]float64 // requests per second, 0 disables the limiter
}

const defaultTimeout = 5 * time.Second

// Executor dispatches sub-queries to their adapters concurrently. One slow or
// failing backend never delays or poisons the others: every call runs under
// its own deadline and failures come back as statuses, not errors.
type Executor struct {
	adapters map[domain.Kind]domain.Adapter
	timeouts map[domain.Kind]time.Duration
	limiters map[domain.Kind]*rate.Limiter
	logger   *zap.Logger
}

// New creates an executor over the registered adapters.
func New(adapters []domain.Adapter, cfg Config, logger *zap.Logger) *Executor {
	byKind := make(map[domain.Kind]domain.Adapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}

	limiters := make(map[domain.Kind]*rate.Limiter, len(cfg.RateLimits))
	for kind, rps := range cfg.RateLimits {
		if rps <= 0 {
			continue
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiters[kind] = rate.NewLimiter(rate.Limit(rps), burst)
	}

	return &Executor{
		adapters: byKind,
		timeouts: cfg.Timeouts,
		limiters: limiters,
		logger:   logger,
	}
}

// Dispatch fans the sub-queries out to their adapters and waits for all of
// them. The returned slice is positional: results[i] answers subs[i]. The
// error is non-nil only when every dispatched call failed.
func (e *Executor) Dispatch(ctx context.Context, subs []domain.SubQuery) ([]domain.BackendResult, error) {
	if len(subs) == 0 {
		return nil, nil
	}

	results := make([]domain.BackendResult, len(subs))
	g := new(errgroup.Group)
	for i := range subs {
		g.Go(func() error {
			results[i] = e.invoke(ctx, subs[i])
			return nil
		})
	}
	// Workers report failures through results, never through errors.
	_ = g.Wait()

	var failures []domain.BackendFailure
	for _, r := range results {
		if !r.OK() {
			failures = append(failures, r.Failure())
		}
	}
	if len(failures) == len(results) {
		return results, domain.NewAllBackendsFailed(failures)
	}
	return results, nil
}

func (e *Executor) invoke(ctx context.Context, sq domain.SubQuery) domain.BackendResult {
	ad, ok := e.adapters[sq.Kind]
	if !ok {
		res := domain.BackendResult{Backend: sq.Kind, Name: string(sq.Kind), Status: domain.StatusSkipped}
		e.observe(res)
		return res
	}

	res := domain.BackendResult{Backend: sq.Kind, Name: ad.Name()}
	start := time.Now()

	if lim := e.limiters[sq.Kind]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			res.Status = classify(err)
			res.Err = err
			res.Elapsed = time.Since(start)
			e.observe(res)
			return res
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeoutFor(sq.Kind))
	defer cancel()

	payload, err := ad.Invoke(cctx, sq)
	res.Elapsed = time.Since(start)

	if err != nil {
		res.Status = classify(err)
		res.Err = err
		e.logger.Warn("Backend call failed",
			zap.String("backend", string(sq.Kind)),
			zap.String("name", ad.Name()),
			zap.String("status", string(res.Status)),
			zap.Duration("elapsed", res.Elapsed),
			zap.Error(err),
		)
	} else {
		res.Status = domain.StatusOK
		res.Items = payload.Items
		res.Answer = payload.Answer
		res.Confidence = payload.Confidence
		res.Tokens = payload.Tokens
		e.logger.Debug("Backend call completed",
			zap.String("backend", string(sq.Kind)),
			zap.String("name", ad.Name()),
			zap.Int("items", len(payload.Items)),
			zap.Duration("elapsed", res.Elapsed),
		)
	}

	e.observe(res)
	return res
}

func (e *Executor) observe(res domain.BackendResult) {
	metrics.BackendRequestsTotal.WithLabelValues(string(res.Backend), string(res.Status)).Inc()
	metrics.BackendRequestDuration.WithLabelValues(string(res.Backend)).Observe(res.Elapsed.Seconds())
	if res.Status == domain.StatusOK {
		metrics.BackendItemsReturned.WithLabelValues(string(res.Backend)).Observe(float64(len(res.Items)))
	}
}

func (e *Executor) timeoutFor(kind domain.Kind) time.Duration {
	if d, ok := e.timeouts[kind]; ok && d > 0 {
		return d
	}
	return defaultTimeout
}

// classify maps an adapter error to its result status. Context expiry counts
// as a timeout whether the per-call deadline or the caller's ceiling fired.
func classify(err error) domain.Status {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrBackendTimeout):
		return domain.StatusTimeout
	case errors.Is(err, domain.ErrBackendUnavailable):
		return domain.StatusUnavailable
	case errors.Is(err, domain.ErrBackendInvalidResponse):
		return domain.StatusInvalid
	default:
		return domain.StatusError
	}
}
