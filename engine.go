package zerofriction

import (
	"context"
	"time"

	"github.com/justwpthings/zerofriction/jwt"
)

// Engine is the passwordless authentication core. Construct one through
// [Builder]; all fields are fixed after Build and every method is safe for
// concurrent use.
type Engine struct {
	config       Config
	secret       []byte
	rateLimiter  *rateLimiter
	credentials  *credentialStore
	attempts     *attemptLimiter
	guests       *guestStore
	audit        *auditDispatcher
	auditStore   *RedisAuditSink
	metrics      *Metrics
	jwtManager   *jwt.Manager
	userProvider UserProvider
	sleep        func(ctx context.Context, d time.Duration)
}

// Close drains and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the engine's counter set for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CheckAdmission reports whether a request attributed to the identifier
// would currently be admitted, without recording an attempt.
func (e *Engine) CheckAdmission(ctx context.Context, id Identifier) (Decision, error) {
	if e == nil || e.rateLimiter == nil {
		return Decision{}, ErrEngineNotReady
	}
	decision, err := e.rateLimiter.Check(ctx, id)
	if err != nil {
		e.metricInc(MetricStorageFailure)
		return Decision{}, ErrStorageUnavailable
	}
	return decision, nil
}

// RecordAttempt counts one admitted request against the identifier.
func (e *Engine) RecordAttempt(ctx context.Context, id Identifier) error {
	if e == nil || e.rateLimiter == nil {
		return ErrEngineNotReady
	}
	if err := e.rateLimiter.Record(ctx, id); err != nil {
		e.metricInc(MetricStorageFailure)
		return ErrStorageUnavailable
	}
	return nil
}

// Lock places the identifier under lockout for the configured duration.
func (e *Engine) Lock(ctx context.Context, id Identifier) error {
	if e == nil || e.rateLimiter == nil {
		return ErrEngineNotReady
	}
	if err := e.rateLimiter.Lock(ctx, id, e.config.RateLimit.LockoutDuration); err != nil {
		e.metricInc(MetricStorageFailure)
		return ErrStorageUnavailable
	}
	return nil
}

// Sweep runs periodic maintenance: expired lockouts are cleared so their
// rate windows restart cleanly, and audit events past the retention cutoff
// are purged. Intended to be called from a cron-style scheduler.
func (e *Engine) Sweep(ctx context.Context) error {
	if e == nil || e.rateLimiter == nil {
		return ErrEngineNotReady
	}

	if err := e.rateLimiter.ClearExpiredLockouts(ctx); err != nil {
		e.metricInc(MetricStorageFailure)
		return ErrStorageUnavailable
	}

	if e.auditStore != nil && e.config.Audit.Retention > 0 {
		cutoff := time.Now().Add(-e.config.Audit.Retention)
		if err := e.auditStore.PurgeBefore(ctx, cutoff); err != nil {
			e.metricInc(MetricStorageFailure)
			return ErrStorageUnavailable
		}
	}

	return nil
}

func (e *Engine) sleepFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if e.sleep != nil {
		e.sleep(ctx, d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
