package zerofriction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/justwpthings/zerofriction/internal"
)

// VerifyCredential checks a presented code against the live credential for
// an identity and consumes it on a match.
//
// All failure modes — wrong code, expired credential, no credential issued —
// collapse into [ErrCredentialInvalid], so the result never reveals whether
// a credential exists for the identity. Repeated failures buy a growing
// delay before the store is touched: from the configured threshold onward
// the call suspends for min(BackoffCap, 2^(failures-2) seconds).
func (e *Engine) VerifyCredential(ctx context.Context, identity, code string) (CredentialKind, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	start := time.Now()
	kind, err := e.verifyCredential(ctx, identity, code)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	return kind, err
}

func (e *Engine) verifyCredential(ctx context.Context, identity, code string) (CredentialKind, error) {
	if e == nil || e.credentials == nil {
		return 0, ErrEngineNotReady
	}

	identity = normalizeIdentity(identity)
	if !validIdentity(identity) {
		return 0, ErrInvalidIdentity
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ErrCredentialInvalid
	}

	identityHash := hashIdentity(identity)

	if failures := e.attempts.Failures(ctx, identityHash); failures >= e.config.Verify.BackoffThreshold {
		e.sleepFor(ctx, backoffDelay(failures, e.config.Verify.BackoffCap))
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	providedHash := internal.HashCredential(e.secret, code)
	record, err := e.credentials.Consume(ctx, identityHash, providedHash)
	if err != nil {
		switch {
		case errors.Is(err, errCredentialNotFound), errors.Is(err, errCredentialMismatch):
			_ = e.attempts.RecordFailure(ctx, identityHash)
			e.metricInc(MetricVerifyFailure)
			e.emitAudit(ctx, auditEventOTPVerificationFail, false, identity, ErrCredentialInvalid, nil)
			return 0, ErrCredentialInvalid
		default:
			e.metricInc(MetricStorageFailure)
			return 0, ErrStorageUnavailable
		}
	}

	_ = e.attempts.Clear(ctx, identityHash)
	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerified, true, identity, nil, func() map[string]string {
		return map[string]string{
			"kind": record.Kind.String(),
		}
	})

	return record.Kind, nil
}

// backoffDelay is the verification suspension for a given failure count:
// 2^(failures-2) seconds, capped. With the default threshold of 3 the
// progression is 2s, 4s, 8s, 8s, ...
func backoffDelay(failures int, limit time.Duration) time.Duration {
	if failures < 2 {
		return 0
	}
	shift := failures - 2
	if shift > 30 {
		shift = 30
	}
	delay := time.Duration(1<<uint(shift)) * time.Second
	if delay > limit {
		return limit
	}
	return delay
}
