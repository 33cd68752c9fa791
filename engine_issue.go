package zerofriction

import (
	"context"
	"time"

	"github.com/justwpthings/zerofriction/internal"
)

// RequestCredential runs the issuance flow for an identity: admission
// checks, credential generation, persistence of the keyed hash, and only
// then budget accounting. The plaintext code is returned to the caller for
// delivery and exists nowhere else.
//
// Admission is two-dimensional. The identity budget is checked first, then
// the source budget when the context carries a client IP. A denied request
// consumes no budget, and a request that fails to persist consumes none
// either — the caller can safely retry.
func (e *Engine) RequestCredential(ctx context.Context, identity string, kind CredentialKind) (*Issued, error) {
	if e == nil || e.credentials == nil || e.rateLimiter == nil {
		return nil, ErrEngineNotReady
	}

	identity = normalizeIdentity(identity)
	if !validIdentity(identity) {
		return nil, ErrInvalidIdentity
	}

	identityID := IdentityIdentifier(identity)
	decision, err := e.rateLimiter.Check(ctx, identityID)
	if err != nil {
		e.metricInc(MetricStorageFailure)
		return nil, ErrStorageUnavailable
	}
	if !decision.Allowed {
		e.metricInc(MetricCredentialDenied)
		if decision.Reason == ReasonHourlyLimit {
			e.metricInc(MetricLockout)
			e.emitAudit(ctx, auditEventLockoutApplied, false, identity, ErrHourlyLimit, nil)
		}
		e.emitRateLimit(ctx, identity, decision)
		return nil, rateLimitError(decision.Reason)
	}

	var sourceID Identifier
	source := clientIPFromContext(ctx)
	if source != "" {
		sourceID = SourceIdentifier(source)
		decision, err = e.rateLimiter.Check(ctx, sourceID)
		if err != nil {
			e.metricInc(MetricStorageFailure)
			return nil, ErrStorageUnavailable
		}
		if !decision.Allowed {
			e.metricInc(MetricCredentialDenied)
			if decision.Reason == ReasonSourceLimit {
				e.metricInc(MetricLockout)
				e.emitAudit(ctx, auditEventLockoutApplied, false, identity, ErrSourceLimit, nil)
			}
			e.emitRateLimit(ctx, identity, decision)
			return nil, rateLimitError(decision.Reason)
		}
	}

	code, err := e.generateCode(kind)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(e.config.Credential.TTL)
	record := &credentialRecord{
		Kind:           kind,
		CredentialHash: internal.HashCredential(e.secret, code),
		ExpiresAt:      expiresAt.Unix(),
		CreatedAt:      now.Unix(),
	}

	identityHash := hashIdentity(identity)
	if err := e.credentials.Save(ctx, identityHash, record, e.config.Credential.TTL); err != nil {
		e.metricInc(MetricStorageFailure)
		return nil, ErrStorageUnavailable
	}

	// Budget is charged only for credentials that actually went out the
	// door. A Redis blip between Save and here loses at most one count.
	if err := e.rateLimiter.Record(ctx, identityID); err != nil {
		e.metricInc(MetricStorageFailure)
	}
	if source != "" {
		if err := e.rateLimiter.Record(ctx, sourceID); err != nil {
			e.metricInc(MetricStorageFailure)
		}
	}

	e.metricInc(MetricCredentialIssued)
	e.emitAudit(ctx, issueEventType(kind), true, identity, nil, func() map[string]string {
		return map[string]string{
			"kind": kind.String(),
		}
	})

	return &Issued{
		Identity:  identity,
		Kind:      kind,
		Code:      code,
		ExpiresAt: expiresAt,
	}, nil
}

// InvalidateCredential discards the live credential for an identity, if
// any. Used when a caller wants to cancel an outstanding code explicitly
// rather than letting it expire or be superseded.
func (e *Engine) InvalidateCredential(ctx context.Context, identity string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}

	identity = normalizeIdentity(identity)
	if !validIdentity(identity) {
		return ErrInvalidIdentity
	}

	if err := e.credentials.Invalidate(ctx, hashIdentity(identity)); err != nil {
		e.metricInc(MetricStorageFailure)
		return ErrStorageUnavailable
	}
	return nil
}

func (e *Engine) generateCode(kind CredentialKind) (string, error) {
	switch kind {
	case KindNumericOTP:
		return internal.NewNumericCode(e.config.Credential.OTPDigits)
	case KindAlphanumericOTP:
		return internal.NewAlphanumericCode(e.config.Credential.AlphanumericLength)
	case KindMagicLink:
		return internal.NewLinkToken()
	default:
		return "", ErrInvalidCredentialKind
	}
}

func issueEventType(kind CredentialKind) string {
	if kind == KindMagicLink {
		return auditEventMagicLinkSent
	}
	return auditEventOTPRequested
}
