package zerofriction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	auditEventOTPRequested         = "otp_requested"
	auditEventMagicLinkSent        = "magic_link_sent"
	auditEventOTPRateLimited       = "otp_rate_limited"
	auditEventRateLimitedSource    = "rate_limited_source"
	auditEventOTPVerificationFail  = "otp_verification_failed"
	auditEventOTPVerified          = "otp_verified"
	auditEventLoginSuccess         = "login_success"
	auditEventGuestSessionCreated  = "guest_session_created"
	auditEventGuestSessionRedeemed = "guest_session_redeemed"
	auditEventUserCreatedFromGuest = "user_created_from_guest"
	auditEventLockoutApplied       = "lockout_applied"
)

// AuditErrorCode is the stable machine-readable error label carried in
// audit events.
type AuditErrorCode string

const (
	auditErrInvalidIdentity      AuditErrorCode = "invalid_identity"
	auditErrLockedOut            AuditErrorCode = "locked_out"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrCredentialInvalid    AuditErrorCode = "credential_invalid"
	auditErrGuestSessionInvalid  AuditErrorCode = "guest_session_invalid"
	auditErrRegistrationDisabled AuditErrorCode = "registration_disabled"
	auditErrUserExists           AuditErrorCode = "user_exists"
	auditErrUserNotFound         AuditErrorCode = "user_not_found"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identity string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Identity:  identity,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	identity string,
	decision Decision,
) {
	e.metricInc(MetricRateLimitHit)

	eventType := auditEventOTPRateLimited
	if decision.Reason == ReasonSourceLimit {
		eventType = auditEventRateLimitedSource
	}

	e.emitAudit(ctx, eventType, false, identity, rateLimitError(decision.Reason), func() map[string]string {
		return map[string]string{
			"reason": decision.Reason,
		}
	})
}

// LogEvent records a caller-supplied audit event through the dispatcher.
// Integrations use this for events the engine cannot observe itself, such
// as a credential email actually being sent.
func (e *Engine) LogEvent(ctx context.Context, eventType, identity string, success bool, metadata map[string]string) {
	var builder func() map[string]string
	if metadata != nil {
		builder = func() map[string]string { return metadata }
	}
	e.emitAudit(ctx, eventType, success, identity, nil, builder)
}

// AuditLog returns recent persisted audit events, newest first. It requires
// the engine's default Redis audit sink; with a custom sink it returns nil.
func (e *Engine) AuditLog(ctx context.Context, identity string, limit int) ([]AuditEvent, error) {
	if e == nil || e.auditStore == nil {
		return nil, nil
	}
	events, err := e.auditStore.Recent(ctx, identity, limit)
	if err != nil {
		return nil, ErrStorageUnavailable
	}
	return events, nil
}

func rateLimitError(reason string) error {
	switch reason {
	case ReasonLockedOut:
		return ErrLockedOut
	case ReasonHourlyLimit:
		return ErrHourlyLimit
	case ReasonBurstLimit:
		return ErrBurstLimit
	case ReasonSourceLimit:
		return ErrSourceLimit
	default:
		return ErrBurstLimit
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidIdentity):
		return auditErrInvalidIdentity
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrHourlyLimit),
		errors.Is(err, ErrBurstLimit),
		errors.Is(err, ErrSourceLimit):
		return auditErrRateLimited
	case errors.Is(err, ErrCredentialInvalid):
		return auditErrCredentialInvalid
	case errors.Is(err, ErrGuestSessionInvalid):
		return auditErrGuestSessionInvalid
	case errors.Is(err, ErrRegistrationDisabled):
		return auditErrRegistrationDisabled
	case errors.Is(err, ErrUserExists):
		return auditErrUserExists
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrSessionUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
