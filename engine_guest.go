package zerofriction

import (
	"context"
	"errors"
	"time"

	"github.com/justwpthings/zerofriction/internal"
)

// CreateGuestSession issues a single-use guest session bound to a verified
// identity. The engine does not re-verify here; callers create guest
// sessions only from a successful [Engine.VerifyCredential] (VerifyAndLogin
// does this internally).
func (e *Engine) CreateGuestSession(ctx context.Context, identity string) (*GuestSession, error) {
	if e == nil || e.guests == nil {
		return nil, ErrEngineNotReady
	}

	identity = normalizeIdentity(identity)
	if !validIdentity(identity) {
		return nil, ErrInvalidIdentity
	}

	token, err := internal.NewGuestToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(e.config.Guest.SessionTTL)
	record := &guestRecord{
		Identity:  identity,
		ExpiresAt: expiresAt.Unix(),
		CreatedAt: now.Unix(),
	}

	if err := e.guests.Save(ctx, token, record, e.config.Guest.SessionTTL); err != nil {
		e.metricInc(MetricStorageFailure)
		return nil, ErrStorageUnavailable
	}

	e.metricInc(MetricGuestSessionCreated)
	e.emitAudit(ctx, auditEventGuestSessionCreated, true, identity, nil, nil)

	return &GuestSession{
		Token:     token,
		Identity:  identity,
		ExpiresAt: expiresAt,
	}, nil
}

// RedeemGuestSession consumes a guest session token presented for the given
// identity. Missing, expired, already-consumed, and wrongly-bound tokens all
// return [ErrGuestSessionInvalid]; a token presented with the wrong identity
// is additionally consumed, since it must be treated as leaked.
func (e *Engine) RedeemGuestSession(ctx context.Context, token, identity string) (*GuestSession, error) {
	if e == nil || e.guests == nil {
		return nil, ErrEngineNotReady
	}

	identity = normalizeIdentity(identity)
	if token == "" || !validIdentity(identity) {
		return nil, ErrGuestSessionInvalid
	}

	record, err := e.guests.Consume(ctx, token, identity)
	if err != nil {
		switch {
		case errors.Is(err, errGuestNotFound), errors.Is(err, errGuestIdentityMismatch):
			e.emitAudit(ctx, auditEventGuestSessionRedeemed, false, identity, ErrGuestSessionInvalid, nil)
			return nil, ErrGuestSessionInvalid
		default:
			e.metricInc(MetricStorageFailure)
			return nil, ErrStorageUnavailable
		}
	}

	e.metricInc(MetricGuestSessionRedeemed)
	e.emitAudit(ctx, auditEventGuestSessionRedeemed, true, identity, nil, nil)

	return &GuestSession{
		Token:     token,
		Identity:  record.Identity,
		ExpiresAt: time.Unix(record.ExpiresAt, 0),
	}, nil
}

// InvalidateGuestSession discards a guest session without redeeming it.
// Used when a caller wants to revoke an outstanding bridge token explicitly
// rather than letting it expire.
func (e *Engine) InvalidateGuestSession(ctx context.Context, token string) error {
	if e == nil || e.guests == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return ErrGuestSessionInvalid
	}

	if err := e.guests.Invalidate(ctx, token); err != nil {
		e.metricInc(MetricStorageFailure)
		return ErrStorageUnavailable
	}
	return nil
}

// CreateAccountFromGuest redeems a guest session and creates the account it
// attests to. The new account's email is always the session's bound
// identity; input supplies the remaining profile fields. Returns
// [ErrUserExists] when an account already holds the identity — the guest
// session is still consumed in that case.
func (e *Engine) CreateAccountFromGuest(
	ctx context.Context,
	token string,
	identity string,
	input CreateUserInput,
) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Guest.AllowRegistration {
		return nil, ErrRegistrationDisabled
	}

	session, err := e.RedeemGuestSession(ctx, token, identity)
	if err != nil {
		return nil, err
	}

	_, err = e.userProvider.GetUserByEmail(ctx, session.Identity)
	switch {
	case err == nil:
		e.emitAudit(ctx, auditEventUserCreatedFromGuest, false, session.Identity, ErrUserExists, nil)
		return nil, ErrUserExists
	case errors.Is(err, ErrUserNotFound):
	default:
		e.metricInc(MetricStorageFailure)
		return nil, ErrStorageUnavailable
	}

	input.Email = session.Identity
	user, err := e.userProvider.CreateUser(ctx, input)
	if err != nil {
		e.metricInc(MetricStorageFailure)
		e.emitAudit(ctx, auditEventUserCreatedFromGuest, false, session.Identity, ErrStorageUnavailable, nil)
		return nil, ErrStorageUnavailable
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventUserCreatedFromGuest, true, session.Identity, nil, func() map[string]string {
		return map[string]string{
			"user_id": user.UserID,
		}
	})

	result := &LoginResult{
		UserExists:  true,
		UserCreated: true,
		UserID:      user.UserID,
		Email:       user.Email,
	}

	if accessToken, err := e.mintAccessToken(user); err == nil {
		result.AccessToken = accessToken
	}

	return result, nil
}
