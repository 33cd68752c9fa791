package zerofriction

import (
	"context"
	"errors"
)

// VerifyAndLogin runs the full login orchestration: verify the presented
// credential, resolve the identity to an account, and either mint an access
// token for a known user or bridge an unknown one into a guest session.
//
// The credential is consumed regardless of what the account lookup finds —
// a code is never reusable after a login attempt.
func (e *Engine) VerifyAndLogin(ctx context.Context, identity, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	if _, err := e.VerifyCredential(ctx, identity, code); err != nil {
		return nil, err
	}
	identity = normalizeIdentity(identity)

	user, err := e.userProvider.GetUserByEmail(ctx, identity)
	switch {
	case err == nil:
		return e.loginKnownUser(ctx, user)
	case errors.Is(err, ErrUserNotFound):
		return e.loginUnknownUser(ctx, identity)
	default:
		e.metricInc(MetricStorageFailure)
		return nil, ErrStorageUnavailable
	}
}

func (e *Engine) loginKnownUser(ctx context.Context, user UserRecord) (*LoginResult, error) {
	accessToken, err := e.mintAccessToken(user)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginSuccess, false, user.Email, ErrSessionUnavailable, nil)
		return nil, ErrSessionUnavailable
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.Email, nil, func() map[string]string {
		return map[string]string{
			"user_id": user.UserID,
		}
	})

	return &LoginResult{
		UserExists:  true,
		UserID:      user.UserID,
		Email:       user.Email,
		AccessToken: accessToken,
	}, nil
}

func (e *Engine) loginUnknownUser(ctx context.Context, identity string) (*LoginResult, error) {
	if !e.config.Guest.AllowRegistration {
		e.emitAudit(ctx, auditEventGuestSessionCreated, false, identity, ErrRegistrationDisabled, nil)
		return nil, ErrRegistrationDisabled
	}

	session, err := e.CreateGuestSession(ctx, identity)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		UserExists: false,
		Email:      identity,
		GuestToken: session.Token,
	}, nil
}

// mintAccessToken signs an access token for the user, or returns an empty
// token without error when session issuance is disabled.
func (e *Engine) mintAccessToken(user UserRecord) (string, error) {
	if !e.config.Session.Enabled || e.jwtManager == nil {
		return "", nil
	}
	return e.jwtManager.CreateAccess(user.UserID, user.Email)
}

// ParseAccessToken validates a previously minted access token and returns
// the user ID and email it carries.
func (e *Engine) ParseAccessToken(token string) (userID, email string, err error) {
	if e == nil || e.jwtManager == nil {
		return "", "", ErrSessionUnavailable
	}
	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		return "", "", err
	}
	return claims.UID, claims.Email, nil
}
