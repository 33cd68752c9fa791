package zerofriction

import "errors"

var (
	// ErrInvalidIdentity is returned when the supplied identity is not a
	// syntactically valid email address.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrLockedOut is returned while an active lockout covers the identifier.
	ErrLockedOut = errors.New("identifier locked out")
	// ErrHourlyLimit is returned when the per-identity hourly issuance
	// threshold is exceeded. A lockout has been applied.
	ErrHourlyLimit = errors.New("hourly issuance limit exceeded")
	// ErrBurstLimit is returned when the per-identity burst threshold is
	// exceeded. No lockout is applied; the caller may retry shortly.
	ErrBurstLimit = errors.New("issuance burst limit exceeded")
	// ErrSourceLimit is returned when the per-source hourly threshold is
	// exceeded. A lockout has been applied to the source identifier.
	ErrSourceLimit = errors.New("source issuance limit exceeded")
	// ErrInvalidCredentialKind is returned when issuance is asked for an
	// unknown credential kind.
	ErrInvalidCredentialKind = errors.New("invalid credential kind")
	// ErrCredentialInvalid is the single verification failure result. It
	// covers wrong code, expired credential, and no credential at all, so a
	// caller cannot distinguish them.
	ErrCredentialInvalid = errors.New("invalid or expired credential")
	// ErrGuestSessionInvalid is returned when a guest session token is
	// missing, expired, already consumed, or bound to a different identity.
	ErrGuestSessionInvalid = errors.New("invalid or expired guest session")
	// ErrRegistrationDisabled is returned when a verified identity has no
	// account and account creation is not permitted.
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrUserExists is returned by guest account creation when an account
	// already holds the identity.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound must be returned by [UserProvider.GetUserByEmail] when
	// no account holds the identity.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionUnavailable is returned by login orchestration when session
	// token issuance is not configured.
	ErrSessionUnavailable = errors.New("session issuance not configured")
	// ErrStorageUnavailable indicates a persistence failure. Issuance and
	// admission fail closed on it; the caller may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEngineNotReady is returned when an Engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
