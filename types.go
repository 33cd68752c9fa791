package zerofriction

import (
	"context"
	"time"
)

// CredentialKind selects the shape of the plaintext credential handed to the
// caller for delivery.
type CredentialKind uint8

const (
	// KindNumericOTP is a short decimal one-time code.
	KindNumericOTP CredentialKind = iota
	// KindAlphanumericOTP is a short uppercase alphanumeric one-time code.
	KindAlphanumericOTP
	// KindMagicLink is a long opaque single-use token intended to be
	// embedded in a URL.
	KindMagicLink
)

func (k CredentialKind) String() string {
	switch k {
	case KindNumericOTP:
		return "numeric_otp"
	case KindAlphanumericOTP:
		return "alphanumeric_otp"
	case KindMagicLink:
		return "magic_link"
	default:
		return "unknown"
	}
}

// Issued is returned by [Engine.RequestCredential]. Code is the plaintext
// credential and exists only here — it is never persisted or logged. The
// caller passes it to its delivery collaborator and discards it.
type Issued struct {
	Identity  string
	Kind      CredentialKind
	Code      string
	ExpiresAt time.Time
}

// UserRecord is the minimal account record the engine needs from the
// caller's user database.
type UserRecord struct {
	UserID      string
	Email       string
	DisplayName string
}

// CreateUserInput is the input for [UserProvider.CreateUser]. The engine
// only creates accounts for identities it has verified.
type CreateUserInput struct {
	Email       string
	DisplayName string
}

// UserProvider is the interface callers implement to let the engine resolve
// verified identities to accounts and create accounts from guest sessions.
//
// GetUserByEmail must return [ErrUserNotFound] (possibly wrapped) when no
// account holds the address; any other error is treated as a backend
// failure and fails the operation closed.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
}

// LoginResult is returned by [Engine.VerifyAndLogin] and
// [Engine.CreateAccountFromGuest].
//
// When UserExists is true the identity resolved to an account and
// AccessToken carries a signed session token. When UserExists is false the
// verification succeeded but no account holds the identity; GuestToken
// bridges to a deferred account-creation step.
type LoginResult struct {
	UserExists  bool
	UserID      string
	Email       string
	AccessToken string

	GuestToken  string
	UserCreated bool
}

// GuestSession attests that an identity was verified but has no account
// yet. It is single-use and bound to exactly one identity.
type GuestSession struct {
	Token     string
	Identity  string
	ExpiresAt time.Time
}
