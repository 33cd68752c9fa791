// Package zerofriction implements the core of a passwordless authentication
// system: single-use one-time codes and magic-link tokens, sliding-window
// rate limiting with lockout, and the credential verification state machine.
//
// The package is the authentication core only. It hands plaintext codes back
// to the caller for delivery, and it resolves accounts through a
// caller-supplied [UserProvider]; UI, email transport, and HTTP wiring are
// the orchestration layer's problem. Engine methods are safe to call from
// multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// zerofriction is the public surface. It exposes [Engine], [Builder],
// [Config], the rate limiter admission types ([Identifier], [Decision]),
// and value types (Issued, LoginResult, AuditEvent). Credential generation
// and hashing primitives live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Persist or log a plaintext credential anywhere. Only the keyed HMAC of
//     a code ever reaches Redis; the plaintext exists in the Issued result
//     and nowhere else.
//   - Reveal whether an identity exists. Verification failures share one
//     result ([ErrCredentialInvalid]) regardless of cause.
//   - Fail open. If Redis is unreachable, admission checks and issuance deny.
package zerofriction
