// Package jwt mints and validates the signed access tokens the engine
// hands out after a successful passwordless login. HS256 and Ed25519 are
// supported; the algorithm is pinned at construction and token headers
// cannot downgrade it.
package jwt
