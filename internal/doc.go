// Package internal contains helper utilities that are intentionally private
// to zerofriction: cryptographically secure credential generation and the
// keyed credential hash.
//
// # What this package must NOT do
//
//   - Export types that appear in the public zerofriction API.
//   - Be imported by any package outside the zerofriction module.
//   - Use any randomness source other than crypto/rand.
package internal
