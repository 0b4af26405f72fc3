package ports

import "github.com/lumenlearn/starpass/core"

// SessionCodec converts between verified identities and self-contained
// session tokens. It is a pure codec: no storage, no side effects.
type SessionCodec interface {
	// Issue mints a signed session token for a verified identity.
	Issue(identity core.VerifiedIdentity) (string, error)

	// Read verifies and decodes a token. Any failure, whether a bad
	// signature, a malformed token or an elapsed expiry, is reported as
	// core.ErrSessionInvalid and nothing else.
	Read(token string) (core.SessionData, error)
}
