package core

import "errors"

var (
	// Input validation: safe to surface verbatim.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// Shape and cryptographic failures. Handlers surface all of these as a
	// generic "invalid transaction" so callers cannot tell which check failed.
	ErrMalformedEnvelope      = errors.New("malformed transaction envelope")
	ErrEnvelopeShape          = errors.New("unexpected transaction shape")
	ErrServerSignatureMissing = errors.New("server signature missing or invalid")
	ErrClientSignatureMissing = errors.New("client signature missing or invalid")

	// Temporal failures: expired timebounds and every nonce outcome (never
	// issued, already used, expired, wrong key) collapse together so nonces
	// cannot be enumerated.
	ErrChallengeExpired = errors.New("challenge has expired")
	ErrNonceNotFound    = errors.New("challenge not found or expired")

	// Storage.
	ErrNonceCollision = errors.New("nonce already exists")

	// Upstream collaborators.
	ErrHorizonUnavailable = errors.New("horizon unavailable")
	ErrRelayUnavailable   = errors.New("signing relay unavailable")

	// Session tokens: the single outcome a reader ever reports.
	ErrSessionInvalid = errors.New("session is invalid")
)
