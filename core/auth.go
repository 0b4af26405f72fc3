package core

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeTTL is how long an issued challenge stays valid.
const ChallengeTTL = 5 * time.Minute

// NonceLength is the number of random bytes in a challenge nonce before encoding.
const NonceLength = 48

// SessionTTL is the total lifetime of an issued session token.
const SessionTTL = 30 * 24 * time.Hour

// NonceRecord is the durable record of an issued challenge nonce.
type NonceRecord struct {
	Nonce     string    // base64-encoded random bytes, unique
	PublicKey string    // account the challenge was issued to, unverified at creation
	ExpiresAt time.Time // issuance time + ChallengeTTL
	Used      bool      // flipped exactly once on successful verification
}

// Challenge is what the issuer hands back to a client: a server-signed
// transaction envelope carrying the nonce as its single manage-data entry.
type Challenge struct {
	EnvelopeXDR       string // base64 envelope bearing exactly one (server) signature
	NetworkPassphrase string
	Nonce             string
}

// User is an account that has completed verification at least once.
type User struct {
	ID        uuid.UUID
	PublicKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerifiedIdentity is the outcome of a successful envelope verification.
type VerifiedIdentity struct {
	PublicKey string
	UserID    uuid.UUID
}

// SessionData is what a session token decodes to.
type SessionData struct {
	PublicKey string
	UserID    uuid.UUID
	IssuedAt  time.Time
}
