package sessions

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumenlearn/starpass/core"
	"github.com/lumenlearn/starpass/ports"
)

const audienceWebSession = "session:web"

// Claims combines the registered claims with the verified user ID.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// JWTCodec issues and reads HS256 session tokens signed with the server
// secret. It is a pure codec: validity is the signature plus the expiry,
// nothing is looked up anywhere.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.SessionCodec = (*JWTCodec)(nil)

// NewJWTCodec creates a session codec. now may be nil to use the wall clock.
func NewJWTCodec(secret []byte, now func() time.Time) *JWTCodec {
	if now == nil {
		now = time.Now
	}
	return &JWTCodec{
		secret: secret,
		ttl:    core.SessionTTL,
		now:    now,
	}
}

func (c *JWTCodec) Issue(identity core.VerifiedIdentity) (string, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.PublicKey,
			Audience:  jwt.ClaimStrings{audienceWebSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.New().String(),
		},
		UserID: identity.UserID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Read verifies and decodes a session token. Every failure collapses to
// core.ErrSessionInvalid so callers cannot tell which check failed.
func (c *JWTCodec) Read(tokenStr string) (core.SessionData, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithAudience(audienceWebSession), jwt.WithTimeFunc(c.now))
	if err != nil || !token.Valid {
		return core.SessionData{}, core.ErrSessionInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return core.SessionData{}, core.ErrSessionInvalid
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return core.SessionData{}, core.ErrSessionInvalid
	}

	data := core.SessionData{
		PublicKey: claims.Subject,
		UserID:    userID,
	}
	if claims.IssuedAt != nil {
		data.IssuedAt = claims.IssuedAt.Time
	}
	return data, nil
}
