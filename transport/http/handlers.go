package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lumenlearn/starpass/core"
	"github.com/lumenlearn/starpass/ports"
	"github.com/lumenlearn/starpass/service"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "starpass_session"

const sessionCookieMaxAge = int(core.SessionTTL / 1e9) // seconds

// Machine-readable reason codes returned alongside verification failures.
// They mirror the error taxonomy, not the individual checks.
const (
	codeInvalidKey     = "invalid_public_key"
	codeInvalidTx      = "invalid_transaction"
	codeExpired        = "session_not_found_or_expired"
	codeUpstream       = "upstream_unavailable"
	codeInvalidRequest = "invalid_request"
)

// AuthHandlers contains the HTTP handlers for the auth endpoints.
type AuthHandlers struct {
	authService   *service.AuthService
	sessions      ports.SessionCodec
	logger        *zap.Logger
	secureCookies bool
}

// NewAuthHandlers creates the auth handlers. secureCookies should be true in
// every environment served over TLS.
func NewAuthHandlers(authService *service.AuthService, sessions ports.SessionCodec, logger *zap.Logger, secureCookies bool) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{
		authService:   authService,
		sessions:      sessions,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// Challenge issues a server-signed challenge envelope for the claimed key.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		PublicKey string `json:"public_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": codeInvalidRequest})
		return
	}

	challenge, err := h.authService.Challenge(c.Request.Context(), req.PublicKey)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidPublicKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidKey})
		case errors.Is(err, core.ErrHorizonUnavailable):
			h.logger.Error("challenge issuance failed upstream", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "network unavailable, please retry", "code": codeUpstream})
		case errors.Is(err, core.ErrNonceCollision):
			h.logger.Error("nonce collision on issuance", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge, please retry", "code": codeUpstream})
		default:
			h.logger.Error("challenge issuance failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"envelope":           challenge.EnvelopeXDR,
		"network_passphrase": challenge.NetworkPassphrase,
		"nonce":              challenge.Nonce,
	})
}

// Verify is the in-process signing path: the extension returns the signed
// envelope to the page, which submits it here together with the claimed key.
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Envelope  string `json:"envelope" binding:"required"`
		PublicKey string `json:"public_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": codeInvalidRequest})
		return
	}

	identity, err := h.authService.Verify(c.Request.Context(), req.Envelope, req.PublicKey)
	if err != nil {
		h.rejectVerification(c, err)
		return
	}

	h.finishLogin(c, identity)
}

// Callback is the external-bot signing path. The signer posts the dual-signed
// envelope here (SEP-7 callback), so the claimed key comes from the envelope
// itself rather than a request field.
func (h *AuthHandlers) Callback(c *gin.Context) {
	envelope := c.PostForm("xdr")
	if envelope == "" {
		envelope = c.Query("xdr")
	}
	if envelope == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": codeInvalidRequest})
		return
	}

	identity, err := h.authService.VerifyCallback(c.Request.Context(), envelope)
	if err != nil {
		h.rejectVerification(c, err)
		return
	}

	h.finishLogin(c, identity)
}

// Status reports whether the request carries a valid session. It always
// answers 200: a bad cookie is simply an unauthenticated reader.
func (h *AuthHandlers) Status(c *gin.Context) {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	data, err := h.sessions.Read(token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"public_key":    data.PublicKey,
		"user_id":       data.UserID.String(),
	})
}

// Logout clears the session cookie. The token is self-contained, so dropping
// the cookie is the whole logout.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		if data, err := h.sessions.Read(token); err == nil {
			h.authService.Logout(c.Request.Context(), data.PublicKey)
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// finishLogin mints the session token, sets the cookie and answers with the
// verified identity.
func (h *AuthHandlers) finishLogin(c *gin.Context, identity core.VerifiedIdentity) {
	token, err := h.sessions.Issue(identity)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, sessionCookieMaxAge, "/", "", h.secureCookies, true)

	c.JSON(http.StatusOK, gin.H{
		"public_key": identity.PublicKey,
		"user_id":    identity.UserID.String(),
	})
}

// rejectVerification maps a verification failure onto the response taxonomy.
// Shape and cryptographic failures share one generic message; the full cause
// is only ever logged server-side.
func (h *AuthHandlers) rejectVerification(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidPublicKey):
		h.logger.Warn("verification rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidKey})
	case service.IsShapeError(err):
		h.logger.Warn("verification rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction", "code": codeInvalidTx})
	case service.IsExpiredError(err):
		h.logger.Warn("verification rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired session", "code": codeExpired})
	default:
		h.logger.Error("verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
	}
}
