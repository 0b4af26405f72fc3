package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/lumenlearn/starpass/core"
	"github.com/lumenlearn/starpass/ports"
)

// AuthService issues challenge envelopes and verifies their signed return.
type AuthService struct {
	nonces   ports.NonceStore
	users    ports.UserStore
	accounts ports.AccountSource
	eventPub ports.EventPublisher

	serverKey         *keypair.Full
	networkPassphrase string
	homeDomain        string

	challengeTTL time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewAuthService creates the auth service. eventPub may be nil when no broker
// is configured. now may be nil to use the wall clock.
func NewAuthService(
	nonces ports.NonceStore,
	users ports.UserStore,
	accounts ports.AccountSource,
	eventPub ports.EventPublisher,
	serverKey *keypair.Full,
	networkPassphrase string,
	homeDomain string,
	logger *zap.Logger,
	now func() time.Time,
) *AuthService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		nonces:            nonces,
		users:             users,
		accounts:          accounts,
		eventPub:          eventPub,
		serverKey:         serverKey,
		networkPassphrase: networkPassphrase,
		homeDomain:        homeDomain,
		challengeTTL:      core.ChallengeTTL,
		now:               now,
		logger:            logger,
	}
}

// dataKey is the manage-data entry name that scopes a challenge to this server.
func (s *AuthService) dataKey() string {
	return s.homeDomain + " auth"
}

// Challenge builds a server-signed envelope embedding a fresh nonce for
// publicKey and persists the nonce record.
func (s *AuthService) Challenge(ctx context.Context, publicKey string) (core.Challenge, error) {
	if !strkey.IsValidEd25519PublicKey(publicKey) {
		return core.Challenge{}, core.ErrInvalidPublicKey
	}

	seq, err := s.accounts.SequenceForAccount(ctx, s.serverKey.Address())
	if err != nil {
		return core.Challenge{}, fmt.Errorf("%w: %v", core.ErrHorizonUnavailable, err)
	}

	nonceBytes := make([]byte, core.NonceLength)
	if _, err := rand.Read(nonceBytes); err != nil {
		return core.Challenge{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := base64.StdEncoding.EncodeToString(nonceBytes)

	issuedAt := s.now()
	rec := core.NonceRecord{
		Nonce:     nonce,
		PublicKey: publicKey,
		ExpiresAt: issuedAt.Add(s.challengeTTL),
	}
	if err := s.nonces.Create(ctx, rec); err != nil {
		return core.Challenge{}, err
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount: &txnbuild.SimpleAccount{
			AccountID: s.serverKey.Address(),
			Sequence:  seq,
		},
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.ManageData{
				Name:          s.dataKey(),
				Value:         []byte(nonce),
				SourceAccount: publicKey,
			},
		},
		BaseFee: txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(issuedAt.Unix(), rec.ExpiresAt.Unix()),
		},
	})
	if err != nil {
		return core.Challenge{}, fmt.Errorf("failed to build challenge envelope: %w", err)
	}

	tx, err = tx.Sign(s.networkPassphrase, s.serverKey)
	if err != nil {
		return core.Challenge{}, fmt.Errorf("failed to sign challenge envelope: %w", err)
	}

	envelope, err := tx.Base64()
	if err != nil {
		return core.Challenge{}, fmt.Errorf("failed to serialize challenge envelope: %w", err)
	}

	return core.Challenge{
		EnvelopeXDR:       envelope,
		NetworkPassphrase: s.networkPassphrase,
		Nonce:             nonce,
	}, nil
}

// Verify checks a returned, dual-signed envelope against the claimed public
// key, consumes the nonce and upserts the user.
func (s *AuthService) Verify(ctx context.Context, envelopeXDR, publicKey string) (core.VerifiedIdentity, error) {
	if !strkey.IsValidEd25519PublicKey(publicKey) {
		return core.VerifiedIdentity{}, core.ErrInvalidPublicKey
	}
	return s.verify(ctx, envelopeXDR, publicKey)
}

// VerifyCallback is the signing-bot entry point: the claimed key is not sent
// alongside the envelope, so it is taken from the operation's source account.
// The validation sequence is otherwise identical to Verify.
func (s *AuthService) VerifyCallback(ctx context.Context, envelopeXDR string) (core.VerifiedIdentity, error) {
	return s.verify(ctx, envelopeXDR, "")
}

// verify runs the fail-closed validation sequence. An empty claimedKey means
// the operation source account is adopted as the claimed key.
func (s *AuthService) verify(ctx context.Context, envelopeXDR, claimedKey string) (core.VerifiedIdentity, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: %v", core.ErrMalformedEnvelope, err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: fee bump envelopes are not accepted", core.ErrMalformedEnvelope)
	}

	ops := tx.Operations()
	if len(ops) != 1 {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: expected 1 operation, got %d", core.ErrEnvelopeShape, len(ops))
	}
	op, ok := ops[0].(*txnbuild.ManageData)
	if !ok {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: operation is not manage data", core.ErrEnvelopeShape)
	}

	if op.Name != s.dataKey() {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: unexpected data key %q", core.ErrEnvelopeShape, op.Name)
	}

	if claimedKey == "" {
		claimedKey = op.SourceAccount
		if !strkey.IsValidEd25519PublicKey(claimedKey) {
			return core.VerifiedIdentity{}, fmt.Errorf("%w: operation has no valid source account", core.ErrEnvelopeShape)
		}
	} else if op.SourceAccount != claimedKey {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: operation source does not match claimed key", core.ErrEnvelopeShape)
	}

	nonce := string(op.Value)
	if nonce == "" {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: empty data value", core.ErrEnvelopeShape)
	}

	if tx.Timebounds().MaxTime < s.now().Unix() {
		return core.VerifiedIdentity{}, core.ErrChallengeExpired
	}

	sigs := tx.Signatures()
	if len(sigs) != 2 {
		return core.VerifiedIdentity{}, fmt.Errorf("%w: expected 2 signatures, got %d", core.ErrEnvelopeShape, len(sigs))
	}

	hash, err := tx.Hash(s.networkPassphrase)
	if err != nil {
		return core.VerifiedIdentity{}, fmt.Errorf("failed to hash envelope: %w", err)
	}

	// Each party must have contributed exactly one valid signature. The
	// server signature proves this exact challenge was issued here; the
	// client signature proves possession of the claimed key.
	if countValidSignatures(hash[:], sigs, s.serverKey.FromAddress()) != 1 {
		return core.VerifiedIdentity{}, core.ErrServerSignatureMissing
	}
	clientAddr, err := keypair.ParseAddress(claimedKey)
	if err != nil {
		return core.VerifiedIdentity{}, core.ErrInvalidPublicKey
	}
	if countValidSignatures(hash[:], sigs, clientAddr) != 1 {
		return core.VerifiedIdentity{}, core.ErrClientSignatureMissing
	}

	if _, err := s.nonces.FindActive(ctx, nonce, claimedKey); err != nil {
		return core.VerifiedIdentity{}, err
	}
	if err := s.nonces.MarkUsed(ctx, nonce); err != nil {
		return core.VerifiedIdentity{}, err
	}

	user, err := s.users.Upsert(ctx, claimedKey)
	if err != nil {
		return core.VerifiedIdentity{}, fmt.Errorf("failed to upsert user: %w", err)
	}

	identity := core.VerifiedIdentity{PublicKey: claimedKey, UserID: user.ID}

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, identity.PublicKey, identity.UserID); err != nil {
			s.logger.Warn("failed to publish login event", zap.Error(err))
		}
	}

	return identity, nil
}

// Logout publishes the logout event. The session itself lives only in the
// client's cookie, so there is nothing server-side to tear down.
func (s *AuthService) Logout(ctx context.Context, publicKey string) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishLogout(ctx, publicKey); err != nil {
		s.logger.Warn("failed to publish logout event", zap.Error(err))
	}
}

// PruneNonces deletes expired nonce rows when the configured store needs an
// explicit sweep. It reports how many rows were removed.
func (s *AuthService) PruneNonces(ctx context.Context) (int64, error) {
	pruner, ok := s.nonces.(ports.NoncePruner)
	if !ok {
		return 0, nil
	}
	return pruner.DeleteExpired(ctx, s.now())
}

// countValidSignatures returns how many of sigs verify against addr over input.
func countValidSignatures(input []byte, sigs []xdr.DecoratedSignature, addr *keypair.FromAddress) int {
	n := 0
	for _, sig := range sigs {
		if err := addr.Verify(input, sig.Signature); err == nil {
			n++
		}
	}
	return n
}

// IsShapeError reports whether err belongs to the structural or cryptographic
// class of the taxonomy, which handlers surface as one generic message.
func IsShapeError(err error) bool {
	return errors.Is(err, core.ErrMalformedEnvelope) ||
		errors.Is(err, core.ErrEnvelopeShape) ||
		errors.Is(err, core.ErrServerSignatureMissing) ||
		errors.Is(err, core.ErrClientSignatureMissing)
}

// IsExpiredError reports whether err belongs to the temporal class: expired
// timebounds and every nonce-lookup outcome collapse together.
func IsExpiredError(err error) bool {
	return errors.Is(err, core.ErrChallengeExpired) || errors.Is(err, core.ErrNonceNotFound)
}
