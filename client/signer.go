package client

import (
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// Signer is the in-process signing capability: the analog of a browser
// extension that holds the key and signs without leaving the page. It is
// handed the unsigned-by-client envelope and nothing else.
type Signer interface {
	// Address returns the public key the signer controls.
	Address() string

	// SignEnvelope adds the client signature to a challenge envelope and
	// returns the re-serialized envelope.
	SignEnvelope(envelopeXDR, networkPassphrase string) (string, error)
}

// KeypairSigner signs with a local keypair. Used by tests and CLI flows where
// the secret seed is available in-process.
type KeypairSigner struct {
	kp *keypair.Full
}

func NewKeypairSigner(kp *keypair.Full) *KeypairSigner {
	return &KeypairSigner{kp: kp}
}

func (s *KeypairSigner) Address() string {
	return s.kp.Address()
}

func (s *KeypairSigner) SignEnvelope(envelopeXDR, networkPassphrase string) (string, error) {
	generic, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return "", err
	}
	tx, ok := generic.Transaction()
	if !ok {
		return "", ErrUnsignableEnvelope
	}

	tx, err = tx.Sign(networkPassphrase, s.kp)
	if err != nil {
		return "", err
	}

	return tx.Base64()
}
