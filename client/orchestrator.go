package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"

	"github.com/stellar/go/strkey"
)

// State is a position in the login flow.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateChallengeIssued
	StateAwaitingExternalSignature
	StateVerifying
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateChallengeIssued:
		return "challenge-issued"
	case StateAwaitingExternalSignature:
		return "awaiting-external-signature"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrUnsignableEnvelope = errors.New("envelope cannot be signed")
	ErrNoSigner           = errors.New("no in-process signer configured")
	ErrInvalidState       = errors.New("operation not valid in current state")
	ErrInvalidPublicKey   = errors.New("public key must be a G... account address")
)

// SessionStatus is the server's answer on /auth/status, the single source of
// truth for whether the flow has completed.
type SessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	PublicKey     string `json:"public_key"`
	UserID        string `json:"user_id"`
}

// Orchestrator drives the login flow against the auth endpoints. It only ever
// talks to the network surface: signing happens in an external signer (or the
// in-process Signer), storage never here. Progress across a hand-off to an
// external app is recovered by re-polling session status, never from memory.
type Orchestrator struct {
	baseURL string
	http    *http.Client
	signer  Signer
	relay   *RelayClient

	mu        sync.Mutex
	state     State
	publicKey string
	envelope  string
	network   string
	lastErr   error
}

// NewOrchestrator creates an orchestrator for the auth service at baseURL.
// signer and relay are both optional; httpClient may be nil, in which case a
// cookie-keeping client is created so the session cookie survives the flow.
func NewOrchestrator(baseURL string, signer Signer, relay *RelayClient, httpClient *http.Client) *Orchestrator {
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar}
	}
	return &Orchestrator{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		signer:  signer,
		relay:   relay,
		state:   StateIdle,
	}
}

// State returns the current position in the flow.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the failure that moved the flow into StateFailed, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Connect starts a login: it settles on a candidate public key (manual input,
// or the in-process signer's address when publicKey is empty) and requests a
// challenge. On success the flow sits at StateChallengeIssued.
func (o *Orchestrator) Connect(ctx context.Context, publicKey string) error {
	o.mu.Lock()
	if o.state != StateIdle && o.state != StateFailed {
		o.mu.Unlock()
		return ErrInvalidState
	}
	o.state = StateConnecting
	o.lastErr = nil
	o.mu.Unlock()

	if publicKey == "" && o.signer != nil {
		publicKey = o.signer.Address()
	}
	// Manual input is validated locally before any network round trip.
	if !strkey.IsValidEd25519PublicKey(publicKey) {
		return o.fail(ErrInvalidPublicKey)
	}

	var resp struct {
		Envelope          string `json:"envelope"`
		NetworkPassphrase string `json:"network_passphrase"`
	}
	err := o.postJSON(ctx, "/auth/challenge", map[string]string{"public_key": publicKey}, &resp)
	if err != nil {
		return o.fail(err)
	}

	o.mu.Lock()
	o.publicKey = publicKey
	o.envelope = resp.Envelope
	o.network = resp.NetworkPassphrase
	o.state = StateChallengeIssued
	o.mu.Unlock()
	return nil
}

// SignInProcess runs the extension-style path: sign without leaving the
// process, submit to the verify endpoint, then confirm via session status.
func (o *Orchestrator) SignInProcess(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateChallengeIssued {
		o.mu.Unlock()
		return ErrInvalidState
	}
	if o.signer == nil {
		o.mu.Unlock()
		return ErrNoSigner
	}
	envelope, network, publicKey := o.envelope, o.network, o.publicKey
	o.state = StateAwaitingExternalSignature
	o.mu.Unlock()

	signed, err := o.signer.SignEnvelope(envelope, network)
	if err != nil {
		return o.fail(err)
	}

	o.setState(StateVerifying)

	var resp struct {
		PublicKey string `json:"public_key"`
		UserID    string `json:"user_id"`
	}
	err = o.postJSON(ctx, "/auth/verify", map[string]string{
		"envelope":   signed,
		"public_key": publicKey,
	}, &resp)
	if err != nil {
		return o.fail(err)
	}

	// The cookie is set now, but the server's status read stays the single
	// source of truth rather than any local optimistic state.
	status, err := o.Status(ctx)
	if err != nil {
		return o.fail(err)
	}
	if !status.Authenticated {
		return o.fail(errors.New("verification reported success but session is not established"))
	}

	o.setState(StateAuthenticated)
	return nil
}

// HandOff runs the external-bot path: it returns a URL to open for signing
// and leaves the flow at StateAwaitingExternalSignature. The relay URL is
// preferred; if the relay is down the raw deep link comes back together with
// the relay error, and the caller can still proceed with it.
func (o *Orchestrator) HandOff(ctx context.Context) (string, error) {
	o.mu.Lock()
	if o.state != StateChallengeIssued {
		o.mu.Unlock()
		return "", ErrInvalidState
	}
	envelope := o.envelope
	o.state = StateAwaitingExternalSignature
	o.mu.Unlock()

	link := DeepLink(envelope, o.baseURL+"/auth/callback")

	if o.relay == nil {
		return link, nil
	}
	relayURL, err := o.relay.RelayURL(ctx, link)
	if err != nil {
		// Graceful degradation: the deep link still works on its own.
		return link, err
	}
	return relayURL, nil
}

// Resume re-checks session status after returning from an external signer,
// e.g. on window focus. Completion is only ever detected this way; nothing is
// kept in memory across the hand-off.
func (o *Orchestrator) Resume(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if o.state != StateAwaitingExternalSignature && o.state != StateAuthenticated {
		o.mu.Unlock()
		return false, ErrInvalidState
	}
	o.mu.Unlock()

	status, err := o.Status(ctx)
	if err != nil {
		return false, err
	}
	if status.Authenticated {
		o.setState(StateAuthenticated)
		return true, nil
	}
	return false, nil
}

// Cancel abandons the flow before verification. Nothing is pinned server-side
// except the issued nonce, which expires on its own.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateVerifying || o.state == StateAuthenticated {
		return ErrInvalidState
	}
	o.state = StateIdle
	o.publicKey, o.envelope, o.network, o.lastErr = "", "", "", nil
	return nil
}

// Status reads /auth/status.
func (o *Orchestrator) Status(ctx context.Context) (SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/auth/status", nil)
	if err != nil {
		return SessionStatus{}, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return SessionStatus{}, err
	}
	defer resp.Body.Close()

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return SessionStatus{}, err
	}
	return status, nil
}

// Logout clears the server-set session cookie and resets the flow.
func (o *Orchestrator) Logout(ctx context.Context) error {
	if err := o.postJSON(ctx, "/auth/logout", struct{}{}, nil); err != nil {
		return err
	}
	o.mu.Lock()
	o.state = StateIdle
	o.publicKey, o.envelope, o.network, o.lastErr = "", "", "", nil
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) fail(err error) error {
	o.mu.Lock()
	o.state = StateFailed
	o.lastErr = err
	o.mu.Unlock()
	return err
}

func (o *Orchestrator) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("auth service answered %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
