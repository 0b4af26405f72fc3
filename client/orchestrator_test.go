package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stretchr/testify/require"

	"github.com/lumenlearn/starpass/adapters/sessions"
	"github.com/lumenlearn/starpass/adapters/store"
	"github.com/lumenlearn/starpass/client"
	"github.com/lumenlearn/starpass/service"
	transport "github.com/lumenlearn/starpass/transport/http"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAccounts struct{}

func (s *stubAccounts) SequenceForAccount(ctx context.Context, accountID string) (int64, error) {
	return 7, nil
}

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	serverKey, err := keypair.Random()
	require.NoError(t, err)

	st := store.NewMemoryStore(nil)
	svc := service.NewAuthService(
		st, st, &stubAccounts{}, nil,
		serverKey, network.TestNetworkPassphrase, "quest.lumenlearn.io",
		nil, nil,
	)
	codec := sessions.NewJWTCodec([]byte("test-session-secret"), nil)
	handlers := transport.NewAuthHandlers(svc, codec, nil, false)

	srv := httptest.NewServer(transport.SetupRouter(handlers))
	t.Cleanup(srv.Close)
	return srv
}

func TestInProcessSigningFlow(t *testing.T) {
	srv := newAuthServer(t)
	clientKey, err := keypair.Random()
	require.NoError(t, err)
	signer := client.NewKeypairSigner(clientKey)

	o := client.NewOrchestrator(srv.URL, signer, nil, nil)
	require.Equal(t, client.StateIdle, o.State())

	// No explicit key: the signer's address is the candidate.
	require.NoError(t, o.Connect(context.Background(), ""))
	require.Equal(t, client.StateChallengeIssued, o.State())

	require.NoError(t, o.SignInProcess(context.Background()))
	require.Equal(t, client.StateAuthenticated, o.State())

	status, err := o.Status(context.Background())
	require.NoError(t, err)
	require.True(t, status.Authenticated)
	require.Equal(t, clientKey.Address(), status.PublicKey)

	require.NoError(t, o.Logout(context.Background()))
	status, err = o.Status(context.Background())
	require.NoError(t, err)
	require.False(t, status.Authenticated)
}

func TestConnectValidatesManualInputLocally(t *testing.T) {
	// No server: validation must fail before any network round trip.
	o := client.NewOrchestrator("http://127.0.0.1:0", nil, nil, nil)

	err := o.Connect(context.Background(), "GNOTAVALIDKEY")
	require.ErrorIs(t, err, client.ErrInvalidPublicKey)
	require.Equal(t, client.StateFailed, o.State())
	require.ErrorIs(t, o.Err(), client.ErrInvalidPublicKey)

	// A failed flow can be restarted.
	require.NoError(t, o.Cancel())
	require.Equal(t, client.StateIdle, o.State())
}

func TestHandOffAndResume(t *testing.T) {
	srv := newAuthServer(t)
	clientKey, err := keypair.Random()
	require.NoError(t, err)
	signer := client.NewKeypairSigner(clientKey)

	o := client.NewOrchestrator(srv.URL, signer, nil, nil)
	require.NoError(t, o.Connect(context.Background(), clientKey.Address()))

	link, err := o.HandOff(context.Background())
	require.NoError(t, err)
	require.Equal(t, client.StateAwaitingExternalSignature, o.State())
	require.True(t, strings.HasPrefix(link, "web+stellar:tx?"))

	// Nothing signed yet: resuming observes an unauthenticated session.
	done, err := o.Resume(context.Background())
	require.NoError(t, err)
	require.False(t, done)

	// Simulate the external signer: pull the envelope out of the deep link,
	// sign it and post it to the callback, as the bot would.
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	q := parsed.Query()
	envelope := q.Get("xdr")
	require.NotEmpty(t, envelope)
	callback := strings.TrimPrefix(q.Get("callback"), "url:")
	require.True(t, strings.HasSuffix(callback, "/auth/callback"))

	signed, err := signer.SignEnvelope(envelope, network.TestNetworkPassphrase)
	require.NoError(t, err)
	resp, err := http.PostForm(callback, url.Values{"xdr": {signed}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The orchestrator's own cookie jar never saw the bot's session, so the
	// flow is still pending from this process's point of view; a fresh
	// status poll is still the only completion signal. Here the cookie went
	// to the bot, so the orchestrator stays unauthenticated.
	done, err = o.Resume(context.Background())
	require.NoError(t, err)
	require.False(t, done)
}

func TestCancelBeforeVerifying(t *testing.T) {
	srv := newAuthServer(t)
	clientKey, err := keypair.Random()
	require.NoError(t, err)

	o := client.NewOrchestrator(srv.URL, nil, nil, nil)
	require.NoError(t, o.Connect(context.Background(), clientKey.Address()))
	require.NoError(t, o.Cancel())
	require.Equal(t, client.StateIdle, o.State())
}

func TestSignInProcessRequiresSigner(t *testing.T) {
	srv := newAuthServer(t)
	clientKey, err := keypair.Random()
	require.NoError(t, err)

	o := client.NewOrchestrator(srv.URL, nil, nil, nil)
	require.NoError(t, o.Connect(context.Background(), clientKey.Address()))
	require.ErrorIs(t, o.SignInProcess(context.Background()), client.ErrNoSigner)
}
