package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenlearn/starpass/client"
	"github.com/lumenlearn/starpass/core"
)

func TestDeepLinkEncoding(t *testing.T) {
	// Base64 XDR routinely contains +, / and =, all of which must survive
	// the round trip through the URI.
	envelope := "AAAA+abc/def=="
	callback := "https://quest.lumenlearn.io/auth/callback?x=1"

	link := client.DeepLink(envelope, callback)
	require.True(t, strings.HasPrefix(link, "web+stellar:tx?"))

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, envelope, q.Get("xdr"))
	require.Equal(t, "url:"+callback, q.Get("callback"))
}

func TestRelayClient(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/relay", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("uri"))
		json.NewEncoder(w).Encode(map[string]string{"url": "https://t.me/signer_bot?start=abc"})
	}))
	defer relay.Close()

	c := client.NewRelayClient(relay.URL, nil)
	got, err := c.RelayURL(context.Background(), "web+stellar:tx?xdr=abc")
	require.NoError(t, err)
	require.Equal(t, "https://t.me/signer_bot?start=abc", got)
}

func TestRelayFailureDegradesGracefully(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer relay.Close()

	c := client.NewRelayClient(relay.URL, nil)
	_, err := c.RelayURL(context.Background(), "web+stellar:tx?xdr=abc")
	require.ErrorIs(t, err, core.ErrRelayUnavailable)
	// The error tells the user to fall back to the direct deep link.
	require.Contains(t, err.Error(), "open the signing link directly")
}
