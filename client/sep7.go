package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lumenlearn/starpass/core"
)

// DeepLink builds a SEP-7 transaction URI that hands the envelope to an
// external signer. The signer submits the dual-signed result to callbackURL.
// Both the envelope and the callback are URL-encoded; the callback carries
// the "url:" prefix the scheme requires.
func DeepLink(envelopeXDR, callbackURL string) string {
	q := url.Values{}
	q.Set("xdr", envelopeXDR)
	q.Set("callback", "url:"+callbackURL)
	return "web+stellar:tx?" + q.Encode()
}

// RelayClient exchanges a deep link for a bot-specific relay URL through a
// third-party relay API, for signers reachable only through a messaging app.
type RelayClient struct {
	baseURL string
	http    *http.Client
}

func NewRelayClient(baseURL string, httpClient *http.Client) *RelayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// RelayURL asks the relay API for a signer-specific URL wrapping the deep
// link. On any failure the caller should fall back to opening the deep link
// directly; the returned error says so.
func (r *RelayClient) RelayURL(ctx context.Context, deepLink string) (string, error) {
	endpoint := r.baseURL + "/relay?uri=" + url.QueryEscape(deepLink)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrRelayUnavailable, err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v; open the signing link directly instead", core.ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: relay answered %d; open the signing link directly instead", core.ErrRelayUnavailable, resp.StatusCode)
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.URL == "" {
		return "", fmt.Errorf("%w: unusable relay response; open the signing link directly instead", core.ErrRelayUnavailable)
	}

	return body.URL, nil
}
