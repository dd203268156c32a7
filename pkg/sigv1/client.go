package sigv1

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client wraps http.Client and signs every outgoing request according to
// the v1 contract. It is the reference producer: if a request signed by
// this client fails verification, the server (or the secret) is wrong.
type Client struct {
	httpClient *http.Client
	secret     []byte
	clientID   string

	// Now supplies the signing timestamp; overridable in tests.
	Now func() time.Time
}

// NewClient creates a signing HTTP client for the given identity and secret.
func NewClient(clientID string, secret []byte) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		secret:   secret,
		clientID: clientID,
		Now:      time.Now,
	}
}

// Post sends a signed POST with the given JSON body to url. The body is
// canonicalized before signing and the canonical bytes are what travel on
// the wire, so the server verifies exactly what was signed.
func (c *Client) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	canonical, err := CanonicalBody(body)
	if err != nil {
		return nil, fmt.Errorf("sigv1: canonicalize body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(canonical))
	if err != nil {
		return nil, err
	}

	ts := c.Now().UnixMilli()
	nonce := NewNonce()
	payload := Payload(http.MethodPost, req.URL.Path, canonical, ts, nonce)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, Sign(c.secret, payload))
	req.Header.Set(HeaderClientID, c.clientID)

	return c.httpClient.Do(req)
}
