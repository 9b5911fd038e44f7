package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const BackendHTTP = "http"

// HTTPClient talks to a JSON ledger gateway that accepts a fingerprint and
// answers with the hash of the transaction that carries it.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type anchorRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type anchorResponse struct {
	TxHash     string          `json:"tx_hash"`
	AnchoredAt json.RawMessage `json:"anchored_at"`
}

// maxResponseBytes bounds how much of a gateway reply is decoded.
const maxResponseBytes = 64 << 10

// anchoredAt reads the optional anchored_at field. Gateways disagree on its
// shape, so RFC 3339 strings and unix seconds are accepted and anything else
// falls back to the local clock.
func (r anchorResponse) anchoredAt(now time.Time) time.Time {
	raw := bytes.TrimSpace(r.AnchoredAt)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return now
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
		return now
	}
	var secs int64
	if err := json.Unmarshal(raw, &secs); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return now
}

// NewHTTPClient creates a ledger gateway client. The per-call deadline comes
// from the context; the client timeout is only a backstop.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) Anchor(ctx context.Context, fingerprint string) (Receipt, error) {
	if err := checkFingerprint(BackendHTTP, fingerprint); err != nil {
		return Receipt{}, err
	}

	jsonData, err := json.Marshal(anchorRequest{Fingerprint: fingerprint})
	if err != nil {
		return Receipt{}, &Error{Backend: BackendHTTP, Kind: KindMalformed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/anchor", bytes.NewBuffer(jsonData))
	if err != nil {
		return Receipt{}, &Error{Backend: BackendHTTP, Kind: KindRejected, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cerr := contextError(BackendHTTP, ctx); cerr != nil {
			return Receipt{}, cerr
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Receipt{}, &Error{Backend: BackendHTTP, Kind: KindTimeout, Err: err}
		}
		return Receipt{}, &Error{Backend: BackendHTTP, Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		kind := KindUnavailable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			kind = KindRejected
		}
		return Receipt{}, &Error{
			Backend: BackendHTTP,
			Kind:    kind,
			Err:     fmt.Errorf("ledger returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var result anchorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		return Receipt{}, &Error{Backend: BackendHTTP, Kind: KindMalformed, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if strings.TrimSpace(result.TxHash) == "" {
		return Receipt{}, &Error{Backend: BackendHTTP, Kind: KindMalformed, Err: errors.New("response has no tx_hash")}
	}

	return Receipt{Token: result.TxHash, Backend: BackendHTTP, AnchoredAt: result.anchoredAt(time.Now().UTC())}, nil
}
