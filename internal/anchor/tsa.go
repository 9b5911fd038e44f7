package anchor

import (
	"bytes"
	"context"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const BackendTSA = "tsa"

// TokenPrefixRFC3161 prefixes tokens issued by a time-stamp authority.
const TokenPrefixRFC3161 = "rfc3161:"

var oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type messageImprint struct {
	HashAlgorithm algorithmIdentifier
	HashedMessage []byte
}

type timeStampReq struct {
	Version        int
	MessageImprint messageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          int64                 `asn1:"optional"`
	CertReq        bool                  `asn1:"optional"`
}

// PKIStatus values that carry a token.
const (
	tsaGranted         = 0
	tsaGrantedWithMods = 1
)

// TSAClient anchors fingerprints with an RFC 3161 time-stamp authority.
type TSAClient struct {
	url        string
	policyOID  string
	httpClient *http.Client
	now        func() time.Time
}

// NewTSAClient creates a time-stamp authority client.
func NewTSAClient(url, policyOID string, timeout time.Duration) *TSAClient {
	return &TSAClient{
		url:        url,
		policyOID:  policyOID,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// BuildTimeStampRequest encodes a DER TimeStampReq for a hex SHA-256 digest.
func BuildTimeStampRequest(fingerprint, policyOID string, nonce int64) ([]byte, error) {
	digest, err := hex.DecodeString(strings.TrimSpace(fingerprint))
	if err != nil {
		return nil, fmt.Errorf("invalid fingerprint: %w", err)
	}
	if len(digest) != 32 {
		return nil, fmt.Errorf("invalid fingerprint length: %d", len(digest))
	}
	req := timeStampReq{
		Version: 1,
		MessageImprint: messageImprint{
			HashAlgorithm: algorithmIdentifier{
				Algorithm: oidSHA256,
				Parameters: asn1.RawValue{
					Class: asn1.ClassUniversal,
					Tag:   asn1.TagNull,
				},
			},
			HashedMessage: digest,
		},
		Nonce:   nonce,
		CertReq: true,
	}
	if p := strings.TrimSpace(policyOID); p != "" {
		oid, err := parseOID(p)
		if err != nil {
			return nil, err
		}
		req.ReqPolicy = oid
	}
	return asn1.Marshal(req)
}

func (c *TSAClient) Anchor(ctx context.Context, fingerprint string) (Receipt, error) {
	if err := checkFingerprint(BackendTSA, fingerprint); err != nil {
		return Receipt{}, err
	}
	at := c.now().UTC()
	reqDER, err := BuildTimeStampRequest(fingerprint, c.policyOID, at.UnixNano())
	if err != nil {
		return Receipt{}, &Error{Backend: BackendTSA, Kind: KindRejected, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqDER))
	if err != nil {
		return Receipt{}, &Error{Backend: BackendTSA, Kind: KindRejected, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")
	httpReq.Header.Set("Accept", "application/timestamp-reply")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if cerr := contextError(BackendTSA, ctx); cerr != nil {
			return Receipt{}, cerr
		}
		return Receipt{}, &Error{Backend: BackendTSA, Kind: KindUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, &Error{Backend: BackendTSA, Kind: KindUnavailable, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Receipt{}, &Error{Backend: BackendTSA, Kind: KindUnavailable, Err: fmt.Errorf("tsa_http_status_%d", resp.StatusCode)}
	}

	token, err := parseTimeStampResp(body)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Token:      TokenPrefixRFC3161 + base64.StdEncoding.EncodeToString(token),
		Backend:    BackendTSA,
		AnchoredAt: at,
	}, nil
}

// parseTimeStampResp checks the PKIStatus of a TimeStampResp and returns the
// DER of its timeStampToken.
func parseTimeStampResp(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, &Error{Backend: BackendTSA, Kind: KindMalformed, Err: errors.New("tsa_empty_response")}
	}
	var outer asn1.RawValue
	if _, err := asn1.Unmarshal(body, &outer); err != nil || outer.Tag != asn1.TagSequence {
		return nil, &Error{Backend: BackendTSA, Kind: KindMalformed, Err: fmt.Errorf("response is not a TimeStampResp: %v", err)}
	}
	var statusInfo asn1.RawValue
	token, err := asn1.Unmarshal(outer.Bytes, &statusInfo)
	if err != nil {
		return nil, &Error{Backend: BackendTSA, Kind: KindMalformed, Err: fmt.Errorf("missing PKIStatusInfo: %w", err)}
	}
	var status int
	if _, err := asn1.Unmarshal(statusInfo.Bytes, &status); err != nil {
		return nil, &Error{Backend: BackendTSA, Kind: KindMalformed, Err: fmt.Errorf("invalid PKIStatus: %w", err)}
	}
	if status != tsaGranted && status != tsaGrantedWithMods {
		return nil, &Error{Backend: BackendTSA, Kind: KindRejected, Err: fmt.Errorf("tsa refused request with status %d", status)}
	}
	if len(token) == 0 {
		return nil, &Error{Backend: BackendTSA, Kind: KindMalformed, Err: errors.New("granted response carries no token")}
	}
	return token, nil
}

// parseOID reads a dotted policy OID. Arcs that overflow int are rejected
// rather than wrapped.
func parseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid policy_oid %q", s)
	}
	out := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return nil, fmt.Errorf("invalid policy_oid %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid policy_oid %q: %w", s, err)
		}
		out = append(out, n)
	}
	if out[0] > 2 || (out[0] < 2 && out[1] >= 40) {
		return nil, fmt.Errorf("invalid policy_oid %q", s)
	}
	return out, nil
}
