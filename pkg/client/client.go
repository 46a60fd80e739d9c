package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/ZakatLedger/internal/chain"
	"github.com/jmerrifield20/ZakatLedger/internal/digest"
	"github.com/jmerrifield20/ZakatLedger/internal/donation"
	"github.com/jmerrifield20/ZakatLedger/internal/merkle"
)

// maxResponseBytes bounds how much of a response body is read. Whole-chain
// responses grow with the ledger, so the limit is generous.
const maxResponseBytes = 64 << 20

// ErrNotFound is returned when the server responds 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// DonateResult is the response of Donate.
type DonateResult struct {
	Donation     donation.Donation `json:"donation"`
	Block        chain.Block       `json:"block"`
	MetadataHash digest.Hash       `json:"metadataHash"`
}

// MerkleResult is the batch-integrity view of the ledger. Root is nil for an
// empty ledger.
type MerkleResult struct {
	Root      *digest.Hash  `json:"root"`
	LeafCount int           `json:"leafCount"`
	Leaves    []digest.Hash `json:"leaves"`
}

// ProofResult is an inclusion proof together with the root it proves against.
type ProofResult struct {
	Root  digest.Hash  `json:"root"`
	Proof merkle.Proof `json:"proof"`
}

// Client talks to a ZakatLedger server.
type Client struct {
	base       string
	httpClient *http.Client

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches an admin token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use this in development against a self-signed server.
func WithInsecureSkipVerify() Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
			Timeout: c.httpClient.Timeout,
		}
		return nil
	}
}

// New creates a Client for the server at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetBearerToken replaces the admin token attached to requests.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

// Donate records a donation and returns the block committing to it.
func (c *Client) Donate(ctx context.Context, amount float64, note string) (*DonateResult, error) {
	var out DonateResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/donations",
		map[string]any{"amount": amount, "note": note}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Donations lists recorded donations. The server may require an admin token.
func (c *Client) Donations(ctx context.Context) ([]donation.Donation, error) {
	var out struct {
		Donations []donation.Donation `json:"donations"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/donations", nil, &out); err != nil {
		return nil, err
	}
	return out.Donations, nil
}

// Blocks fetches the full chain as stored by the server.
func (c *Client) Blocks(ctx context.Context) ([]chain.Block, error) {
	var out []chain.Block
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/blocks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Block fetches a single block.
func (c *Client) Block(ctx context.Context, idx int) (*chain.Block, error) {
	var out chain.Block
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/ledger/blocks/%d", idx), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify asks the server to validate its own chain.
func (c *Client) Verify(ctx context.Context) (*chain.ValidationResult, error) {
	var out chain.ValidationResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Merkle fetches the Merkle root and leaves.
func (c *Client) Merkle(ctx context.Context) (*MerkleResult, error) {
	var out MerkleResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/audit/merkle", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Proof fetches the inclusion proof for block idx.
func (c *Client) Proof(ctx context.Context, idx int) (*ProofResult, error) {
	var out ProofResult
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/audit/proof/%d", idx), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads the chain in the given format ("json" or "cbor").
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	path := "/api/v1/ledger/export?format=" + url.QueryEscape(format)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// AdminToken exchanges the admin secret for an admin token. The token is not
// attached automatically; pass it to SetBearerToken.
func (c *Client) AdminToken(ctx context.Context, secret string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/admin-token",
		map[string]string{"secret": secret}, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	c.mu.Lock()
	token := c.bearerToken
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return body, nil
}
