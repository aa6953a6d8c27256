// Package client is the checkout-counter side of the billing API: a thin
// HTTP client plus the cart and purchase draft a till keeps between scans.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
)

// Client calls the billing API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New returns a client for baseURL. A nil httpClient gets a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignIn exchanges credentials for an access token and keeps it for later calls.
func (c *Client) SignIn(ctx context.Context, email string, password string) (domain.SignInResponse, error) {
	var resp domain.SignInResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/sign-in", domain.SignInRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return domain.SignInResponse{}, err
	}
	c.SetToken(resp.AccessToken)
	return resp, nil
}

func (c *Client) CreateBill(ctx context.Context, req domain.CreateBillRequest) (domain.CreateBillResponse, error) {
	var resp domain.CreateBillResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/rpc/createBill", req, &resp); err != nil {
		return domain.CreateBillResponse{}, err
	}
	return resp, nil
}

func (c *Client) CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (domain.CreatePurchaseResponse, error) {
	var resp domain.CreatePurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/rpc/createPurchase", req, &resp); err != nil {
		return domain.CreatePurchaseResponse{}, err
	}
	return resp, nil
}

func (c *Client) ScanLookup(ctx context.Context, code string) (domain.ScanResult, error) {
	var resp domain.ScanResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/scan/"+url.PathEscape(strings.TrimSpace(code)), nil, &resp); err != nil {
		return domain.ScanResult{}, err
	}
	return resp, nil
}

type errorEnvelope struct {
	Error struct {
		Kind    apperr.Kind `json:"kind"`
		Message string      `json:"message"`
	} `json:"error"`
}

// do sends one request. Non-2xx answers come back as *apperr.Error with the
// server's kind; transport failures are wrapped as Internal.
func (c *Client) do(ctx context.Context, method string, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apperr.Wrap(apperr.InvalidArgument, err, "failed to encode request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to build request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope errorEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Kind == "" {
			return apperr.Newf(apperr.Internal, "unexpected response %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return &apperr.Error{Kind: envelope.Error.Kind, Message: envelope.Error.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.Internal, err, fmt.Sprintf("failed to decode %s response", path))
	}
	return nil
}
