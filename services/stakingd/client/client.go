package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stakeledger/core/types"
	"stakeledger/services/stakingd/server"
)

// APIError is a non-2xx response from stakingd.
type APIError struct {
	Status   int
	Code     uint16
	Category string
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("stakingd: %d %s (code %d): %s", e.Status, http.StatusText(e.Status), e.Code, e.Message)
	}
	return fmt.Sprintf("stakingd: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Client calls the stakingd HTTP API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// Option customises a Client.
type Option func(*Client)

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New returns a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid stakingd url %q", baseURL)
	}
	c := &Client{base: parsed, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := *c.base
	endpoint.Path = c.base.Path + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var prob struct {
			Error    string `json:"error"`
			Code     uint16 `json:"code"`
			Category string `json:"category"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&prob); err == nil {
			apiErr.Message, apiErr.Code, apiErr.Category = prob.Error, prob.Code, prob.Category
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CreatePool opens a pool owned by the token subject.
func (c *Client) CreatePool(ctx context.Context, req server.CreatePoolRequest) (server.PoolView, error) {
	var out server.PoolView
	err := c.do(ctx, http.MethodPost, "/v1/pools", nil, req, &out)
	return out, err
}

// Pools lists every pool.
func (c *Client) Pools(ctx context.Context) ([]server.PoolView, error) {
	var out []server.PoolView
	err := c.do(ctx, http.MethodGet, "/v1/pools", nil, nil, &out)
	return out, err
}

// Pool returns one pool with its live statistics.
func (c *Client) Pool(ctx context.Context, poolID string) (server.PoolView, error) {
	var out server.PoolView
	err := c.do(ctx, http.MethodGet, "/v1/pools/"+url.PathEscape(poolID), nil, nil, &out)
	return out, err
}

// SetPoolActive toggles a pool the token subject owns.
func (c *Client) SetPoolActive(ctx context.Context, poolID string, active bool) (server.PoolView, error) {
	var out server.PoolView
	err := c.do(ctx, http.MethodPut, "/v1/pools/"+url.PathEscape(poolID)+"/status", nil, server.StatusRequest{Active: active}, &out)
	return out, err
}

// Stake deposits amount into poolID.
func (c *Client) Stake(ctx context.Context, poolID string, amount uint64) (server.StakeResponse, error) {
	var out server.StakeResponse
	err := c.do(ctx, http.MethodPost, "/v1/pools/"+url.PathEscape(poolID)+"/stake", nil, server.StakeRequest{Amount: server.Amount(amount)}, &out)
	return out, err
}

// Unstake withdraws the caller's full position.
func (c *Client) Unstake(ctx context.Context, poolID string) (server.UnstakeResponse, error) {
	var out server.UnstakeResponse
	err := c.do(ctx, http.MethodPost, "/v1/pools/"+url.PathEscape(poolID)+"/unstake", nil, nil, &out)
	return out, err
}

// Claim pays out the caller's accrued rewards.
func (c *Client) Claim(ctx context.Context, poolID string) (server.ClaimResponse, error) {
	var out server.ClaimResponse
	err := c.do(ctx, http.MethodPost, "/v1/pools/"+url.PathEscape(poolID)+"/claim", nil, nil, &out)
	return out, err
}

// Settle advances the pool accumulator.
func (c *Client) Settle(ctx context.Context, poolID string) (server.SettleResponse, error) {
	var out server.SettleResponse
	err := c.do(ctx, http.MethodPost, "/v1/pools/"+url.PathEscape(poolID)+"/settle", nil, nil, &out)
	return out, err
}

// StakeSummary reports owner's position in poolID.
func (c *Client) StakeSummary(ctx context.Context, poolID, owner string) (server.StakeView, error) {
	var out server.StakeView
	err := c.do(ctx, http.MethodGet, "/v1/pools/"+url.PathEscape(poolID)+"/stakes/"+url.PathEscape(owner), nil, nil, &out)
	return out, err
}

// Fund mints amount of unit to holder. Requires the admin scope.
func (c *Client) Fund(ctx context.Context, unit, holder string, amount uint64) (server.BalanceResponse, error) {
	var out server.BalanceResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/fund", nil, server.FundRequest{Unit: unit, Holder: holder, Amount: server.Amount(amount)}, &out)
	return out, err
}

// Balance reads holder's custody balance of unit.
func (c *Client) Balance(ctx context.Context, unit, holder string) (server.BalanceResponse, error) {
	var out server.BalanceResponse
	err := c.do(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(holder), url.Values{"unit": {unit}}, nil, &out)
	return out, err
}

// Events pages the journaled events after the given sequence number.
func (c *Client) Events(ctx context.Context, after uint64, limit int, eventType string) ([]*types.Event, error) {
	query := url.Values{"after": {strconv.FormatUint(after, 10)}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if eventType != "" {
		query.Set("type", eventType)
	}
	var out []*types.Event
	err := c.do(ctx, http.MethodGet, "/v1/events", query, nil, &out)
	return out, err
}

// Estimate projects the rewards amount would earn in poolID over seconds
// at the pool's current size and rate.
func (c *Client) Estimate(ctx context.Context, poolID string, amount uint64, seconds int64) (server.EstimateResponse, error) {
	query := url.Values{
		"amount":  {strconv.FormatUint(amount, 10)},
		"seconds": {strconv.FormatInt(seconds, 10)},
	}
	var out server.EstimateResponse
	err := c.do(ctx, http.MethodGet, "/v1/pools/"+url.PathEscape(poolID)+"/estimate", query, nil, &out)
	return out, err
}

// Pauses lists the paused modules. Requires the admin scope.
func (c *Client) Pauses(ctx context.Context) ([]string, error) {
	var out server.PausesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/admin/pauses", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Paused, nil
}

// SetPause toggles the kill switch of module and returns the paused set.
// Requires the admin scope.
func (c *Client) SetPause(ctx context.Context, module string, paused bool) ([]string, error) {
	var out server.PausesResponse
	if err := c.do(ctx, http.MethodPut, "/v1/admin/pauses/"+url.PathEscape(module), nil, server.PauseRequest{Paused: paused}, &out); err != nil {
		return nil, err
	}
	return out.Paused, nil
}

// Audit checks poolID's bookkeeping against its stakes and principal vault.
// Requires the admin scope.
func (c *Client) Audit(ctx context.Context, poolID string) (server.AuditResponse, error) {
	var out server.AuditResponse
	err := c.do(ctx, http.MethodGet, "/v1/admin/pools/"+url.PathEscape(poolID)+"/audit", nil, nil, &out)
	return out, err
}
