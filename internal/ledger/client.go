package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/GideonNut/moviemeter/internal/ratelimit"
	"github.com/GideonNut/moviemeter/pkg/models"
	"github.com/GideonNut/moviemeter/pkg/utils"
)

const rateLimitKey = "relayer"

// Client wraps the vote contract's operations behind the hosted relayer.
// The relayer signs and broadcasts transactions on behalf of the configured
// sender address; this client holds no chain state of its own.
//
// Writes go through a local rate-limit gate so a burst of votes cannot blow
// the relayer quota; an exhausted gate surfaces as ErrUnavailable.
type Client struct {
	cfg     utils.RelayerConfig
	http    *http.Client
	limiter ratelimit.Limiter
}

func NewClient(cfg utils.RelayerConfig, limiter ratelimit.Limiter) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
	}
}

type relayRequest struct {
	ContractAddress string `json:"contractAddress"`
	Method          string `json:"method"`
	Params          []any  `json:"params"`
	ChainID         int64  `json:"chainId"`
	From            string `json:"from"`
}

type relayResponse struct {
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message,omitempty"`
}

// RegisterMedia submits the addMovie transaction and returns the on-chain id
// the entry landed at. addMovie is NOT idempotent on-chain; callers must
// guarantee at-most-once invocation per media item (the allocator's job).
//
// The contract appends, so the new entry sits near the tail of movies[];
// after the transaction is accepted the id is located by scanning titles
// back from movieCount-1.
func (c *Client) RegisterMedia(ctx context.Context, title string) (int64, error) {
	if err := c.allowWrite(); err != nil {
		return 0, err
	}

	if err := c.transact(ctx, "addMovie(string)", []any{title}); err != nil {
		return 0, fmt.Errorf("addMovie: %w", err)
	}

	id, found, err := c.FindMediaByTitle(ctx, title, 25)
	if err != nil {
		return 0, fmt.Errorf("locate registered entry: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("%w: registered entry for %q not visible yet", ErrUnavailable, title)
	}
	return id, nil
}

// SubmitVote submits one yes/no ballot for contractID on behalf of address.
func (c *Client) SubmitVote(ctx context.Context, contractID int64, address string, choice models.VoteChoice) error {
	if err := c.allowWrite(); err != nil {
		return err
	}

	if err := c.transact(ctx, "vote(uint256,bool)", []any{contractID, choice == models.VoteYes}); err != nil {
		return fmt.Errorf("vote %d: %w", contractID, err)
	}
	return nil
}

// ReadTally returns the authoritative yes/no counters for contractID.
func (c *Client) ReadTally(ctx context.Context, contractID int64) (models.Tally, error) {
	raw, err := c.call(ctx, "getVotes(uint256)", []any{contractID})
	if err != nil {
		return models.Tally{}, fmt.Errorf("getVotes %d: %w", contractID, err)
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
		return models.Tally{}, fmt.Errorf("getVotes %d: unexpected result %s", contractID, raw)
	}

	yes, err := parseUint(pair[0])
	if err != nil {
		return models.Tally{}, fmt.Errorf("getVotes %d: yes: %w", contractID, err)
	}
	no, err := parseUint(pair[1])
	if err != nil {
		return models.Tally{}, fmt.Errorf("getVotes %d: no: %w", contractID, err)
	}
	return models.Tally{Yes: yes, No: no}, nil
}

// ReadMovieCount returns how many entries the contract holds.
func (c *Client) ReadMovieCount(ctx context.Context) (int64, error) {
	raw, err := c.call(ctx, "movieCount()", nil)
	if err != nil {
		return 0, fmt.Errorf("movieCount: %w", err)
	}
	n, err := parseUint(raw)
	if err != nil {
		return 0, fmt.Errorf("movieCount: %w", err)
	}
	return n, nil
}

// ReadMovieTitle returns the stored title of entry i.
func (c *Client) ReadMovieTitle(ctx context.Context, i int64) (string, error) {
	raw, err := c.call(ctx, "movies(uint256)", []any{i})
	if err != nil {
		return "", fmt.Errorf("movies %d: %w", i, err)
	}

	// movies(i) returns the struct as an array; the title is the first
	// string element.
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		// single-value shape
		var title string
		if err2 := json.Unmarshal(raw, &title); err2 == nil {
			return title, nil
		}
		return "", fmt.Errorf("movies %d: unexpected result %s", i, raw)
	}
	for _, f := range fields {
		var title string
		if err := json.Unmarshal(f, &title); err == nil {
			return title, nil
		}
	}
	return "", fmt.Errorf("movies %d: no title field in %s", i, raw)
}

// FindMediaByTitle scans entries newest-first for an exact title match,
// looking at most `limit` entries back. Used both to locate a fresh
// registration and to adopt an orphaned one before re-registering.
func (c *Client) FindMediaByTitle(ctx context.Context, title string, limit int64) (int64, bool, error) {
	count, err := c.ReadMovieCount(ctx)
	if err != nil {
		return 0, false, err
	}

	floor := int64(0)
	if limit > 0 && count > limit {
		floor = count - limit
	}
	for i := count - 1; i >= floor; i-- {
		got, err := c.ReadMovieTitle(ctx, i)
		if err != nil {
			return 0, false, err
		}
		if got == title {
			return i, true, nil
		}
	}
	return 0, false, nil
}

func (c *Client) allowWrite() error {
	if c.limiter == nil {
		return nil
	}
	if c.limiter.Allow(rateLimitKey, c.cfg.RateLimit, c.cfg.RateWindow) {
		return nil
	}
	return fmt.Errorf("%w: local rate limit exhausted, retry after %s",
		ErrUnavailable, c.limiter.RetryAfter(rateLimitKey, c.cfg.RateWindow))
}

// transact posts a state-changing call to the relayer.
func (c *Client) transact(ctx context.Context, method string, params []any) error {
	_, err := c.post(ctx, "/transactions", method, params)
	return err
}

// call posts a read-only call and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return c.post(ctx, "/call", method, params)
}

func (c *Client) post(ctx context.Context, path, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(relayRequest{
		ContractAddress: c.cfg.ContractAddress,
		Method:          method,
		Params:          params,
		ChainID:         c.cfg.ChainID,
		From:            c.cfg.SenderAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, relayerMessage(respBody))
	}

	var rr relayResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return rr.Result, nil
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// relayerMessage extracts a short display-safe message from an error body.
// Credentials never appear here: the relayer echoes params, not headers.
func relayerMessage(body []byte) string {
	var rr relayResponse
	if err := json.Unmarshal(body, &rr); err == nil && rr.Message != "" {
		return rr.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "no detail"
	}
	return s
}

// parseUint accepts both JSON numbers and decimal strings; relayers commonly
// stringify uint256 values.
func parseUint(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", s, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unexpected numeric value %s", raw)
}
