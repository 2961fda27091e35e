// Package canvas is a small read-only client for the Canvas LMS REST API.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-report/internal/model"
)

var (
	// ErrThrottled is returned when a request is still rate limited after back-off.
	ErrThrottled = errors.New("canvas: rate limit exceeded")
	// ErrDecode is returned when a response body cannot be parsed.
	ErrDecode = errors.New("canvas: undecodable response")
)

// API is the part of Canvas the report reads from.
type API interface {
	RootAccount(ctx context.Context) (Account, error)
	SubAccounts(ctx context.Context, accountID int64, recursive bool) ([]Account, error)
	Terms(ctx context.Context) ([]Term, error)
	Courses(ctx context.Context, termID int64) ([]Course, error)
	CourseDetail(ctx context.Context, courseID int64, inc Includes) (CourseDetail, error)
}

// Client talks to one Canvas instance on behalf of one account.
type Client struct {
	baseURL    string
	account    string
	token      string
	perPage    int
	httpClient *http.Client
	retry      model.RetryConfig
	logger     *slog.Logger
	onThrottle func(remaining string)
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithPerPage sets the per_page query value for list endpoints.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// WithRetry sets the back-off used for throttled requests.
func WithRetry(cfg model.RetryConfig) Option {
	return func(c *Client) {
		if cfg.MaxAttempts > 0 {
			c.retry = cfg
		}
	}
}

// WithLogger sets the logger used for throttling and paging messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithThrottleHook registers a callback invoked on every throttled response.
func WithThrottleHook(fn func(remaining string)) Option {
	return func(c *Client) {
		c.onThrottle = fn
	}
}

// New constructs a Client for the instance base URL, account and bearer token.
func New(instance, account, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(instance), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("canvas instance url is empty")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid canvas instance url: %w", err)
	}
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("canvas account is empty")
	}

	cli := &Client{
		baseURL:    trimmed,
		account:    strings.TrimSpace(account),
		token:      strings.TrimSpace(token),
		perPage:    100,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      model.DefaultRetryConfig,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents a non-success response from Canvas.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("canvas request failed with status %d", e.Status)
	}
	return fmt.Sprintf("canvas request failed (%d): %s", e.Status, e.Message)
}

// RootAccount fetches the configured account.
func (c *Client) RootAccount(ctx context.Context) (Account, error) {
	var acct Account
	_, err := c.get(ctx, c.endpoint("/api/v1/accounts/"+url.PathEscape(c.account), nil), func(dec *json.Decoder) error {
		return dec.Decode(&acct)
	})
	if err != nil {
		return Account{}, fmt.Errorf("fetch account %s: %w", c.account, err)
	}
	return acct, nil
}

// SubAccounts lists the sub-accounts of accountID, all the way down when recursive.
func (c *Client) SubAccounts(ctx context.Context, accountID int64, recursive bool) ([]Account, error) {
	q := url.Values{}
	if recursive {
		q.Set("recursive", "true")
	}
	path := fmt.Sprintf("/api/v1/accounts/%d/sub_accounts", accountID)

	var out []Account
	err := c.paginate(ctx, c.endpoint(path, q), func(dec *json.Decoder) error {
		var page []Account
		if err := dec.Decode(&page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sub-accounts of %d: %w", accountID, err)
	}
	return out, nil
}

// Terms lists the enrollment terms of the configured account.
func (c *Client) Terms(ctx context.Context) ([]Term, error) {
	path := "/api/v1/accounts/" + url.PathEscape(c.account) + "/terms"

	var out []Term
	err := c.paginate(ctx, c.endpoint(path, nil), func(dec *json.Decoder) error {
		var page termsPage
		if err := dec.Decode(&page); err != nil {
			return err
		}
		out = append(out, page.EnrollmentTerms...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	return out, nil
}

// Courses lists every course of the configured account in the given term.
func (c *Client) Courses(ctx context.Context, termID int64) ([]Course, error) {
	q := url.Values{}
	q.Set("enrollment_term_id", strconv.FormatInt(termID, 10))
	path := "/api/v1/accounts/" + url.PathEscape(c.account) + "/courses"

	var out []Course
	err := c.paginate(ctx, c.endpoint(path, q), func(dec *json.Decoder) error {
		var page []Course
		if err := dec.Decode(&page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list courses for term %d: %w", termID, err)
	}
	return out, nil
}

// CourseDetail fetches one course with the requested includes.
func (c *Client) CourseDetail(ctx context.Context, courseID int64, inc Includes) (CourseDetail, error) {
	q := url.Values{}
	for _, v := range inc.Values() {
		q.Add("include[]", v)
	}

	var detail CourseDetail
	_, err := c.get(ctx, c.endpoint(fmt.Sprintf("/api/v1/courses/%d", courseID), q), func(dec *json.Decoder) error {
		return dec.Decode(&detail)
	})
	if err != nil {
		return CourseDetail{}, fmt.Errorf("fetch course %d: %w", courseID, err)
	}
	return detail, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	if c.perPage > 0 {
		q.Set("per_page", strconv.Itoa(c.perPage))
	}
	return c.baseURL + path + "?" + q.Encode()
}

// paginate follows rel="next" links until the last page.
func (c *Client) paginate(ctx context.Context, first string, decode func(*json.Decoder) error) error {
	next := first
	for page := 1; next != ""; page++ {
		link, err := c.get(ctx, next, decode)
		if err != nil {
			return err
		}
		c.logger.Debug("fetched page", "page", page, "url", next)
		next = link
	}
	return nil
}

// get performs one GET with throttling back-off and returns the next-page link.
func (c *Client) get(ctx context.Context, endpoint string, decode func(*json.Decoder) error) (string, error) {
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("perform request: %w", err)
		}

		if isThrottled(resp) {
			remaining := resp.Header.Get("X-Rate-Limit-Remaining")
			drain(resp.Body)
			c.logger.Warn("canvas request throttled", "url", endpoint, "rate_limit_remaining", remaining, "attempt", attempt)
			if c.onThrottle != nil {
				c.onThrottle(remaining)
			}
			if attempt >= c.retry.MaxAttempts {
				return "", fmt.Errorf("%w after %d attempts", ErrThrottled, attempt)
			}
			if err := sleepContext(ctx, backoffDelay(c.retry, attempt)); err != nil {
				return "", err
			}
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			msg := extractError(resp.Body)
			resp.Body.Close()
			return "", APIError{Status: resp.StatusCode, Message: msg}
		}

		next := nextLink(resp.Header.Get("Link"))
		err = decode(json.NewDecoder(resp.Body))
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return next, nil
	}
}

// isThrottled reports a Canvas rate-limit rejection: 403 carrying the quota header.
func isThrottled(resp *http.Response) bool {
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-Rate-Limit-Remaining") != ""
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
				if rel == "next" {
					return target[1 : len(target)-1]
				}
			}
		}
	}
	return ""
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if len(payload.Errors) > 0 {
		return strings.TrimSpace(payload.Errors[0].Message)
	}
	return strings.TrimSpace(payload.Message)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}
