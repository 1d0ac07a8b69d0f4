package bmw

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetryPolicy controls the retry loop of the request layer. Server
// errors and rate limits are retried with a fixed delay; MaxElapsed
// bounds the total time spent retrying a single request. Zero means
// retry forever, which matches the mobile app's behavior but is risky
// enough to be worth surfacing as a tunable.
type RetryPolicy struct {
	ServerErrorDelay time.Duration
	RateLimitDelay   time.Duration
	MaxElapsed       time.Duration
}

// DefaultRetryPolicy mirrors the vendor app: 1s between 5xx retries,
// 500ms between 429 retries, no overall bound.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ServerErrorDelay: time.Second,
		RateLimitDelay:   500 * time.Millisecond,
	}
}

type apiRequest struct {
	method string
	path   string
	form   url.Values
	header map[string]string

	// cacheTTL > 0 enables the response cache for GETs.
	cacheTTL time.Duration

	// noAutoLogin suppresses the implicit login; used by the auth flow
	// itself and by retries after a forced re-login.
	noAutoLogin bool

	// tolerateHTTPErrors returns 4xx responses instead of failing.
	tolerateHTTPErrors bool
}

// apiResponse is a decoded vendor response. For 302 responses Body
// holds the Location header value rather than the response body.
type apiResponse struct {
	Status int
	Header http.Header
	Body   []byte
	JSON   bool
}

// Decode unmarshals a JSON body into out.
func (r *apiResponse) Decode(out any) error {
	if !r.JSON {
		return fmt.Errorf("response is not JSON (status %d)", r.Status)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// request performs one API call with login, caching and the status
// retry ladder applied.
func (c *Client) request(ctx context.Context, req apiRequest) (*apiResponse, error) {
	if !req.noAutoLogin {
		if err := c.Login(ctx, false); err != nil {
			return nil, err
		}
	}

	path := strings.NewReplacer(
		"{accountID}", c.accountID,
		"{clientID}", c.clientID,
	).Replace(req.path)

	cacheKey := req.method + path
	if req.method == http.MethodGet && req.cacheTTL > 0 {
		if res, ok := c.cache.get(cacheKey, req.cacheTTL); ok {
			return res, nil
		}
	}

	started := c.now()
	autologin := !req.noAutoLogin

	for {
		res, err := c.send(ctx, req.method, path, req.form, req.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			// A dropped connection sometimes means the session went
			// bad server-side; force one fresh login before giving up.
			if autologin {
				autologin = false
				if err := c.Login(ctx, true); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		switch {
		case res.Status == http.StatusUnauthorized:
			if autologin {
				autologin = false
				if err := c.Login(ctx, true); err != nil {
					return nil, err
				}
				continue
			}
			c.log.Error("unauthorized", zap.String("method", req.method), zap.String("path", path))
			if !req.tolerateHTTPErrors {
				return nil, &HTTPError{Method: req.method, Path: path, Status: res.Status, Body: res.Body}
			}

		case res.Status >= 500:
			c.log.Warn("retrying after server error",
				zap.String("method", req.method), zap.String("path", path), zap.Int("status", res.Status))
			// A stale token is one known cause of persistent 5xx.
			c.clearToken()
			if err := c.retryWait(ctx, started, c.retry.ServerErrorDelay); err != nil {
				return nil, err
			}
			continue

		case res.Status == http.StatusTooManyRequests:
			c.log.Warn("retrying after rate limit",
				zap.String("method", req.method), zap.String("path", path))
			if err := c.retryWait(ctx, started, c.retry.RateLimitDelay); err != nil {
				return nil, err
			}
			continue

		case res.Status == http.StatusConflict:
			// A "busy" conflict means the command is already in
			// flight; the vendor app treats that as success.
			if !req.tolerateHTTPErrors && !conflictIsBusy(res) {
				return nil, &HTTPError{Method: req.method, Path: path, Status: res.Status, Body: res.Body}
			}

		case res.Status >= 400:
			c.log.Error("request failed",
				zap.String("method", req.method), zap.String("path", path), zap.Int("status", res.Status))
			if !req.tolerateHTTPErrors {
				return nil, &HTTPError{Method: req.method, Path: path, Status: res.Status, Body: res.Body}
			}

		case res.Status == http.StatusOK && req.method == http.MethodGet:
			c.cache.put(cacheKey, res)
		}

		// Writes invalidate reads on the same path.
		if req.method != http.MethodGet {
			c.cache.invalidate(http.MethodGet + path)
		}

		return res, nil
	}
}

// retryWait sleeps the retry delay, honoring context cancellation and
// the configured retry budget.
func (c *Client) retryWait(ctx context.Context, started time.Time, delay time.Duration) error {
	if c.retry.MaxElapsed > 0 && c.now().Sub(started)+delay > c.retry.MaxElapsed {
		return fmt.Errorf("retry budget of %s exhausted", c.retry.MaxElapsed)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// send performs a single HTTP exchange with the fixed tracing and
// identity headers attached.
func (c *Client) send(ctx context.Context, method, path string, form url.Values, extra map[string]string) (*apiResponse, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	target := path
	if !strings.HasPrefix(path, "http") {
		target = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	correlationID := uuid.NewString()
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("x-raw-locale", "en-US")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-User-Agent",
		fmt.Sprintf("android(SP1A.210812.016.C1);bmw;%s;%s", c.profile.appVersion, c.region))
	req.Header.Set("bmw-session-id", c.creds.SessionID)
	req.Header.Set("bmw-units-preferences", "d=KM;v=L")
	req.Header.Set("bmw-current-date", c.now().UTC().Format(time.RFC3339))
	req.Header.Set("24-hour-format", "true")
	req.Header.Set("x-identity-provider", "gcdm")
	req.Header.Set("x-correlation-id", correlationID)
	req.Header.Set("bmw-correlation-id", correlationID)
	req.Header.Set("bmw-is-demo-mode-active", "false")
	req.Header.Set("x-cluster-use-mock", "never")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	for k, v := range extra {
		req.Header.Set(k, v)
	}

	if c.token != nil && c.token.AccessToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	}

	c.log.Info("request", zap.String("method", method), zap.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	res := &apiResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   raw,
		JSON:   strings.Contains(resp.Header.Get("Content-Type"), "application/json"),
	}

	if resp.StatusCode == http.StatusFound {
		res.Body = []byte(resp.Header.Get("Location"))
		res.JSON = false
	}

	return res, nil
}

func conflictIsBusy(res *apiResponse) bool {
	var msg struct {
		Message string `json:"message"`
	}
	if err := res.Decode(&msg); err != nil {
		return false
	}
	return strings.Contains(msg.Message, "busy")
}

// getJSON is the common GET-and-decode helper used by the facade.
func (c *Client) getJSON(ctx context.Context, path string, header map[string]string, ttl time.Duration, out any) error {
	res, err := c.request(ctx, apiRequest{
		method:   http.MethodGet,
		path:     path,
		header:   header,
		cacheTTL: ttl,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}

// postJSON issues an empty-body POST and decodes the JSON response.
func (c *Client) postJSON(ctx context.Context, path string, out any) error {
	res, err := c.request(ctx, apiRequest{
		method: http.MethodPost,
		path:   path,
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return res.Decode(out)
}
