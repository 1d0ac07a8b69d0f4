package bmw

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pfrederiksen/bimmerctl/internal/auth"
	"github.com/pfrederiksen/bimmerctl/internal/config"
)

// Region selects which vendor host serves the account.
type Region string

const (
	RegionNorthAmerica Region = "na"
	RegionRestOfWorld  Region = "row"
	RegionChina        Region = "cn"
)

// UserAgent mimics the mobile app's HTTP client; the API rejects
// unrecognized agents.
const UserAgent = "Dart/2.14 (dart:io)"

type regionProfile struct {
	host            string
	subscriptionKey string // base64 encoded
	appVersion      string
}

var regionProfiles = map[Region]regionProfile{
	RegionNorthAmerica: {
		host:            "cocoapi.bmwgroup.us",
		subscriptionKey: "MzFlMTAyZjUtNmY3ZS03ZWYzLTkwNDQtZGRjZTYzODkxMzYy",
		appVersion:      "2.12.0(19883)",
	},
	RegionRestOfWorld: {
		host:            "cocoapi.bmwgroup.com",
		subscriptionKey: "NGYxYzg1YTMtNzU4Zi1hMzdkLWJiYjYtZjg3MDQ0OTRhY2Zh",
		appVersion:      "2.12.0(19883)",
	},
	// RegionChina uses a different auth scheme (AES-wrapped password
	// login) and is not supported.
}

// TokenStore persists tokens between invocations. *auth.FileStore is
// the production implementation.
type TokenStore interface {
	Load() (*auth.Token, error)
	Save(*auth.Token) error
	Clear() error
}

// Client is an authenticated HTTP client for the MyBMW mobile API. It
// owns the bearer token and the response cache; nothing here is a
// process-wide singleton.
type Client struct {
	baseURL    string
	region     Region
	profile    regionProfile
	creds      *config.Credentials
	httpClient *http.Client
	log        *zap.Logger
	tokens     TokenStore
	token      *auth.Token
	cache      *responseCache
	retry      RetryPolicy
	now        func() time.Time

	// Populated from the OAuth config during login.
	clientID  string
	accountID string
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTokenStore sets where tokens are persisted.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

// WithRetryPolicy overrides the retry delays and budget.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) { c.retry = policy }
}

// WithClock overrides the time source (testing).
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a client for the given credentials. Any token
// previously persisted by the store is picked up immediately.
func NewClient(creds *config.Credentials, opts ...Option) (*Client, error) {
	region := Region(creds.Region)
	profile, ok := regionProfiles[region]
	if !ok {
		return nil, fmt.Errorf("unsupported region %q", creds.Region)
	}

	c := &Client{
		baseURL: "https://" + profile.host,
		region:  region,
		profile: profile,
		creds:   creds,
		log:     zap.NewNop(),
		retry:   DefaultRetryPolicy(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// The auth flow reads authorization codes out of 302 Location
	// headers, so redirects must never be followed.
	if c.httpClient.CheckRedirect == nil {
		c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	if c.tokens == nil {
		c.tokens = auth.NewFileStore(auth.DefaultPath())
	}
	if c.cache == nil {
		c.cache = newResponseCache(c.now)
	}

	if tok, err := c.tokens.Load(); err == nil && tok != nil {
		c.token = tok
	}

	return c, nil
}

// Token returns a copy of the current token, or nil when logged out.
func (c *Client) Token() *auth.Token {
	if c.token == nil {
		return nil
	}
	tok := *c.token
	return &tok
}

// setToken computes the absolute expiry and persists the token,
// overwriting the previous one.
func (c *Client) setToken(tok *auth.Token) {
	tok.Expires = c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.token = tok
	if err := c.tokens.Save(tok); err != nil {
		c.log.Warn("persist token", zap.Error(err))
	}
}

func (c *Client) clearToken() {
	c.token = nil
	if err := c.tokens.Clear(); err != nil {
		c.log.Warn("clear token", zap.Error(err))
	}
}

// subscriptionKey returns the decoded API gateway key for the region.
func (c *Client) subscriptionKey() string {
	decoded, err := base64.StdEncoding.DecodeString(c.profile.subscriptionKey)
	if err != nil {
		return c.profile.subscriptionKey
	}
	return string(decoded)
}
