package bmw

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pfrederiksen/bimmerctl/internal/auth"
)

const oauthConfigPath = "/eadrax-ucs/v1/presentation/oauth/config"

// OAuthSettings is the per-region OAuth client configuration served by
// the vendor.
type OAuthSettings struct {
	ClientID      string   `json:"clientId"`
	ClientSecret  string   `json:"clientSecret"`
	TokenEndpoint string   `json:"tokenEndpoint"`
	ReturnURL     string   `json:"returnUrl"`
	Scopes        []string `json:"scopes"`
	GCDMBaseURL   string   `json:"gcdmBaseUrl"`
}

// OAuthConfig fetches the OAuth client id, secret, endpoints and
// scopes for the client's region.
func (c *Client) OAuthConfig(ctx context.Context) (*OAuthSettings, error) {
	header := map[string]string{
		"ocp-apim-subscription-key": c.subscriptionKey(),
	}

	res, err := c.request(ctx, apiRequest{
		method:      http.MethodGet,
		path:        oauthConfigPath,
		header:      header,
		cacheTTL:    time.Hour,
		noAutoLogin: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch oauth config: %w", err)
	}

	var settings OAuthSettings
	if err := res.Decode(&settings); err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	return &settings, nil
}

// Login ensures a usable bearer token exists. With force=false it
// costs nothing when the current token is still valid, tries a refresh
// when only the refresh token is usable, and falls back to the full
// browser-less authorization-code flow otherwise.
//
// The vendor substitutes the normal browser redirect dance with direct
// credential submission: the authenticate endpoint is called twice,
// first with username/password to obtain an authorization cookie, then
// with that cookie to obtain the authorization code, which is finally
// exchanged for tokens.
func (c *Client) Login(ctx context.Context, force bool) error {
	if !force {
		if c.token.Valid() {
			return nil
		}
		if c.token != nil && c.token.RefreshToken != "" {
			if err := c.Refresh(ctx, false); err == nil && c.token.Valid() {
				return nil
			}
		}
	}

	if c.creds.Email == "" || c.creds.Password == "" {
		return ErrNoCredentials
	}

	settings, err := c.OAuthConfig(ctx)
	if err != nil {
		return err
	}
	c.clientID = settings.ClientID

	verifier, err := randomString(86)
	if err != nil {
		return err
	}
	state, err := randomString(22)
	if err != nil {
		return err
	}

	authenticateURL := strings.Replace(settings.TokenEndpoint, "/token", "/authenticate", 1)

	form := url.Values{}
	form.Set("client_id", settings.ClientID)
	form.Set("response_type", "code")
	form.Set("redirect_uri", settings.ReturnURL)
	form.Set("state", state)
	form.Set("nonce", "login_nonce")
	form.Set("scope", strings.Join(settings.Scopes, " "))
	form.Set("code_challenge", codeChallenge(verifier))
	form.Set("code_challenge_method", "S256")
	form.Set("grant_type", "authorization_code")
	form.Set("username", c.creds.Email)
	form.Set("password", c.creds.Password)

	// Step 1: submit credentials, receive the authorization cookie
	// embedded in a redirect_to value.
	res, err := c.request(ctx, apiRequest{
		method:      http.MethodPost,
		path:        authenticateURL,
		form:        form,
		noAutoLogin: true,
	})
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	var step struct {
		RedirectTo string `json:"redirect_to"`
	}
	if err := res.Decode(&step); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	authorization := queryParam(step.RedirectTo, "authorization")
	if authorization == "" {
		return fmt.Errorf("authenticate response missing authorization")
	}

	// Step 2: replay the request carrying the cookie; the 302 Location
	// carries the authorization code.
	form.Set("authorization", authorization)
	form.Del("grant_type")
	form.Del("username")
	form.Del("password")

	res, err = c.request(ctx, apiRequest{
		method:      http.MethodPost,
		path:        authenticateURL,
		form:        form,
		header:      map[string]string{"Cookie": "GCDMSSO=" + authorization},
		noAutoLogin: true,
	})
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	code := queryParam(string(res.Body), "code")
	if code == "" {
		return fmt.Errorf("authorization redirect missing code")
	}

	// Step 3: exchange the code for tokens.
	grant := url.Values{}
	grant.Set("code", code)
	grant.Set("code_verifier", verifier)
	grant.Set("redirect_uri", settings.ReturnURL)
	grant.Set("grant_type", "authorization_code")

	res, err = c.request(ctx, apiRequest{
		method:      http.MethodPost,
		path:        settings.TokenEndpoint,
		form:        grant,
		header:      map[string]string{"Authorization": basicAuth(settings.ClientID, settings.ClientSecret)},
		noAutoLogin: true,
	})
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	var tok auth.Token
	if err := res.Decode(&tok); err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}

	c.setToken(&tok)
	return nil
}

// Refresh exchanges the refresh token for a new bearer token. It is a
// no-op without a refresh token, and without force it is a no-op while
// the current token is still valid. A failed exchange clears the
// stored token so the next Login performs the full flow.
func (c *Client) Refresh(ctx context.Context, force bool) error {
	if c.token == nil || c.token.RefreshToken == "" {
		return nil
	}
	if !force && c.token.Valid() {
		return nil
	}

	settings, err := c.OAuthConfig(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("redirect_uri", settings.ReturnURL)
	form.Set("scope", strings.Join(settings.Scopes, " "))
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.token.RefreshToken)

	res, err := c.request(ctx, apiRequest{
		method:      http.MethodPost,
		path:        settings.TokenEndpoint,
		form:        form,
		header:      map[string]string{"Authorization": basicAuth(settings.ClientID, settings.ClientSecret)},
		noAutoLogin: true,
	})
	if err != nil {
		c.clearToken()
		return fmt.Errorf("refresh token: %w", err)
	}

	var tok auth.Token
	if err := res.Decode(&tok); err != nil {
		c.clearToken()
		return fmt.Errorf("refresh token: %w", err)
	}

	c.setToken(&tok)
	return nil
}

// randomString returns n hex characters from a CSPRNG; used for the
// PKCE code verifier and the OAuth state.
func randomString(n int) (string, error) {
	buf := make([]byte, n/2+1)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random string: %w", err)
	}
	return hex.EncodeToString(buf)[:n], nil
}

// codeChallenge derives the S256 PKCE challenge from a verifier.
func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func basicAuth(id, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(id+":"+secret))
}

// queryParam extracts a query parameter from a URL-ish string such as
// a redirect_to value or a Location header.
func queryParam(raw, key string) string {
	u, err := url.Parse(raw)
	if err == nil {
		if v := u.Query().Get(key); v != "" {
			return v
		}
	}

	// Some redirect values are not strictly parseable URLs.
	if _, query, found := strings.Cut(raw, "?"); found {
		if values, err := url.ParseQuery(query); err == nil {
			return values.Get(key)
		}
	}

	return ""
}
