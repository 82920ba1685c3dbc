package apiclient

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// CSRFToken returns the current anti-forgery token. The cookie set by the server wins
// over a token remembered from a response body.
func (c *Client) CSRFToken() string {
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == CSRFCookieName && cookie.Value != "" {
			return cookie.Value
		}
	}
	c.csrfMu.RLock()
	defer c.csrfMu.RUnlock()
	return c.csrfToken
}

// FetchCSRF primes the CSRF cookie via GET /csrf/ and returns the token.
func (c *Client) FetchCSRF(ctx context.Context) (string, error) {
	var resp csrfResponse
	err := c.Do(ctx, &Request{Method: http.MethodGet, Path: RouteCSRF, SkipAuth: true}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "[Client.FetchCSRF]")
	}
	if resp.CSRFToken != "" {
		c.csrfMu.Lock()
		c.csrfToken = resp.CSRFToken
		c.csrfMu.Unlock()
	}
	tok := c.CSRFToken()
	if tok == "" {
		return "", errors.New("[Client.FetchCSRF] server returned no csrf token")
	}
	return tok, nil
}

// EnsureCSRF fetches a CSRF token unless one is already known.
func (c *Client) EnsureCSRF(ctx context.Context) error {
	if c.CSRFToken() != "" {
		return nil
	}
	_, err := c.FetchCSRF(ctx)
	return err
}
