// Package session obtains bearer tokens for the test roles and keeps the most
// recent one per role for the lifetime of a scenario.
package session

import (
	"context"
	"net/http"
	"regexp"
	"sync"

	"github.com/kuitang/nursery-suite/internal/apiclient"
	"github.com/kuitang/nursery-suite/internal/credentials"
	"github.com/kuitang/nursery-suite/internal/errs"
	"github.com/kuitang/nursery-suite/internal/logutil"
	"github.com/kuitang/nursery-suite/internal/obs"
)

// LoginPath is the authentication endpoint.
const LoginPath = "/api/auth/login"

var jwtShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// Doer sends API requests. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request) (*apiclient.Response, error)
}

// LoginResult is what a successful login yielded.
type LoginResult struct {
	Token    string
	Role     string // "role" field of the login body, when present
	Response *apiclient.Response
}

// Cache maps a role to the last token obtained for it. Every Login performs a
// round trip and overwrites the slot.
type Cache struct {
	client Doer

	mu     sync.Mutex
	tokens map[credentials.Role]string
}

// NewCache creates an empty cache.
func NewCache(client Doer) *Cache {
	return &Cache{client: client, tokens: map[credentials.Role]string{}}
}

// Login authenticates the fixed credential for role and caches the token.
func (c *Cache) Login(ctx context.Context, role string) (string, error) {
	cred, err := credentials.Resolve(role)
	if err != nil {
		return "", err
	}
	res, err := c.LoginWith(ctx, cred)
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

// LoginWith authenticates an explicit credential and caches the token under
// its role.
func (c *Cache) LoginWith(ctx context.Context, cred credentials.Credential) (LoginResult, error) {
	res, err := c.Authenticate(ctx, cred)
	if err != nil {
		return LoginResult{}, err
	}
	c.mu.Lock()
	c.tokens[cred.Role] = res.Token
	c.mu.Unlock()
	return res, nil
}

// Authenticate logs in with cred and returns the token without caching it.
func (c *Cache) Authenticate(ctx context.Context, cred credentials.Credential) (LoginResult, error) {
	resp, err := c.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   map[string]string{"username": cred.Username, "password": cred.Password},
	})
	if err != nil {
		return LoginResult{}, errs.Wrap(errs.AuthenticationSetup, "login request for "+cred.Username+" failed", err)
	}
	if resp.Status != http.StatusOK {
		return LoginResult{}, errs.WithResponse(errs.AuthenticationSetup,
			"login failed for "+cred.Username+": expected status 200", resp.Status, resp.Body)
	}

	var body struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := resp.JSON(&body); err != nil || !jwtShape.MatchString(body.Token) {
		return LoginResult{}, errs.WithResponse(errs.AuthenticationSetup,
			"login for "+cred.Username+" returned no JWT-shaped token", resp.Status, resp.Body)
	}

	obs.From(ctx).Debug("login_succeeded", "pkg", "session", "username", cred.Username, "token", logutil.MaskToken(body.Token))
	return LoginResult{Token: body.Token, Role: body.Role, Response: resp}, nil
}

// Token returns the cached token for role.
func (c *Cache) Token(role string) (string, bool) {
	r, err := credentials.ParseRole(role)
	if err != nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[r]
	return tok, ok
}

// Require returns the cached token for role or a setup error when the
// scenario never logged in as that role.
func (c *Cache) Require(role string) (string, error) {
	tok, ok := c.Token(role)
	if !ok {
		return "", errs.Newf(errs.Setup, "no token cached for role %q; log in first", role)
	}
	return tok, nil
}

// Reset drops every cached token.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = map[credentials.Role]string{}
}

// IsJWTShaped reports whether s has three base64url segments.
func IsJWTShaped(s string) bool {
	return jwtShape.MatchString(s)
}
