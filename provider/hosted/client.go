// Package hosted implements the accounts.Identities backend against the
// hosted identity provider's REST surface: password grant, sign up with
// metadata, sign out, invite code exchange, and token refresh. Access
// tokens are verified against the provider's JWKS when one is configured.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/virtualgta/go-accounts"
	"golang.org/x/oauth2"
)

// Client talks to the hosted identity provider. It mirrors the last
// session it issued so accounts.SessionStore can poll Session during
// startup recovery.
type Client struct {
	baseURL         string
	apiKey          string
	http            *http.Client
	emailRedirectTo string
	oauth           *oauth2.Config
	verifier        *TokenVerifier
	logger          accounts.Logger

	mu           sync.Mutex
	current      *accounts.Session
	listeners    map[int]func(accounts.AuthChange)
	nextListener int
}

var _ accounts.Identities = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l accounts.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEmailRedirectTo sets the URL the confirmation email links back to.
func WithEmailRedirectTo(u string) Option {
	return func(c *Client) {
		c.emailRedirectTo = u
	}
}

// WithTokenVerifier enables JWKS verification of issued access tokens.
func WithTokenVerifier(v *TokenVerifier) Option {
	return func(c *Client) {
		c.verifier = v
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		listeners: map[int]func(accounts.AuthChange){},
		oauth: &oauth2.Config{
			ClientID: apiKey,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// tokenResponse is the provider's session payload.
type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         identityJSON `json:"user"`
}

type identityJSON struct {
	ID          string                  `json:"id"`
	Email       string                  `json:"email"`
	ConfirmedAt *time.Time              `json:"confirmed_at"`
	Metadata    accounts.SignupMetadata `json:"user_metadata"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Msg, e.Message, e.Description, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Session returns the mirrored session, refreshing it through the
// refresh-token grant when expired.
func (c *Client) Session(ctx context.Context) (*accounts.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil || !current.Expired() {
		return current, nil
	}

	refreshed, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}

	c.setCurrent(refreshed, accounts.AuthEventTokenRefreshed)
	return refreshed, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*accounts.Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	var out tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", payload, &out); err != nil {
		return nil, err
	}
	return c.sessionFromResponse(out)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*accounts.Session, error) {
	payload := map[string]string{"email": email, "password": password}
	var out tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", payload, &out); err != nil {
		return nil, err
	}

	sess, err := c.sessionFromResponse(out)
	if err != nil {
		return nil, err
	}

	c.setCurrent(sess, accounts.AuthEventSignedIn)
	return sess, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta accounts.SignupMetadata) (*accounts.Identity, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     meta,
	}
	if c.emailRedirectTo != "" {
		payload["email_redirect_to"] = c.emailRedirectTo
	}

	var out identityJSON
	if err := c.post(ctx, "/signup", "", payload, &out); err != nil {
		return nil, err
	}
	return out.identity()
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return goerrors.New("no active session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	if err := c.post(ctx, "/logout", current.AccessToken, nil, nil); err != nil {
		return err
	}

	c.setCurrent(nil, accounts.AuthEventSignedOut)
	return nil
}

// ExchangeCode trades the invite auth code for a session through the
// provider's token endpoint, then loads the identity it belongs to.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*accounts.Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invite code exchange failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	identity, err := c.fetchIdentity(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if c.verifier != nil {
		if err := c.verifier.Verify(token.AccessToken); err != nil {
			return nil, err
		}
	}

	sess := &accounts.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		User:         identity,
	}

	c.setCurrent(sess, accounts.AuthEventSignedIn)
	return sess, nil
}

func (c *Client) UpdateUser(ctx context.Context, password string, meta accounts.SignupMetadata) (*accounts.Identity, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, goerrors.New("no active session", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	payload := map[string]any{"data": meta}
	if password != "" {
		payload["password"] = password
	}

	var out identityJSON
	if err := c.do(ctx, http.MethodPut, "/user", current.AccessToken, payload, &out); err != nil {
		return nil, err
	}

	identity, err := out.identity()
	if err != nil {
		return nil, err
	}

	// Previously published sessions stay immutable. The refreshed identity
	// rides a fresh session announced through the auth-change channel.
	c.mu.Lock()
	stale := c.current
	c.mu.Unlock()
	if stale != nil {
		updated := &accounts.Session{
			AccessToken:  stale.AccessToken,
			RefreshToken: stale.RefreshToken,
			ExpiresAt:    stale.ExpiresAt,
			User:         identity,
		}
		c.setCurrent(updated, accounts.AuthEventUserUpdated)
	}

	return identity, nil
}

func (c *Client) OnAuthChange(fn func(accounts.AuthChange)) accounts.Unsubscribe {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) fetchIdentity(ctx context.Context, accessToken string) (*accounts.Identity, error) {
	var out identityJSON
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out.identity()
}

func (c *Client) setCurrent(sess *accounts.Session, event accounts.AuthEvent) {
	c.mu.Lock()
	c.current = sess
	fns := make([]func(accounts.AuthChange), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	change := accounts.AuthChange{Event: event, Session: sess}
	for _, fn := range fns {
		fn(change)
	}
}

func (c *Client) sessionFromResponse(out tokenResponse) (*accounts.Session, error) {
	identity, err := out.User.identity()
	if err != nil {
		return nil, err
	}

	if c.verifier != nil {
		if err := c.verifier.Verify(out.AccessToken); err != nil {
			return nil, err
		}
	}

	return &accounts.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
		User:         identity,
	}, nil
}

func (c *Client) post(ctx context.Context, path, bearer string, payload, out any) error {
	return c.do(ctx, http.MethodPost, path, bearer, payload, out)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "identity backend unreachable")
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to read response")
	}

	if res.StatusCode >= 400 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.text()
		if msg == "" {
			msg = fmt.Sprintf("identity backend returned status %d", res.StatusCode)
		}
		// The provider's message is surfaced verbatim so the form
		// boundary can display it inline.
		apiError := goerrors.New(msg, goerrors.CategoryAuth)
		switch res.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			apiError = apiError.WithCode(goerrors.CodeUnauthorized)
		case http.StatusNotFound:
			apiError = apiError.WithCode(goerrors.CodeNotFound)
		case http.StatusConflict, http.StatusUnprocessableEntity:
			apiError = apiError.WithCode(goerrors.CodeConflict)
		default:
			apiError = apiError.WithCode(goerrors.CodeBadRequest)
		}
		return apiError
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to decode response")
	}
	return nil
}

func (j identityJSON) identity() (*accounts.Identity, error) {
	id, err := parseIdentityID(j.ID)
	if err != nil {
		return nil, err
	}
	return &accounts.Identity{
		ID:          id,
		Email:       j.Email,
		ConfirmedAt: j.ConfirmedAt,
		Metadata:    j.Metadata,
	}, nil
}
