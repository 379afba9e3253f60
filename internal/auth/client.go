package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Config struct {
	// BaseURL is the identity service root, e.g.
	// "https://id.example.com/auth/v1".
	BaseURL string
	// APIKey is sent on every request; the identity service uses it to scope
	// the tenant.
	APIKey string
	HTTP   *http.Client
	Logger *slog.Logger
}

// Client talks to the identity service and tracks the current session.
// Session changes (sign-in, sign-up, sign-out, profile update) are fanned out
// to subscribers.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger

	mu      sync.Mutex
	session *Session
	subs    map[int]func(*Session)
	nextID  int
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		log:     log.With("component", "auth"),
		subs:    make(map[int]func(*Session)),
	}
}

type sessionResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	User        User   `json:"user"`
}

func (r *sessionResponse) toSession() *Session {
	s := &Session{
		AccessToken: r.AccessToken,
		User:        r.User,
	}
	if r.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	if name, ok := r.User.Metadata[ProfileKeyName].(string); ok && s.User.Name == "" {
		s.User.Name = name
	}
	return s
}

// SignUp registers a new account. The profile data travels with the sign-up
// so the identity service stores it as user metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, data map[string]any) (*Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/signup", map[string]any{
		"email":    email,
		"password": password,
		"data":     data,
	}, "", &resp)
	if err != nil {
		c.log.Warn("sign-up failed", "email", email, "error", err)
		return nil, err
	}

	session := resp.toSession()
	c.setSession(session)
	c.log.Info("signed up", "user_id", session.User.ID)
	return session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var resp sessionResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", map[string]any{
		"email":    email,
		"password": password,
	}, "", &resp)
	if err != nil {
		c.log.Warn("sign-in failed", "email", email, "error", err)
		return nil, err
	}

	session := resp.toSession()
	c.setSession(session)
	c.log.Info("signed in", "user_id", session.User.ID)
	return session, nil
}

// SignOut revokes the current session. The local session is cleared and
// subscribers notified even when the remote revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil)
	c.setSession(nil)
	if err != nil {
		c.log.Warn("remote sign-out failed", "error", err)
		return err
	}
	c.log.Info("signed out")
	return nil
}

// UpdateProfile patches the signed-in user's metadata and refreshes the
// session's user snapshot.
func (c *Client) UpdateProfile(ctx context.Context, data map[string]any) (*User, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, &Error{Code: "not_signed_in", Message: "no active session"}
	}

	var user User
	err := c.do(ctx, http.MethodPut, "/user", map[string]any{"data": data}, session.AccessToken, &user)
	if err != nil {
		c.log.Warn("profile update failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.User = user
		session = c.session
	}
	c.mu.Unlock()
	c.notify(session)
	return &user, nil
}

// CurrentSession is the one-shot startup query: it validates the held token
// against the identity service and returns the refreshed session, or nil when
// signed out.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, nil
	}
	if session.Expired() {
		c.setSession(nil)
		return nil, nil
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/user", nil, session.AccessToken, &user); err != nil {
		if authErr, ok := err.(*Error); ok && authErr.Status == http.StatusUnauthorized {
			c.setSession(nil)
			return nil, nil
		}
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.User = user
		session = c.session
	}
	c.mu.Unlock()
	return session, nil
}

// RestoreSession seeds the client with a previously persisted session, e.g.
// from a keychain, without contacting the service.
func (c *Client) RestoreSession(session *Session) {
	c.setSession(session)
}

// Subscribe registers for session changes. The current session is delivered
// immediately, mirroring the subscription semantics of the identity SDK.
func (c *Client) Subscribe(fn func(*Session)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	session := c.session
	c.mu.Unlock()

	fn(session)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(session *Session) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.notify(session)
}

func (c *Client) notify(session *Session) {
	c.mu.Lock()
	fns := make([]func(*Session), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(session)
	}
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code"`
	Message          string `json:"msg"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Code: "encode_failed", Message: err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Code: "request_failed", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Code: "network_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: "read_failed", Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, payload)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return &Error{Code: "decode_failed", Message: fmt.Sprintf("parse response: %v", err)}
		}
	}
	return nil
}

func decodeError(status int, payload []byte) *Error {
	var er errorResponse
	_ = json.Unmarshal(payload, &er)

	authErr := &Error{Status: status}
	switch {
	case er.Code != "" || er.Message != "":
		authErr.Code = er.Code
		authErr.Message = er.Message
	case er.Error != "":
		authErr.Code = er.Error
		authErr.Message = er.ErrorDescription
	default:
		authErr.Code = "request_failed"
		authErr.Message = http.StatusText(status)
	}
	if authErr.Message == "" {
		authErr.Message = http.StatusText(status)
	}
	return authErr
}
