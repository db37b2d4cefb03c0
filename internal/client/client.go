// Package client is the data layer used by the CLI and the MCP server. It
// speaks the RPC form of the procedure API, keeps the session cookie and the
// bearer token, and caches the todo list between mutations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/siteflow/server/internal/auth"
	"github.com/siteflow/server/internal/domain/todos"
)

const (
	DefaultAuthPath = "/api/auth"
	DefaultRPCPath  = "/rpc"
	DefaultTimeout  = 30 * time.Second

	todoListKey     = "todo.getAll"
	maxResponseSize = 4 << 20
)

var (
	// ErrUnauthorized matches any 401 answer from the server.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLoginRequired is returned by RequireSession when nobody is signed in.
	ErrLoginRequired = errors.New("login required")
)

// Error is a failure reported by the server.
type Error struct {
	Status  int
	Code    string
	Message string
	Data    json.RawMessage
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

type Options struct {
	// HTTPClient is copied; a cookie jar is added when it has none.
	HTTPClient *http.Client
	// Token is a bearer token from an earlier sign-in.
	Token    string
	AuthPath string
	RPCPath  string
	// Origin is sent with every request when set.
	Origin string
	Logger zerolog.Logger
}

// SessionInfo is the signed-in identity reported by get-session.
type SessionInfo struct {
	Session auth.Session `json:"session"`
	User    auth.User    `json:"user"`
}

type Client struct {
	http     *http.Client
	authBase string
	rpcBase  string
	origin   string
	logger   zerolog.Logger
	cache    *queryCache

	mu    sync.RWMutex
	token string
}

func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}

	hc := &http.Client{Timeout: DefaultTimeout}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		hc = &copied
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	authPath := opts.AuthPath
	if authPath == "" {
		authPath = DefaultAuthPath
	}
	rpcPath := opts.RPCPath
	if rpcPath == "" {
		rpcPath = DefaultRPCPath
	}

	return &Client{
		http:     hc,
		authBase: base.String() + authPath,
		rpcBase:  base.String() + rpcPath,
		origin:   opts.Origin,
		logger:   opts.Logger.With().Str("component", "client").Logger(),
		cache:    newQueryCache(),
		token:    opts.Token,
	}, nil
}

// Token returns the current bearer token, empty before sign-in.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type tokenResponse struct {
	Token string    `json:"token"`
	User  auth.User `json:"user"`
}

func (c *Client) SignUp(ctx context.Context, name, email, password string) (auth.User, error) {
	var out tokenResponse
	resp, err := c.authCall(ctx, http.MethodPost, "/sign-up/email", signUpRequest{Name: name, Email: email, Password: password}, &out)
	if err != nil {
		return auth.User{}, fmt.Errorf("sign up: %w", err)
	}
	c.signedIn(resp, out.Token)
	return out.User, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (auth.User, error) {
	var out tokenResponse
	resp, err := c.authCall(ctx, http.MethodPost, "/sign-in/email", signInRequest{Email: email, Password: password, RememberMe: true}, &out)
	if err != nil {
		return auth.User{}, fmt.Errorf("sign in: %w", err)
	}
	c.signedIn(resp, out.Token)
	return out.User, nil
}

func (c *Client) signedIn(resp *http.Response, bodyToken string) {
	token := resp.Header.Get(auth.TokenHeader)
	if token == "" {
		token = bodyToken
	}
	c.setToken(token)
	c.cache.reset()
}

// SignOut revokes the current session and forgets every credential.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.authCall(ctx, http.MethodPost, "/sign-out", struct{}{}, nil)
	c.setToken("")
	c.cache.reset()
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Session returns the signed-in identity, or nil when there is none.
func (c *Client) Session(ctx context.Context) (*SessionInfo, error) {
	var out *SessionInfo
	if _, err := c.authCall(ctx, http.MethodGet, "/get-session", nil, &out); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// RequireSession is Session with a missing session reported as
// ErrLoginRequired.
func (c *Client) RequireSession(ctx context.Context) (*SessionInfo, error) {
	info, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrLoginRequired
	}
	return info, nil
}

// GetAll returns the todo list, from the cache when it is fresh.
func (c *Client) GetAll(ctx context.Context) ([]todos.Todo, error) {
	v, err := c.cache.load(ctx, todoListKey, func(ctx context.Context) (any, error) {
		var list []todos.Todo
		if err := c.call(ctx, "todo.getAll", nil, &list); err != nil {
			return nil, err
		}
		if list == nil {
			list = []todos.Todo{}
		}
		return list, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return slices.Clone(v.([]todos.Todo)), nil
}

// Cached returns the cached todo list without contacting the server.
func (c *Client) Cached() ([]todos.Todo, bool) {
	v, ok := c.cache.peek(todoListKey)
	if !ok {
		return nil, false
	}
	return slices.Clone(v.([]todos.Todo)), true
}

// Refetch drops the cached list and loads it again.
func (c *Client) Refetch(ctx context.Context) ([]todos.Todo, error) {
	c.cache.invalidate(todoListKey)
	return c.GetAll(ctx)
}

func (c *Client) Create(ctx context.Context, text string) (todos.Todo, error) {
	var out todos.Todo
	if err := c.call(ctx, "todo.create", map[string]string{"text": text}, &out); err != nil {
		return todos.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	c.afterMutation(ctx)
	return out, nil
}

func (c *Client) Toggle(ctx context.Context, id int64, completed bool) (todos.MutationResult, error) {
	in := struct {
		ID        int64 `json:"id"`
		Completed bool  `json:"completed"`
	}{ID: id, Completed: completed}

	var out todos.MutationResult
	if err := c.call(ctx, "todo.toggle", in, &out); err != nil {
		return todos.MutationResult{}, fmt.Errorf("toggle todo %d: %w", id, err)
	}
	c.afterMutation(ctx)
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id int64) (todos.MutationResult, error) {
	var out todos.MutationResult
	if err := c.call(ctx, "todo.delete", map[string]int64{"id": id}, &out); err != nil {
		return todos.MutationResult{}, fmt.Errorf("delete todo %d: %w", id, err)
	}
	c.afterMutation(ctx)
	return out, nil
}

// afterMutation refreshes the list. A failed refetch leaves the cache empty
// so the next GetAll retries; the mutation itself already succeeded.
func (c *Client) afterMutation(ctx context.Context) {
	if _, err := c.Refetch(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("refetch after mutation failed")
	}
}

type envelope struct {
	JSON json.RawMessage `json:"json"`
}

type rpcError struct {
	Code    string          `json:"code"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, name string, input, output any) error {
	var body io.Reader
	if input != nil {
		payload, err := json.Marshal(map[string]any{"json": input})
		if err != nil {
			return fmt.Errorf("encode input: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	resp, raw, err := c.do(ctx, http.MethodPost, c.rpcBase+"/"+name, body)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &Error{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e rpcError
		_ = json.Unmarshal(env.JSON, &e)
		if e.Status == 0 {
			e.Status = resp.StatusCode
		}
		return &Error{Status: e.Status, Code: e.Code, Message: e.Message, Data: e.Data}
	}
	if output == nil {
		return nil
	}
	if err := json.Unmarshal(env.JSON, output); err != nil {
		return fmt.Errorf("decode %s output: %w", name, err)
	}
	return nil
}

func (c *Client) authCall(ctx context.Context, method, path string, input, output any) (*http.Response, error) {
	var body io.Reader
	if input != nil {
		payload, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	resp, raw, err := c.do(ctx, method, c.authBase+path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e rpcError
		_ = json.Unmarshal(raw, &e)
		if e.Code == "" {
			e.Code = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Status: resp.StatusCode, Code: e.Code, Message: e.Message}
	}
	if output != nil {
		if err := json.Unmarshal(raw, output); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, raw, nil
}
