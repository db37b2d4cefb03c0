package client_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteflow/server/internal/api"
	"github.com/siteflow/server/internal/client"
	"github.com/siteflow/server/internal/domain/todos"
	"github.com/siteflow/server/internal/testauth"
)

type testServer struct {
	*httptest.Server
	listCalls atomic.Int32
}

// newServer serves the full API over TLS; the session cookie is Secure and
// would not be replayed over plain http.
func newServer(t *testing.T) *testServer {
	t.Helper()
	f := testauth.New(t)
	router, err := api.NewRouter(api.Dependencies{Config: f.Config, Store: f.Store, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(router.Close)

	ts := &testServer{}
	ts.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/todo.getAll") {
			ts.listCalls.Add(1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) newClient(t *testing.T, opts client.Options) *client.Client {
	t.Helper()
	opts.HTTPClient = ts.Client()
	c, err := client.New(ts.URL, opts)
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := client.New("ftp://example.com", client.Options{})
	assert.Error(t, err)
	_, err = client.New("://nope", client.Options{})
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{})
	ctx := t.Context()

	info, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)
	_, err = c.RequireSession(ctx)
	assert.ErrorIs(t, err, client.ErrLoginRequired)

	user, err := c.SignUp(ctx, "Ada", "ada@example.com", testauth.Password)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEmpty(t, c.Token())

	info, err = c.RequireSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, info.User.ID)

	require.NoError(t, c.SignOut(ctx))
	assert.Empty(t, c.Token())
	_, err = c.RequireSession(ctx)
	assert.ErrorIs(t, err, client.ErrLoginRequired)

	_, err = c.SignIn(ctx, "ada@example.com", testauth.Password)
	require.NoError(t, err)
	_, err = c.RequireSession(ctx)
	assert.NoError(t, err)
}

func TestBuyMilk(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{})
	ctx := t.Context()
	_, err := c.SignUp(ctx, "Ada", "ada@example.com", testauth.Password)
	require.NoError(t, err)

	created, err := c.Create(ctx, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, todos.Todo{ID: 1, Text: "buy milk"}, created)

	cached, ok := c.Cached()
	require.True(t, ok, "create refetches the list")
	assert.Equal(t, []todos.Todo{created}, cached)

	res, err := c.Toggle(ctx, created.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	list, err := c.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []todos.Todo{{ID: 1, Text: "buy milk", Completed: true}}, list)

	res, err = c.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)

	res, err = c.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RowsAffected)

	list, err = c.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestGetAllIsCachedUntilMutation(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{})
	ctx := t.Context()
	_, err := c.SignUp(ctx, "Ada", "ada@example.com", testauth.Password)
	require.NoError(t, err)

	for range 3 {
		_, err := c.GetAll(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), ts.listCalls.Load())

	_, err = c.Create(ctx, "buy milk")
	require.NoError(t, err)
	assert.Equal(t, int32(2), ts.listCalls.Load())

	list, err := c.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int32(2), ts.listCalls.Load())

	_, err = c.Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), ts.listCalls.Load())
}

func TestFailedMutationKeepsCache(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{})
	ctx := t.Context()
	_, err := c.SignUp(ctx, "Ada", "ada@example.com", testauth.Password)
	require.NoError(t, err)
	_, err = c.GetAll(ctx)
	require.NoError(t, err)

	_, err = c.Create(ctx, "")
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusBadRequest, cerr.Status)
	assert.Equal(t, "BAD_REQUEST", cerr.Code)
	assert.Contains(t, string(cerr.Data), "issues")

	assert.Equal(t, int32(1), ts.listCalls.Load())
	_, ok := c.Cached()
	assert.True(t, ok)
}

func TestUnauthorized(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{})

	_, err := c.GetAll(t.Context())
	require.ErrorIs(t, err, client.ErrUnauthorized)
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "UNAUTHORIZED", cerr.Code)

	_, err = c.Create(t.Context(), "buy milk")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestWrongPassword(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{})
	_, err := c.SignUp(t.Context(), "Ada", "ada@example.com", testauth.Password)
	require.NoError(t, err)

	other := ts.newClient(t, client.Options{})
	_, err = other.SignIn(t.Context(), "ada@example.com", "not the password")
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "INVALID_EMAIL_OR_PASSWORD", cerr.Code)
	assert.True(t, errors.Is(err, client.ErrUnauthorized))
	assert.Empty(t, other.Token())
}

func TestBearerTokenWithoutCookies(t *testing.T) {
	ts := newServer(t)
	first := ts.newClient(t, client.Options{})
	_, err := first.SignUp(t.Context(), "Ada", "ada@example.com", testauth.Password)
	require.NoError(t, err)
	_, err = first.Create(t.Context(), "buy milk")
	require.NoError(t, err)

	second := ts.newClient(t, client.Options{Token: first.Token()})
	list, err := second.GetAll(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "buy milk", list[0].Text)
}

func TestUntrustedOrigin(t *testing.T) {
	ts := newServer(t)
	c := ts.newClient(t, client.Options{Origin: "https://evil.example"})

	_, err := c.SignUp(t.Context(), "Ada", "ada@example.com", testauth.Password)
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusForbidden, cerr.Status)

	trusted := ts.newClient(t, client.Options{Origin: testauth.TrustedOrigin})
	_, err = trusted.SignUp(t.Context(), "Ada", "ada@example.com", testauth.Password)
	assert.NoError(t, err)
}
