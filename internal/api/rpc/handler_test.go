package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteflow/server/internal/domain/todos"
	"github.com/siteflow/server/internal/procedure"
	"github.com/siteflow/server/internal/testauth"
)

type harness struct {
	fixture *testauth.Fixture
	handler *Handler
	login   testauth.Login
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testauth.New(t)
	return &harness{
		fixture: f,
		handler: NewHandler("/rpc", f.Gate, true, f.Router),
		login:   f.SignUp(t, "ada@example.com"),
	}
}

// call sends body to path as the signed-in user unless anonymous is set. It
// returns the status and the raw "json" member of the response envelope.
func (h *harness) call(t *testing.T, method, path, body string, anonymous bool) (int, json.RawMessage) {
	t.Helper()
	var req *http.Request
	if method == http.MethodGet {
		target := path
		if body != "" {
			target += "?data=" + url.QueryEscape(body)
		}
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if !anonymous {
		h.login.Authorize(req)
	}

	rec := httptest.NewRecorder()
	require.True(t, h.handler.Handle(rec, req), "handled %s %s", method, path)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env.JSON
}

func decodeError(t *testing.T, raw json.RawMessage) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestBuyMilkScenario(t *testing.T) {
	h := newHarness(t)

	status, raw := h.call(t, http.MethodPost, "/rpc/todo.create", `{"json":{"text":"buy milk"}}`, false)
	require.Equal(t, http.StatusOK, status, string(raw))
	var created todos.Todo
	require.NoError(t, json.Unmarshal(raw, &created))
	assert.Equal(t, todos.Todo{ID: 1, Text: "buy milk", Completed: false}, created)

	status, raw = h.call(t, http.MethodGet, "/rpc/todo.getAll", "", false)
	require.Equal(t, http.StatusOK, status)
	var list []todos.Todo
	require.NoError(t, json.Unmarshal(raw, &list))
	if diff := cmp.Diff([]todos.Todo{created}, list); diff != "" {
		t.Fatalf("getAll mismatch (-want +got):\n%s", diff)
	}

	status, raw = h.call(t, http.MethodPost, "/rpc/todo/toggle", `{"json":{"id":1,"completed":true}}`, false)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"rowsAffected":1}`, string(raw))

	status, raw = h.call(t, http.MethodPost, "/rpc/todo.getAll", "", false)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"id":1,"text":"buy milk","completed":true}]`, string(raw))

	status, raw = h.call(t, http.MethodPost, "/rpc/todo.delete", `{"json":{"id":1}}`, false)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"rowsAffected":1}`, string(raw))

	status, raw = h.call(t, http.MethodPost, "/rpc/todo.delete", `{"json":{"id":1}}`, false)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"rowsAffected":0}`, string(raw), "second delete affects nothing")

	_, raw = h.call(t, http.MethodGet, "/rpc/todo.getAll", `{"json":null}`, false)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestUnauthorizedHasNoSideEffects(t *testing.T) {
	h := newHarness(t)

	calls := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/rpc/todo.getAll", ""},
		{http.MethodPost, "/rpc/todo.create", `{"json":{"text":"sneaky"}}`},
		{http.MethodPost, "/rpc/todo.create", `{"json":{"text":""}}`},
		{http.MethodPost, "/rpc/todo.toggle", `not json at all`},
		{http.MethodPost, "/rpc/todo.delete", `{"json":{"id":1}}`},
	}
	for _, c := range calls {
		status, raw := h.call(t, c.method, c.path, c.body, true)
		assert.Equal(t, http.StatusUnauthorized, status, c.path)
		body := decodeError(t, raw)
		assert.Equal(t, procedure.CodeUnauthorized, body.Code)
		assert.Equal(t, http.StatusUnauthorized, body.Status)
		assert.False(t, body.Defined)
	}

	list, err := h.fixture.Todos.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "empty text", path: "/rpc/todo.create", body: `{"json":{"text":""}}`},
		{name: "missing text", path: "/rpc/todo.create", body: `{"json":{}}`},
		{name: "wrong type", path: "/rpc/todo.create", body: `{"json":{"text":42}}`},
		{name: "toggle without completed", path: "/rpc/todo.toggle", body: `{"json":{"id":1}}`},
		{name: "delete without id", path: "/rpc/todo.delete", body: `{"json":{}}`},
		{name: "malformed body", path: "/rpc/todo.create", body: `{"json":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := h.call(t, http.MethodPost, tt.path, tt.body, false)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, procedure.CodeBadRequest, decodeError(t, raw).Code)
		})
	}

	list, err := h.fixture.Todos.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list, "invalid input never reaches the store")
}

func TestValidationErrorCarriesIssues(t *testing.T) {
	h := newHarness(t)
	_, raw := h.call(t, http.MethodPost, "/rpc/todo.create", `{"json":{"text":""}}`, false)

	var body struct {
		Data struct {
			Issues []procedure.Issue `json:"issues"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.Len(t, body.Data.Issues, 1)
	assert.Equal(t, "text", body.Data.Issues[0].Path)
}

func TestMissingIDsAffectNothing(t *testing.T) {
	h := newHarness(t)

	_, raw := h.call(t, http.MethodPost, "/rpc/todo.toggle", `{"json":{"id":999,"completed":true}}`, false)
	assert.JSONEq(t, `{"rowsAffected":0}`, string(raw))
	_, raw = h.call(t, http.MethodPost, "/rpc/todo.delete", `{"json":{"id":999}}`, false)
	assert.JSONEq(t, `{"rowsAffected":0}`, string(raw))
}

func TestMethodNotSupported(t *testing.T) {
	h := newHarness(t)

	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/rpc/todo.create"},
		{http.MethodPut, "/rpc/todo.getAll"},
		{http.MethodDelete, "/rpc/todo.delete"},
	} {
		req := httptest.NewRequest(c.method, c.path, nil)
		h.login.Authorize(req)
		rec := httptest.NewRecorder()
		require.True(t, h.handler.Handle(rec, req))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, c.method+" "+c.path)
		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, procedure.CodeMethodNotSupported, decodeError(t, env.JSON).Code)
		assert.NotEmpty(t, rec.Header().Get("Allow"))
	}
}

func TestUnmatchedFallsThrough(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/rpc", "/rpc/", "/rpc/todo", "/rpc/todo.nope", "/rpc/other.getAll", "/rpcx/todo.getAll", "/api/todos"} {
		rec := httptest.NewRecorder()
		assert.False(t, h.handler.Handle(rec, httptest.NewRequest(http.MethodPost, path, nil)), path)
		assert.Equal(t, 0, rec.Body.Len())
	}
}

func TestUntrustedOriginForbidden(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc/todo.getAll", nil)
	req.Header.Set("Origin", "https://evil.example")
	h.login.Authorize(req)
	rec := httptest.NewRecorder()
	h.handler.Handle(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBearerCredential(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc/todo.create", strings.NewReader(`{"json":{"text":"via bearer"}}`))
	h.login.AuthorizeBearer(req)
	rec := httptest.NewRecorder()
	h.handler.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestInterceptorsSeeQualifiedName(t *testing.T) {
	h := newHarness(t)
	var seen []string
	h.fixture.Router.Use(func(next procedure.Invoker) procedure.Invoker {
		return func(ctx context.Context, call procedure.Call) (any, error) {
			seen = append(seen, call.Name)
			return next(ctx, call)
		}
	})

	h.call(t, http.MethodGet, "/rpc/todo/getAll", "", false)
	assert.Equal(t, []string{"todo.getAll"}, seen)
}
