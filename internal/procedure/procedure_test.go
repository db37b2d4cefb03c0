package procedure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteflow/server/internal/auth"
)

type noteInput struct {
	Text string `json:"text" validate:"min=1" jsonschema:"minLength=1"`
}

func (in noteInput) Validate() error {
	return ValidateStruct(in)
}

type flagInput struct {
	ID   *int64 `json:"id" validate:"required"`
	Flag *bool  `json:"flag" validate:"required"`
}

func (in flagInput) Validate() error {
	return ValidateStruct(in)
}

type note struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

var signedIn = auth.Context{
	User:    &auth.User{ID: "user-1"},
	Session: &auth.Session{ID: "sess-1"},
}

func newNotesRouter(calls *int) *Router {
	list := New(Definition{
		Name:      "list",
		Method:    http.MethodGet,
		Route:     &Route{Method: http.MethodGet, Path: "/notes"},
		Protected: true,
		Summary:   "List notes",
	}, func(ctx context.Context, ac auth.Context, _ Empty) ([]note, error) {
		*calls++
		return []note{{ID: 1, Text: "a"}}, nil
	})
	add := New(Definition{
		Name:      "add",
		Method:    http.MethodPost,
		Route:     &Route{Method: http.MethodPost, Path: "/notes"},
		Protected: true,
	}, func(ctx context.Context, ac auth.Context, in noteInput) (note, error) {
		*calls++
		return note{ID: 2, Text: in.Text}, nil
	})
	flag := New(Definition{
		Name:      "flag",
		Method:    http.MethodPost,
		Protected: true,
	}, func(ctx context.Context, ac auth.Context, in flagInput) (bool, error) {
		*calls++
		return *in.Flag, nil
	})
	ping := New(Definition{
		Name:   "ping",
		Method: http.MethodGet,
	}, func(ctx context.Context, ac auth.Context, _ Empty) (string, error) {
		return "pong", nil
	})
	return NewRouter("notes", list, add, flag, ping)
}

func TestCall_ProtectedRejectsBeforeDecoding(t *testing.T) {
	calls := 0
	router := newNotesRouter(&calls)

	add, ok := router.Lookup("notes.add")
	require.True(t, ok)

	// Invalid input and no session: authorization wins.
	_, err := add.Call(context.Background(), auth.Context{}, []byte(`{"text":""}`))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, calls)
}

func TestCall_PublicProcedure(t *testing.T) {
	calls := 0
	router := newNotesRouter(&calls)

	ping, ok := router.Lookup("notes.ping")
	require.True(t, ok)
	out, err := ping.Call(context.Background(), auth.Context{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestCall_Validation(t *testing.T) {
	tests := []struct {
		name      string
		procedure string
		input     string
		wantPath  string
	}{
		{name: "empty text", procedure: "notes.add", input: `{"text":""}`, wantPath: "text"},
		{name: "missing text", procedure: "notes.add", input: `{}`, wantPath: "text"},
		{name: "null input", procedure: "notes.add", input: `null`, wantPath: "text"},
		{name: "wrong type", procedure: "notes.add", input: `{"text":5}`, wantPath: "text"},
		{name: "malformed", procedure: "notes.add", input: `{"text":`},
		{name: "trailing data", procedure: "notes.add", input: `{"text":"a"} {}`},
		{name: "missing id", procedure: "notes.flag", input: `{"flag":true}`, wantPath: "id"},
		{name: "missing flag", procedure: "notes.flag", input: `{"id":1}`, wantPath: "flag"},
		{name: "string id", procedure: "notes.flag", input: `{"id":"1","flag":true}`, wantPath: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			router := newNotesRouter(&calls)
			p, ok := router.Lookup(tt.procedure)
			require.True(t, ok)

			_, err := p.Call(context.Background(), signedIn, []byte(tt.input))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Zero(t, calls, "handler must not run on invalid input")
			if tt.wantPath != "" {
				require.NotEmpty(t, verr.Issues)
				assert.Equal(t, tt.wantPath, verr.Issues[0].Path)
			}

			failure := Classify(err, false)
			assert.Equal(t, http.StatusBadRequest, failure.Status)
			assert.Equal(t, CodeBadRequest, failure.Code)
		})
	}
}

func TestCall_FalseAndZeroAreValid(t *testing.T) {
	calls := 0
	router := newNotesRouter(&calls)
	p, _ := router.Lookup("notes.flag")

	out, err := p.Call(context.Background(), signedIn, []byte(`{"id":0,"flag":false}`))
	require.NoError(t, err)
	assert.Equal(t, false, out)
	assert.Equal(t, 1, calls)
}

func TestCall_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("disk on fire")
	p := New(Definition{Name: "fail", Method: http.MethodPost}, func(ctx context.Context, ac auth.Context, _ Empty) (any, error) {
		return nil, boom
	})

	_, err := p.Call(context.Background(), auth.Context{}, nil)
	assert.ErrorIs(t, err, boom)

	failure := Classify(err, false)
	assert.Equal(t, http.StatusInternalServerError, failure.Status)
	assert.Equal(t, CodeInternal, failure.Code)
	assert.NotContains(t, failure.Message, "disk on fire")

	assert.Contains(t, Classify(err, true).Message, "disk on fire")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, Classify(ErrUnauthorized, false).Status)
	assert.Equal(t, CodeForbidden, Classify(auth.ErrUntrustedOrigin, false).Code)

	tooLarge := fmt.Errorf("read body: %w", &http.MaxBytesError{Limit: 10})
	assert.Equal(t, http.StatusRequestEntityTooLarge, Classify(tooLarge, false).Status)
	assert.Equal(t, CodePayloadTooLarge, Classify(tooLarge, false).Code)
}

func TestRouterLookup(t *testing.T) {
	calls := 0
	router := newNotesRouter(&calls)

	_, ok := router.Lookup("notes.list")
	assert.True(t, ok)
	_, ok = router.Lookup("todo.list")
	assert.False(t, ok)
	_, ok = router.Lookup("notes")
	assert.False(t, ok)

	p, ok := router.LookupRoute(http.MethodGet, "/notes")
	require.True(t, ok)
	assert.Equal(t, "list", p.Definition().Name)

	p, ok = router.LookupRoute(http.MethodPost, "/notes")
	require.True(t, ok)
	assert.Equal(t, "add", p.Definition().Name)

	_, ok = router.LookupRoute(http.MethodDelete, "/notes")
	assert.False(t, ok)
	assert.Equal(t, []string{"/notes"}, router.Routes())
}

func TestRouterDuplicatePanics(t *testing.T) {
	p := New(Definition{Name: "x"}, func(ctx context.Context, ac auth.Context, _ Empty) (int, error) { return 0, nil })
	assert.Panics(t, func() { NewRouter("dup", p, p) })
}

func TestRouterInterceptors(t *testing.T) {
	calls := 0
	router := newNotesRouter(&calls)

	var order []string
	record := func(label string) Interceptor {
		return func(next Invoker) Invoker {
			return func(ctx context.Context, call Call) (any, error) {
				order = append(order, label+":"+call.Name)
				return next(ctx, call)
			}
		}
	}
	router.Use(record("outer"), record("inner"))

	p, _ := router.Lookup("notes.list")
	_, err := router.Invoke(context.Background(), p, signedIn, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer:notes.list", "inner:notes.list"}, order)
	assert.Equal(t, 1, calls)
}

func TestOpenAPI(t *testing.T) {
	calls := 0
	router := newNotesRouter(&calls)
	doc := OpenAPI(Info{Title: "Notes", Version: "1.0.0", ServerURL: "/api", CookieName: "sid"}, router)

	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	require.Len(t, paths, 1, "only REST-exposed procedures are documented")

	item := paths["/notes"].(map[string]any)
	get := item["get"].(map[string]any)
	assert.Equal(t, "notes.list", get["operationId"])
	assert.Contains(t, get["responses"].(map[string]any), "401")
	assert.NotContains(t, get, "requestBody")

	post := item["post"].(map[string]any)
	body := post["requestBody"].(map[string]any)
	schema := body["content"].(map[string]any)["application/json"].(map[string]any)["schema"].(map[string]any)

	compiled := compileSchema(t, schema)
	assert.NoError(t, compiled.Validate(decode(t, `{"text":"buy milk"}`)))
	assert.Error(t, compiled.Validate(decode(t, `{"text":""}`)))
	assert.Error(t, compiled.Validate(decode(t, `{}`)))

	_, err := json.Marshal(doc)
	require.NoError(t, err)
}

func TestSchemaOf_RequiredFields(t *testing.T) {
	compiled := compileSchema(t, SchemaOf(flagInput{}))
	assert.NoError(t, compiled.Validate(decode(t, `{"id":3,"flag":false}`)))
	assert.Error(t, compiled.Validate(decode(t, `{"id":3}`)))
	assert.Error(t, compiled.Validate(decode(t, `{"id":"3","flag":true}`)))
}

func TestSchemaOf_Slices(t *testing.T) {
	schema := SchemaOf([]flagInput{})
	assert.Equal(t, "array", schema["type"])

	compiled := compileSchema(t, schema)
	assert.NoError(t, compiled.Validate(decode(t, `[]`)))
	assert.NoError(t, compiled.Validate(decode(t, `[{"id":1,"flag":true}]`)))
	assert.Error(t, compiled.Validate(decode(t, `[{"id":1}]`)))
	assert.Error(t, compiled.Validate(decode(t, `{"id":1,"flag":true}`)))
}

func TestNewDerivesSliceOutputSchema(t *testing.T) {
	var calls int
	router := newNotesRouter(&calls)
	p, ok := router.Lookup("notes.list")
	require.True(t, ok)

	out := p.Definition().OutputSchema
	assert.Equal(t, "array", out["type"])
	items, ok := out["items"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, items["properties"], "text")
}

func compileSchema(t *testing.T, schema map[string]any) *jsonschema.Schema {
	t.Helper()
	raw, err := json.Marshal(schema)
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("schema.json", bytes.NewReader(raw)))
	compiled, err := compiler.Compile("schema.json")
	require.NoError(t, err)
	return compiled
}

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.NewDecoder(strings.NewReader(s)).Decode(&v))
	return v
}
