package cmd

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteflow/server/internal/api"
	"github.com/siteflow/server/internal/client"
	"github.com/siteflow/server/internal/domain/todos"
	"github.com/siteflow/server/internal/testauth"
)

// todoEnv starts the API over plain http; the CLI authenticates with the
// bearer token, so the Secure session cookie is never needed.
func todoEnv(t *testing.T) (serverURL, tokenFile string) {
	t.Helper()
	clearConfigEnv(t)

	f := testauth.New(t)
	router, err := api.NewRouter(api.Dependencies{Config: f.Config, Store: f.Store, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(router.Close)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL, filepath.Join(t.TempDir(), "token")
}

func TestTodoCommands(t *testing.T) {
	url, tokenFile := todoEnv(t)
	run := func(stdin string, args ...string) (string, error) {
		return execute(t, stdin, append([]string{"todo", "--server", url, "--token-file", tokenFile}, args...)...)
	}

	_, err := run("", "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Contains(t, err.Error(), "todo login")

	output, err := run(testauth.Password+"\n", "signup", "--name", "Ada", "--email", "ada@example.com")
	require.NoError(t, err, output)
	assert.Contains(t, output, "signed up as ada@example.com")
	token, err := client.LoadToken(tokenFile)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	output, err = run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, output, "Ada <ada@example.com>")

	output, err = run("", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "No todos.")

	output, err = run("", "add", "buy", "milk")
	require.NoError(t, err)
	assert.Contains(t, output, "added #1 buy milk")

	output, err = run("", "done", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "updated #1")

	output, err = run("", "list", "--format", "json")
	require.NoError(t, err)
	var list []todos.Todo
	require.NoError(t, json.Unmarshal([]byte(output), &list))
	assert.Equal(t, []todos.Todo{{ID: 1, Text: "buy milk", Completed: true}}, list)

	output, err = run("", "list")
	require.NoError(t, err)
	assert.Regexp(t, `1\s+\[x\]\s+buy milk`, output)

	output, err = run("", "rm", "#1")
	require.NoError(t, err)
	assert.Contains(t, output, "updated #1")

	output, err = run("", "rm", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "no todo #1")

	_, err = run("", "add", "")
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "BAD_REQUEST", cerr.Code)

	_, err = run("", "done", "one")
	assert.Error(t, err)

	output, err = run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, output, "signed out")
	token, err = client.LoadToken(tokenFile)
	require.NoError(t, err)
	assert.Empty(t, token)

	_, err = run("", "whoami")
	assert.ErrorIs(t, err, client.ErrLoginRequired)
}

func TestTodoLogin(t *testing.T) {
	url, tokenFile := todoEnv(t)
	run := func(args ...string) (string, error) {
		return execute(t, "", append([]string{"todo", "--server", url, "--token-file", tokenFile}, args...)...)
	}

	_, err := run("signup", "--name", "Ada", "--email", "ada@example.com", "--password", testauth.Password)
	require.NoError(t, err)
	_, err = run("logout")
	require.NoError(t, err)

	_, err = run("login", "--email", "ada@example.com", "--password", "wrong password")
	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "INVALID_EMAIL_OR_PASSWORD", cerr.Code)

	output, err := run("login", "--email", "ada@example.com", "--password", testauth.Password)
	require.NoError(t, err)
	assert.Contains(t, output, "signed in as ada@example.com")

	_, err = run("add", "buy milk")
	require.NoError(t, err)

	// An explicit --token wins over the saved file.
	_, err = execute(t, "", "todo", "--server", url, "--token-file", tokenFile, "--token", "not-a-jwt", "list")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestPrintTodosRejectsUnknownFormat(t *testing.T) {
	err := printTodos(nil, nil, "xml")
	assert.Error(t, err)
}
