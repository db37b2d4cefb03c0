package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useSQLiteFile(t *testing.T) {
	t.Helper()
	clearConfigEnv(t)
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("DATABASE_URL", "sqlite://"+filepath.Join(t.TempDir(), "siteflow.db"))
	t.Setenv("BETTER_AUTH_SECRET", "cli-test-secret")
}

func TestMigrateCommands(t *testing.T) {
	useSQLiteFile(t)

	output, err := execute(t, "", "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, output, "schema version: none")

	output, err = execute(t, "", "migrate", "up")
	require.NoError(t, err)
	assert.Regexp(t, `schema version: [1-9]\d*\n`, output)

	output, err = execute(t, "", "migrate", "up")
	require.NoError(t, err, "up is idempotent")
	assert.Contains(t, output, "schema version:")

	output, err = execute(t, "", "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, output, "rolled back 1 migration(s)")

	_, err = execute(t, "", "migrate", "down", "--steps", "0")
	assert.Error(t, err)
}

func TestUserCreateCommand(t *testing.T) {
	useSQLiteFile(t)
	_, err := execute(t, "", "migrate", "up")
	require.NoError(t, err)

	output, err := execute(t, "", "user", "create", "--name", "Ada", "--email", "Ada@Example.com", "--password", "correct horse")
	require.NoError(t, err)
	assert.Contains(t, output, "<ada@example.com>")

	_, err = execute(t, "", "user", "create", "--name", "Ada", "--email", "ada@example.com", "--password", "correct horse")
	assert.Error(t, err, "email is taken")

	output, err = execute(t, "correct horse battery\n", "user", "create", "--name", "Grace", "--email", "grace@example.com")
	require.NoError(t, err, output)
	assert.Contains(t, output, "<grace@example.com>")

	_, err = execute(t, "", "user", "create", "--name", "Short", "--email", "short@example.com", "--password", "short")
	assert.Error(t, err, "password below the minimum length")

	_, err = execute(t, "", "user", "create", "--email", "x@example.com")
	assert.Error(t, err, "name is required")
}

func TestCleanupSessionsCommand(t *testing.T) {
	useSQLiteFile(t)
	_, err := execute(t, "", "migrate", "up")
	require.NoError(t, err)

	output, err := execute(t, "", "cleanup", "sessions")
	require.NoError(t, err)
	assert.Contains(t, output, "deleted 0 expired session(s) and 0 verification(s)")
}
