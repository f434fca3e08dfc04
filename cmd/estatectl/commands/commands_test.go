package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, dbPath, backupOut = "", "", ""
	dryRun, olderThan = false, 7*24*time.Hour
	admin = adminInput{}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestCreateAdmin(t *testing.T) {
	t.Chdir(t.TempDir())
	dbFile := filepath.Join(t.TempDir(), "estate.db")

	out, err := execute(t, "--db", dbFile, "create-admin", "--name", "Site Admin", "--email", "Root@Example.com", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "admin root@example.com created")

	_, err = execute(t, "--db", dbFile, "create-admin", "--name", "Again", "--email", "root@example.com", "--password", "password123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--db", dbFile, "create-admin", "--email", "not-an-email", "--password", "short")
	require.Error(t, err)
}

func TestBackupAndRestore(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "estate.db")
	backup := filepath.Join(dir, "snapshot.db")

	out, err := execute(t, "--db", dbFile, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	out, err = execute(t, "--db", dbFile, "backup", "--out", backup)
	require.NoError(t, err)
	assert.Contains(t, out, backup)
	_, err = os.Stat(backup)
	require.NoError(t, err)

	_, err = execute(t, "--db", dbFile, "backup", "--out", backup)
	require.Error(t, err, "existing backup must not be overwritten")

	restored := filepath.Join(dir, "restored.db")
	out, err = execute(t, "--db", restored, "restore", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "database restored")

	out, err = execute(t, "--db", restored, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")
}

func TestJobCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	dbFile := filepath.Join(t.TempDir(), "estate.db")

	out, err := execute(t, "--db", dbFile, "cleanup", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "0 finished jobs would be deleted\n", out)

	out, err = execute(t, "--db", dbFile, "reindex")
	require.NoError(t, err)
	assert.Equal(t, "queued 0 listings for indexing\n", out)

	out, err = execute(t, "--db", dbFile, "jobs")
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, "dead "), out)
}
