package permissions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	assert.True(t, table.Allows("admin", PermAlertsResolve))
	assert.True(t, table.Allows("manager", PermAlertsRead))
	assert.False(t, table.Allows("manager", PermAlertsResolve))
	assert.False(t, table.Allows("employee", PermAttemptsRead))
	assert.False(t, table.Allows("unknown-role", PermAlertsRead))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auditor": ["security.attempts.read"]}`), 0o600))

	table, err := Load(path)
	require.NoError(t, err)

	assert.True(t, table.Allows("auditor", PermAttemptsRead))
	assert.False(t, table.Allows("admin", PermAlertsRead), "file replaces defaults entirely")
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	table, err := Load("")
	require.NoError(t, err)
	assert.True(t, table.Allows("admin", PermDevicesBlock))
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
