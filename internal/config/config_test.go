package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".bmw")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `[default]
email = file@example.com
password = filepass
geo = row
session = file-session
`)
	t.Setenv("BMW_PATH", path)
	t.Setenv("BMW_EMAIL", "")
	t.Setenv("BMW_PASSWORD", "")
	t.Setenv("BMW_GEO", "")
	t.Setenv("BMW_SESSION", "")
	t.Setenv("BMW_SECTION", "")

	creds, err := Load(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "file@example.com", creds.Email)
	assert.Equal(t, "filepass", creds.Password)
	assert.Equal(t, "row", creds.Region)
	assert.Equal(t, "file-session", creds.SessionID)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `[default]
email = file@example.com
password = filepass
geo = row
`)
	t.Setenv("BMW_PATH", path)
	t.Setenv("BMW_EMAIL", "env@example.com")
	t.Setenv("BMW_PASSWORD", "")
	t.Setenv("BMW_GEO", "")
	t.Setenv("BMW_SESSION", "")
	t.Setenv("BMW_SECTION", "")

	creds, err := Load(Overrides{Email: "flag@example.com"})
	require.NoError(t, err)

	// Flags beat env, env beats file, file beats defaults.
	assert.Equal(t, "flag@example.com", creds.Email)
	assert.Equal(t, "filepass", creds.Password)
	assert.Equal(t, "row", creds.Region)
}

func TestLoadSelectedSection(t *testing.T) {
	path := writeConfig(t, `[default]
email = default@example.com

[work]
email = work@example.com
`)
	t.Setenv("BMW_PATH", path)
	t.Setenv("BMW_SECTION", "work")
	t.Setenv("BMW_EMAIL", "")
	t.Setenv("BMW_PASSWORD", "")
	t.Setenv("BMW_GEO", "")
	t.Setenv("BMW_SESSION", "")

	creds, err := Load(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, "work@example.com", creds.Email)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("BMW_PATH", filepath.Join(t.TempDir(), "nope"))
	t.Setenv("BMW_EMAIL", "")
	t.Setenv("BMW_PASSWORD", "")
	t.Setenv("BMW_GEO", "")
	t.Setenv("BMW_SESSION", "")
	t.Setenv("BMW_SECTION", "")

	creds, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Empty(t, creds.Email)
	assert.Equal(t, "na", creds.Region)
	// A session id is always generated so request tracing headers are stable.
	assert.NotEmpty(t, creds.SessionID)
}
