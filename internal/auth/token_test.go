package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValid(t *testing.T) {
	tests := []struct {
		name  string
		token *Token
		want  bool
	}{
		{
			name:  "nil token",
			token: nil,
			want:  false,
		},
		{
			name:  "no access token",
			token: &Token{Expires: time.Now().Add(time.Hour)},
			want:  false,
		},
		{
			name:  "expired",
			token: &Token{AccessToken: "abc", Expires: time.Now().Add(-time.Minute)},
			want:  false,
		},
		{
			name:  "usable",
			token: &Token{AccessToken: "abc", Expires: time.Now().Add(time.Hour)},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.token.Valid())
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	tok := &Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    3600,
		Expires:      time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(tok))

	// Tokens are sensitive; the file must not be world readable.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tok.AccessToken, got.AccessToken)
	assert.Equal(t, tok.RefreshToken, got.RefreshToken)
	assert.True(t, got.Expires.Equal(tok.Expires))
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	require.NoError(t, store.Save(&Token{AccessToken: "first"}))
	require.NoError(t, store.Save(&Token{AccessToken: "second"}))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.AccessToken)
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	got, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(&Token{AccessToken: "abc"}))
	require.NoError(t, store.Clear())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	require.NoError(t, store.Clear())
}
