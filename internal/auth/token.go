package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Token holds the bearer and refresh tokens issued by the BMW OAuth
// endpoint. Expires is the absolute expiry computed from expires_in at
// the time the token was obtained.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int       `json:"expires_in"`
	Expires      time.Time `json:"expires"`
}

// Valid reports whether the token can be used for API calls right now.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != "" && time.Now().Before(t.Expires)
}

// Expired reports whether the token is past its absolute expiry.
func (t *Token) Expired() bool {
	return t == nil || !time.Now().Before(t.Expires)
}

// FileStore persists a single token to a JSON file. The process holds at
// most one valid token; every save overwrites the previous one.
type FileStore struct {
	path string
}

// NewFileStore creates a token store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the token file path, honoring the
// BMW_SESSION_FILE environment variable.
func DefaultPath() string {
	if p := os.Getenv("BMW_SESSION_FILE"); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".bmwsession.json"
	}

	return filepath.Join(home, ".bmwsession.json")
}

// Load reads the persisted token. A missing or unreadable file yields
// (nil, nil) so the caller simply starts logged out.
func (s *FileStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		// A corrupt token file is not fatal; a full login will replace it.
		return nil, nil
	}

	return &tok, nil
}

// Save writes the token to disk, replacing any previous token.
func (s *FileStore) Save(tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	return nil
}

// Clear removes the persisted token.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete token file: %w", err)
	}
	return nil
}

// Path returns the path of the backing file.
func (s *FileStore) Path() string {
	return s.path
}
