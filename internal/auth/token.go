// Package auth reads and writes the OAuth token files kept under the
// credentials directory and builds authenticated clients from them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultSkew refreshes tokens this many seconds before they expire
const DefaultSkew = 60

// ErrNoToken is returned when a token file does not exist yet
var ErrNoToken = errors.New("no stored token, authorize the account first")

// Token is the provider-neutral token file layout
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
	OpenID       string `json:"open_id,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// TokenExpired reports whether tok must be refreshed at now. A token with no
// known expiry counts as expired.
func TokenExpired(tok Token, now time.Time, skewSec int64) bool {
	if tok.ExpiresAt == 0 {
		return true
	}
	return now.Unix() >= tok.ExpiresAt-skewSec
}

// TokenIsValid reports whether tok can be used as is
func TokenIsValid(tok Token, now time.Time, skewSec int64) bool {
	return tok.AccessToken != "" && !TokenExpired(tok, now, skewSec)
}

// ExpiresIn sets ExpiresAt from a relative lifetime in seconds
func (t *Token) ExpiresIn(now time.Time, seconds int64) {
	t.ExpiresAt = now.Unix() + seconds
}

// Store persists one token file
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the token file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the token file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the token, returning ErrNoToken when the file is missing
func (s *Store) Load() (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tok Token
	if err := storage.ReadJSON(s.path, &tok); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Token{}, ErrNoToken
		}
		return Token{}, err
	}
	return tok, nil
}

// Save writes the token
func (s *Store) Save(tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.WriteJSON(s.path, tok)
}

// GoogleClient returns an HTTP client authorized with the stored Google
// token. Refreshed tokens are written back to tokenPath.
func GoogleClient(ctx context.Context, secretsPath, tokenPath string, scopes ...string) (*http.Client, error) {
	secrets, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read client secrets: %w", err)
	}
	cfg, err := google.ConfigFromJSON(secrets, scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid client secrets: %w", err)
	}

	var tok oauth2.Token
	if err := storage.ReadJSON(tokenPath, &tok); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}

	src := &savingSource{
		base: cfg.TokenSource(ctx, &tok),
		path: tokenPath,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(&tok, src)), nil
}

// savingSource writes refreshed tokens back to disk
type savingSource struct {
	base oauth2.TokenSource
	path string
	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := storage.WriteJSON(s.path, tok); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
	}
	return tok, nil
}
