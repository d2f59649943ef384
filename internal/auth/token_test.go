package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"golang.org/x/oauth2"
)

func TestTokenExpiredBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name      string
		expiresAt int64
		skew      int64
		expired   bool
	}{
		{"no expiry known", 0, 60, true},
		{"well before skew window", now.Unix() + 61, 60, false},
		{"exactly at expires_at - skew", now.Unix() + 60, 60, true},
		{"inside skew window", now.Unix() + 30, 60, true},
		{"already expired", now.Unix() - 1, 0, true},
		{"no skew, one second left", now.Unix() + 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := Token{AccessToken: "a", ExpiresAt: tt.expiresAt}
			if got := TokenExpired(tok, now, tt.skew); got != tt.expired {
				t.Errorf("TokenExpired() = %v, want %v", got, tt.expired)
			}
			if got := TokenIsValid(tok, now, tt.skew); got != !tt.expired {
				t.Errorf("TokenIsValid() = %v, want %v", got, !tt.expired)
			}
		})
	}
}

func TestTokenIsValidNeedsAccessToken(t *testing.T) {
	now := time.Now()
	if TokenIsValid(Token{ExpiresAt: now.Unix() + 3600}, now, DefaultSkew) {
		t.Errorf("token without access token must not be valid")
	}
}

func TestExpiresIn(t *testing.T) {
	now := time.Unix(1000, 0)
	var tok Token
	tok.ExpiresIn(now, 86400)
	if tok.ExpiresAt != 87400 {
		t.Errorf("ExpiresAt = %d", tok.ExpiresAt)
	}
}

func TestStore(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "creds", "tiktok_tokens.json"))

	if _, err := s.Load(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Load() on missing file = %v, want ErrNoToken", err)
	}

	want := Token{AccessToken: "act", RefreshToken: "rft", ExpiresAt: 42, OpenID: "oid"}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestGoogleClientRefreshesAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600,"refresh_token":"r1"}`)
		case "/api":
			if got := r.Header.Get("Authorization"); got != "Bearer fresh" {
				http.Error(w, "bad auth "+got, http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	secrets := filepath.Join(dir, "client_secret.json")
	secretJSON := fmt.Sprintf(`{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"%s/auth","token_uri":"%s/token","redirect_uris":["http://localhost"]}}`, srv.URL, srv.URL)
	if err := os.WriteFile(secrets, []byte(secretJSON), 0600); err != nil {
		t.Fatal(err)
	}

	tokenPath := filepath.Join(dir, "youtube_token.json")
	stale := oauth2.Token{AccessToken: "stale", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(-time.Hour)}
	if err := storage.WriteJSON(tokenPath, stale); err != nil {
		t.Fatal(err)
	}

	client, err := GoogleClient(context.Background(), secrets, tokenPath, "scope-a")
	if err != nil {
		t.Fatalf("GoogleClient() error = %v", err)
	}
	resp, err := client.Get(srv.URL + "/api")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var saved oauth2.Token
	if err := storage.ReadJSON(tokenPath, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.AccessToken != "fresh" {
		t.Errorf("refreshed token not persisted, got %q", saved.AccessToken)
	}
}

func TestGoogleClientMissingToken(t *testing.T) {
	dir := t.TempDir()
	secrets := filepath.Join(dir, "client_secret.json")
	os.WriteFile(secrets, []byte(`{"installed":{"client_id":"id","client_secret":"s","auth_uri":"https://a","token_uri":"https://t","redirect_uris":["http://localhost"]}}`), 0600)

	_, err := GoogleClient(context.Background(), secrets, filepath.Join(dir, "none.json"))
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("GoogleClient() error = %v, want ErrNoToken", err)
	}
}
