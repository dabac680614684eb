package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/desertthunder/tubesync/internal/shared"
	"golang.org/x/oauth2"
)

func testStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(FileStoreOpts{
		Config: GoogleConfig("client-id", "client-secret", "http://localhost:8093/callback"),
		Path:   filepath.Join(t.TempDir(), "cache", "token.json"),
	})
}

func seedToken(t *testing.T, s *FileStore, tok *oauth2.Token) {
	t.Helper()
	if err := s.persist(tok); err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}
}

func validToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestFileStoreAcquire(t *testing.T) {
	t.Run("returns cached valid token without interaction", func(t *testing.T) {
		s := testStore(t)
		seedToken(t, s, validToken())

		s.authorize = func(ctx context.Context) (*oauth2.Token, error) {
			t.Fatal("authorize should not run with a valid cache")
			return nil, nil
		}

		tok, err := s.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken != "access" {
			t.Errorf("expected cached token, got %q", tok.AccessToken)
		}
	})

	t.Run("missing cache runs the interactive flow", func(t *testing.T) {
		s := testStore(t)

		authorized := false
		s.authorize = func(ctx context.Context) (*oauth2.Token, error) {
			authorized = true
			return validToken(), nil
		}

		if _, err := s.Acquire(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !authorized {
			t.Error("expected interactive authorization")
		}

		// the fresh token is persisted for the next run
		if _, err := s.Cached(); err != nil {
			t.Errorf("expected a cached token afterwards: %v", err)
		}
	})

	t.Run("corrupt cache falls back to interactive flow", func(t *testing.T) {
		s := testStore(t)
		if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(s.path, []byte("{not json"), 0o600); err != nil {
			t.Fatal(err)
		}

		s.authorize = func(ctx context.Context) (*oauth2.Token, error) {
			return validToken(), nil
		}

		tok, err := s.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken != "access" {
			t.Errorf("expected fresh token, got %q", tok.AccessToken)
		}
	})

	t.Run("expired token without refresh token reauthorizes", func(t *testing.T) {
		s := testStore(t)
		seedToken(t, s, &oauth2.Token{
			AccessToken: "stale",
			Expiry:      time.Now().Add(-time.Hour),
		})

		s.authorize = func(ctx context.Context) (*oauth2.Token, error) {
			return validToken(), nil
		}

		tok, err := s.Acquire(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok.AccessToken != "access" {
			t.Errorf("expected fresh token, got %q", tok.AccessToken)
		}
	})

	t.Run("authorization failure surfaces", func(t *testing.T) {
		s := testStore(t)
		s.authorize = func(ctx context.Context) (*oauth2.Token, error) {
			return nil, shared.ErrAuthDeclined
		}

		if _, err := s.Acquire(context.Background()); !errors.Is(err, shared.ErrAuthDeclined) {
			t.Errorf("expected ErrAuthDeclined, got %v", err)
		}
	})

	t.Run("cancelled authorization releases the callback address", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		ln.Close()

		s := NewFileStore(FileStoreOpts{
			Config:     GoogleConfig("client-id", "client-secret", "http://"+addr+"/callback"),
			Path:       filepath.Join(t.TempDir(), "token.json"),
			ServerAddr: addr,
		})
		s.openBrowser = func(url string) error { return nil }

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := s.Acquire(ctx); !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}

		// the callback server was shut down on the early return, so the
		// address can be bound again
		deadline := time.Now().Add(2 * time.Second)
		for {
			ln, err := net.Listen("tcp", addr)
			if err == nil {
				ln.Close()
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("callback address still held: %v", err)
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestFileStorePersist(t *testing.T) {
	t.Run("token file is private", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("file modes are not meaningful on windows")
		}

		s := testStore(t)
		seedToken(t, s, validToken())

		info, err := os.Stat(s.path)
		if err != nil {
			t.Fatalf("failed to stat token file: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("expected 0600, got %o", perm)
		}
	})

	t.Run("round trips the token", func(t *testing.T) {
		s := testStore(t)
		want := validToken()
		seedToken(t, s, want)

		got, err := s.Cached()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
			t.Errorf("token did not round trip: %+v", got)
		}
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		s := testStore(t)
		seedToken(t, s, validToken())

		files, err := os.ReadDir(filepath.Dir(s.path))
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 1 {
			t.Errorf("expected only the token file, found %d entries", len(files))
		}
	})
}

func TestFileStoreInvalidate(t *testing.T) {
	s := testStore(t)
	seedToken(t, s, validToken())

	if err := s.Invalidate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Cached(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a cache miss, got %v", err)
	}

	t.Run("idempotent", func(t *testing.T) {
		if err := s.Invalidate(); err != nil {
			t.Errorf("second invalidate should be a no-op: %v", err)
		}
	})
}

func TestFileStoreRefresh(t *testing.T) {
	t.Run("no refresh token fails", func(t *testing.T) {
		s := testStore(t)
		_, err := s.Refresh(context.Background(), &oauth2.Token{AccessToken: "only"})
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("nil token without cache fails", func(t *testing.T) {
		s := testStore(t)
		if _, err := s.Refresh(context.Background(), nil); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}

func TestTokenSource(t *testing.T) {
	s := testStore(t)
	seedToken(t, s, validToken())

	ts := TokenSource(context.Background(), s)
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.AccessToken != "access" {
		t.Errorf("expected cached token, got %q", tok.AccessToken)
	}
}

func TestCachedRejectsEmptyCredential(t *testing.T) {
	s := testStore(t)

	data, _ := json.Marshal(&oauth2.Token{})
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Cached(); err == nil {
		t.Error("expected an error for an empty credential")
	}
}
