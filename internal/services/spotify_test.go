package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/tubesync/internal/shared"
	"golang.org/x/oauth2"
)

const testPlaylistID = "37i9dQZF1DXcBWIGoYBM5M"

func testSpotifyService(t *testing.T, handler http.Handler) *SpotifyService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &SpotifyService{
		baseURL:    server.URL,
		httpClient: server.Client(),
		tokens:     oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		backoff:    shared.BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func TestParsePlaylistRef(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"share URL", "https://open.spotify.com/playlist/" + testPlaylistID, testPlaylistID, false},
		{"share URL with query", "https://open.spotify.com/playlist/" + testPlaylistID + "?si=abc123", testPlaylistID, false},
		{"spotify URI", "spotify:playlist:" + testPlaylistID, testPlaylistID, false},
		{"bare ID", testPlaylistID, testPlaylistID, false},
		{"whitespace padded", "  " + testPlaylistID + "  ", testPlaylistID, false},
		{"empty", "", "", true},
		{"garbage", "not-a-playlist", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePlaylistRef(tc.input)
			if tc.wantErr {
				if !errors.Is(err, shared.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSpotifyPlaylistTitle(t *testing.T) {
	t.Run("returns the playlist name", func(t *testing.T) {
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("unexpected auth header %q", got)
			}
			fmt.Fprintf(w, `{"id": %q, "name": "Summer Mix"}`, testPlaylistID)
		}))

		title, err := svc.PlaylistTitle(context.Background(), testPlaylistID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if title != "Summer Mix" {
			t.Errorf("got %q, want Summer Mix", title)
		}
	})

	t.Run("missing playlist maps to ErrSourceNotFound", func(t *testing.T) {
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		if _, err := svc.PlaylistTitle(context.Background(), testPlaylistID); !errors.Is(err, shared.ErrSourceNotFound) {
			t.Errorf("expected ErrSourceNotFound, got %v", err)
		}
	})

	t.Run("hung endpoint times out per call", func(t *testing.T) {
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			fmt.Fprintf(w, `{"id": %q, "name": "Too Late"}`, testPlaylistID)
		}))
		svc.callTimeout = 10 * time.Millisecond
		svc.backoff.MaxAttempts = 2

		if _, err := svc.PlaylistTitle(context.Background(), testPlaylistID); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("rate limit is retried", func(t *testing.T) {
		calls := 0
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			fmt.Fprintf(w, `{"id": %q, "name": "Eventually"}`, testPlaylistID)
		}))
		// shrink Retry-After influence for test runtime
		svc.backoff.MaxDelay = time.Millisecond

		title, err := svc.PlaylistTitle(context.Background(), testPlaylistID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if title != "Eventually" || calls != 2 {
			t.Errorf("got %q after %d calls", title, calls)
		}
	})
}

func TestSpotifyPager(t *testing.T) {
	page := func(next string, items ...string) string {
		itemsJSON := ""
		for i, item := range items {
			if i > 0 {
				itemsJSON += ","
			}
			itemsJSON += item
		}
		nextJSON := "null"
		if next != "" {
			nextJSON = fmt.Sprintf("%q", next)
		}
		return fmt.Sprintf(`{"items": [%s], "total": 3, "limit": 100, "offset": 0, "next": %s}`, itemsJSON, nextJSON)
	}
	item := func(id, name, artist string, durMS int, local bool) string {
		return fmt.Sprintf(
			`{"track": {"id": %q, "name": %q, "artists": [{"id": "a1", "name": %q}], "duration_ms": %d, "is_local": %t}}`,
			id, name, artist, durMS, local,
		)
	}

	t.Run("pages through all tracks", func(t *testing.T) {
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("offset") {
			case "0":
				fmt.Fprint(w, page("https://api.spotify.com/next",
					item("t1", "Africa", "Toto", 295000, false),
					item("t2", "Take On Me", "a-ha", 225000, false),
				))
			default:
				fmt.Fprint(w, page("", item("t3", "Hold the Line", "Toto", 237000, false)))
			}
		}))

		pager, err := svc.Tracks(context.Background(), testPlaylistID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		first, more, err := pager.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(first) != 2 || !more {
			t.Fatalf("expected 2 tracks and more pages, got %d/%t", len(first), more)
		}
		if first[0].Title != "Africa" || first[0].PrimaryArtist() != "Toto" {
			t.Errorf("unexpected first track %+v", first[0])
		}
		if first[0].Duration != 295*time.Second {
			t.Errorf("expected 295s, got %v", first[0].Duration)
		}

		second, more, err := pager.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(second) != 1 || more {
			t.Fatalf("expected final page of 1, got %d/%t", len(second), more)
		}
		if second[0].Position != 2 {
			t.Errorf("positions should be sequential across pages, got %d", second[0].Position)
		}
	})

	t.Run("skips local and malformed tracks", func(t *testing.T) {
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, page("",
				item("t1", "Africa", "Toto", 295000, false),
				item("local1", "My Demo", "Me", 180000, true),
				item("", "Ghost Entry", "Unknown", 0, false),
			))
		}))

		pager, _ := svc.Tracks(context.Background(), testPlaylistID)
		tracks, _, err := pager.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(tracks) != 1 || tracks[0].SourceID != "t1" {
			t.Errorf("expected only t1, got %+v", tracks)
		}
	})

	t.Run("exhausted pager keeps returning empty", func(t *testing.T) {
		svc := testSpotifyService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, page(""))
		}))

		pager, _ := svc.Tracks(context.Background(), testPlaylistID)
		if _, more, _ := pager.Next(context.Background()); more {
			t.Error("expected no more pages")
		}
		if tracks, more, _ := pager.Next(context.Background()); len(tracks) != 0 || more {
			t.Error("exhausted pager should stay empty")
		}
	})
}
