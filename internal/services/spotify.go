// Spotify implementation of [Source]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps playlist-item pages at 100.
	spotifyPageLimit = 100

	// spotifyCallTimeout bounds a single API request so a hung connection
	// cannot stall the run.
	spotifyCallTimeout = 30 * time.Second
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
}

// SpotifyPlaylistItem represents a track within a playlist context.
type SpotifyPlaylistItem struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPlaylistItemsPage represents one paginated response of playlist items.
type SpotifyPlaylistItemsPage struct {
	Items  []SpotifyPlaylistItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Next   *string               `json:"next"`
}

// SpotifyPlaylist represents the playlist metadata needed for a sync run.
type SpotifyPlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyService implements [Source] against the Spotify Web API.
//
// Uses the app-only client-credentials grant: reading a public playlist
// requires no user consent.
type SpotifyService struct {
	baseURL     string
	httpClient  *http.Client
	tokens      oauth2.TokenSource
	backoff     shared.BackoffPolicy
	callTimeout time.Duration
}

// NewSpotifyService creates a Spotify source with the given app credentials.
// A non-positive callTimeout falls back to the default per-request bound.
func NewSpotifyService(clientID, clientSecret string, backoff shared.BackoffPolicy, callTimeout time.Duration) (*SpotifyService, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_id and client_secret", shared.ErrMissingCredentials)
	}

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
	}

	return &SpotifyService{
		baseURL:     spotifyBaseURL,
		httpClient:  http.DefaultClient,
		tokens:      cc.TokenSource(context.Background()),
		backoff:     backoff,
		callTimeout: callTimeout,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

var playlistIDPattern = regexp.MustCompile(`(?:spotify:playlist:|playlist/)?([A-Za-z0-9]{22})`)

// ParsePlaylistRef extracts a playlist ID from a share URL, a
// spotify:playlist: URI, or a bare ID.
func ParsePlaylistRef(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty playlist reference", shared.ErrInvalidArgument)
	}

	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		for i, part := range parts {
			if part == "playlist" && i+1 < len(parts) {
				return parts[i+1], nil
			}
		}
	}

	if m := playlistIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}

	return "", fmt.Errorf("%w: could not extract playlist ID from %q", shared.ErrInvalidArgument, raw)
}

// doRequest performs an authenticated GET against the Spotify API and decodes
// the JSON response into result. Each request carries its own deadline.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	timeout := s.callTimeout
	if timeout <= 0 {
		timeout = spotifyCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tok, err := s.tokens.Token()
	if err != nil {
		return fmt.Errorf("%w: spotify token: %v", shared.ErrAuthFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: spotify: %v", shared.ErrTimeout, err)
		}
		return fmt.Errorf("%w: spotify: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if err := classifySpotifyStatus(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func classifySpotifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: spotify API status %d", shared.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: spotify API status %d", shared.ErrSourceNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &shared.RateLimitError{Service: "spotify", RetryAfter: parseRetryAfter(resp)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: spotify API status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: spotify API status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// PlaylistTitle returns the playlist's display name.
func (s *SpotifyService) PlaylistTitle(ctx context.Context, ref string) (string, error) {
	id, err := ParsePlaylistRef(ref)
	if err != nil {
		return "", err
	}

	var playlist SpotifyPlaylist
	endpoint := fmt.Sprintf("/playlists/%s?fields=id,name", id)
	err = s.backoff.Retry(ctx, func(ctx context.Context) error {
		return s.doRequest(ctx, endpoint, &playlist)
	})
	if err != nil {
		return "", err
	}

	return playlist.Name, nil
}

// Tracks returns a lazy pager over the playlist's tracks in service order.
func (s *SpotifyService) Tracks(ctx context.Context, ref string) (TrackPager, error) {
	id, err := ParsePlaylistRef(ref)
	if err != nil {
		return nil, err
	}
	return &spotifyPager{svc: s, playlistID: id}, nil
}

// spotifyPager pages through /playlists/{id}/tracks, assigning positions in
// fetch order. Each page fetch is retried with the service backoff policy.
type spotifyPager struct {
	svc        *SpotifyService
	playlistID string
	offset     int
	position   int
	done       bool
}

func (p *spotifyPager) Next(ctx context.Context) ([]models.SourceTrack, bool, error) {
	if p.done {
		return nil, false, nil
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d&additional_types=track",
		p.playlistID, spotifyPageLimit, p.offset)

	var page SpotifyPlaylistItemsPage
	err := p.svc.backoff.Retry(ctx, func(ctx context.Context) error {
		page = SpotifyPlaylistItemsPage{}
		return p.svc.doRequest(ctx, endpoint, &page)
	})
	if err != nil {
		return nil, false, err
	}

	tracks := make([]models.SourceTrack, 0, len(page.Items))
	for _, item := range page.Items {
		t := item.Track
		// local files have no catalog identity to match against
		if t.IsLocal || t.ID == "" || t.Name == "" {
			continue
		}

		artists := make([]string, 0, len(t.Artists))
		for _, a := range t.Artists {
			if a.Name != "" {
				artists = append(artists, a.Name)
			}
		}

		tracks = append(tracks, models.SourceTrack{
			Position: p.position,
			Title:    t.Name,
			Artists:  artists,
			Duration: time.Duration(t.DurationMS) * time.Millisecond,
			SourceID: t.ID,
		})
		p.position++
	}

	p.offset += spotifyPageLimit
	if page.Next == nil || len(page.Items) == 0 {
		p.done = true
	}

	return tracks, !p.done, nil
}
