package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubesync/internal/auth"
	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

const (
	defaultSearchResults = 5

	// YouTube category 10 is Music.
	musicCategoryID = "10"
)

// YouTubeService implements [Destination] using the YouTube Data API v3.
type YouTubeService struct {
	yt         *ytapi.Service
	tokens     auth.Store
	maxResults int64
	logger     *log.Logger
}

// YouTubeOpts configures a [YouTubeService].
type YouTubeOpts struct {
	Tokens     auth.Store // consulted by every call; nil only in tests
	MaxResults int        // top-N candidates per search
	Logger     *log.Logger

	// Extra client options, e.g. option.WithEndpoint for tests.
	ClientOptions []option.ClientOption
}

// NewYouTubeService builds the API client. When a token store is provided,
// every request draws its credential from the store.
func NewYouTubeService(ctx context.Context, opts YouTubeOpts) (*YouTubeService, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultSearchResults
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	clientOpts := opts.ClientOptions
	if opts.Tokens != nil {
		clientOpts = append(clientOpts, option.WithTokenSource(auth.TokenSource(ctx, opts.Tokens)))
	}

	yt, err := ytapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}

	return &YouTubeService{
		yt:         yt,
		tokens:     opts.Tokens,
		maxResults: int64(opts.MaxResults),
		logger:     opts.Logger,
	}, nil
}

func (y *YouTubeService) Name() string {
	return "YouTube"
}

// Search returns up to maxResults candidates for the query in the API's own
// relevance order. An empty slice is a valid no-candidates result.
//
// An auth failure triggers one forced token refresh and retry before
// surfacing.
func (y *YouTubeService) Search(ctx context.Context, query string) ([]models.Candidate, error) {
	cands, err := y.search(ctx, query)
	if err != nil && errors.Is(err, shared.ErrAuthFailed) && y.tokens != nil {
		y.logger.Warn("search rejected credential, forcing refresh", "error", err)
		if _, refreshErr := y.tokens.Refresh(ctx, nil); refreshErr != nil {
			return nil, refreshErr
		}
		cands, err = y.search(ctx, query)
	}
	return cands, err
}

func (y *YouTubeService) search(ctx context.Context, query string) ([]models.Candidate, error) {
	resp, err := y.yt.Search.List([]string{"snippet"}).
		Q(query).
		MaxResults(y.maxResults).
		Type("video").
		VideoCategoryId(musicCategoryID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleError("search", err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.Kind == "youtube#video" && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	details, err := y.yt.Videos.List([]string{"contentDetails", "snippet"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleError("videos", err)
	}

	durations := make(map[string]time.Duration, len(details.Items))
	channels := make(map[string]string, len(details.Items))
	for _, v := range details.Items {
		if v.ContentDetails != nil {
			durations[v.Id] = parseISODuration(v.ContentDetails.Duration)
		}
		if v.Snippet != nil {
			channels[v.Id] = v.Snippet.ChannelTitle
		}
	}

	// preserve the search response's relevance ordering
	cands := make([]models.Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.Kind != "youtube#video" || item.Id.VideoId == "" {
			continue
		}

		cand := models.Candidate{
			VideoID:  item.Id.VideoId,
			Duration: durations[item.Id.VideoId],
			Channel:  channels[item.Id.VideoId],
		}
		if item.Snippet != nil {
			cand.Title = html.UnescapeString(item.Snippet.Title)
			if cand.Channel == "" {
				cand.Channel = item.Snippet.ChannelTitle
			}
		}
		cands = append(cands, cand)
	}

	return cands, nil
}

// EnsurePlaylist finds an owned playlist whose title matches exactly
// (case-sensitive) or creates a new private one, then loads its current item
// IDs as the idempotency boundary.
func (y *YouTubeService) EnsurePlaylist(ctx context.Context, title string) (*models.DestinationPlaylist, error) {
	pageToken := ""
	for {
		call := y.yt.Playlists.List([]string{"snippet"}).Mine(true).MaxResults(50).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classifyGoogleError("playlists", err)
		}

		for _, pl := range resp.Items {
			if pl.Snippet != nil && pl.Snippet.Title == title {
				itemIDs, err := y.playlistItemIDs(ctx, pl.Id)
				if err != nil {
					return nil, err
				}
				return models.NewDestinationPlaylist(pl.Id, title, itemIDs), nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	created, err := y.yt.Playlists.Insert([]string{"snippet", "status"}, &ytapi.Playlist{
		Snippet: &ytapi.PlaylistSnippet{Title: title},
		Status:  &ytapi.PlaylistStatus{PrivacyStatus: "private"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError("playlists.insert", err)
	}

	y.logger.Info("created destination playlist", "title", title, "id", created.Id)
	return models.NewDestinationPlaylist(created.Id, title, nil), nil
}

// playlistItemIDs pages through the playlist's items collecting video IDs.
func (y *YouTubeService) playlistItemIDs(ctx context.Context, playlistID string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := y.yt.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(50).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, classifyGoogleError("playlistItems", err)
		}

		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return ids, nil
		}
	}
}

// Insert appends a video to the playlist, retrying once on a transient
// server-side failure.
func (y *YouTubeService) Insert(ctx context.Context, playlistID, videoID string) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		_, err = y.yt.PlaylistItems.Insert([]string{"snippet"}, &ytapi.PlaylistItem{
			Snippet: &ytapi.PlaylistItemSnippet{
				PlaylistId: playlistID,
				ResourceId: &ytapi.ResourceId{
					Kind:    "youtube#video",
					VideoId: videoID,
				},
			},
		}).Context(ctx).Do()
		if err == nil {
			return nil
		}

		err = classifyGoogleError("playlistItems.insert", err)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			break
		}
	}

	return fmt.Errorf("%w: video %s: %w", shared.ErrDestinationWrite, videoID, err)
}

// classifyGoogleError maps googleapi errors onto the shared taxonomy.
func classifyGoogleError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: youtube %s: %v", shared.ErrTimeout, op, err)
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: youtube %s: %v", shared.ErrAPIRequest, op, err)
	}

	switch {
	case gerr.Code == 401:
		return fmt.Errorf("%w: %w: youtube %s", shared.ErrAuthFailed, shared.ErrTokenExpired, op)
	case gerr.Code == 429:
		return &shared.RateLimitError{Service: "youtube"}
	case gerr.Code == 403:
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
				return &shared.RateLimitError{Service: "youtube"}
			}
		}
		return fmt.Errorf("%w: youtube %s: %v", shared.ErrAuthFailed, op, gerr)
	case gerr.Code >= 500:
		return fmt.Errorf("%w: youtube %s: status %d", shared.ErrServiceUnavailable, op, gerr.Code)
	default:
		return fmt.Errorf("%w: youtube %s: %v", shared.ErrAPIRequest, op, gerr)
	}
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts an ISO-8601 duration ("PT3M2S") to a
// [time.Duration]. Malformed input yields 0.
func parseISODuration(iso string) time.Duration {
	m := isoDurationPattern.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}

	atoi := func(s string) int {
		if s == "" {
			return 0
		}
		n, _ := strconv.Atoi(s)
		return n
	}

	h, mi, sec := atoi(m[1]), atoi(m[2]), atoi(m[3])
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute + time.Duration(sec)*time.Second
}
