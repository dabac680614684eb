package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tubesync/internal/match"
	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
	"golang.org/x/time/rate"
)

// ResolutionCacher persists accepted matches across runs. Implementations
// must treat Get misses as (nil, nil).
type ResolutionCacher interface {
	Get(sourceID string) (*models.CachedMatch, error)
	Put(sourceID, videoID string, score float64) error
}

// SyncResult contains all data from a full sync operation.
type SyncResult struct {
	PlaylistID string                 // Destination playlist ID (empty in dry runs)
	Title      string                 // Source playlist title
	Entries    []models.ResolvedEntry // Per-track resolutions in source order
	Summary    models.SyncSummary     // Aggregate counts
}

// EngineOpts configures an [Engine].
type EngineOpts struct {
	Source      services.Source
	Destination services.Destination
	Scorer      *match.Scorer
	Cache       ResolutionCacher // optional
	Logger      *log.Logger
	Workers     int           // concurrent search workers
	RatePerSec  float64       // search rate limit across workers
	CallTimeout time.Duration // per-API-call deadline
	Backoff     shared.BackoffPolicy
	DryRun      bool // resolve only, no destination writes
}

// Engine orchestrates a full source-to-destination playlist sync.
type Engine struct {
	source      services.Source
	dest        services.Destination
	scorer      *match.Scorer
	cache       ResolutionCacher
	logger      *log.Logger
	workers     int
	limiter     *rate.Limiter
	callTimeout time.Duration
	backoff     shared.BackoffPolicy
	dryRun      bool
}

// NewEngine applies defaults for unset options.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Scorer == nil {
		opts.Scorer = match.NewScorer(match.DefaultConfig())
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5.0
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = shared.DefaultBackoff()
	}

	return &Engine{
		source:      opts.Source,
		dest:        opts.Destination,
		scorer:      opts.Scorer,
		cache:       opts.Cache,
		logger:      opts.Logger,
		workers:     opts.Workers,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		callTimeout: opts.CallTimeout,
		backoff:     opts.Backoff,
		dryRun:      opts.DryRun,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run performs a full sync: page through the source playlist, resolve each
// track to a destination video, then append missing videos to the destination
// playlist in source order. Per-track failures are recorded and do not abort
// the run.
//
// destTitle overrides the destination playlist name; empty means reuse the
// source playlist's title.
func (e *Engine) Run(ctx context.Context, sourceRef, destTitle string, progress chan<- ProgressUpdate) (*SyncResult, error) {
	title, err := e.source.PlaylistTitle(ctx, sourceRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source playlist: %w", err)
	}
	if destTitle == "" {
		destTitle = title
	}
	e.sendProgress(progress, fetchSourceUpdate(1, 1, title))

	pager, err := e.source.Tracks(ctx, sourceRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source tracks: %w", err)
	}

	var entries []models.ResolvedEntry
	for {
		tracks, more, err := pager.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to page source tracks: %w", err)
		}

		resolved := e.resolvePage(ctx, tracks, len(entries), progress)
		entries = append(entries, resolved...)

		if !more {
			break
		}
	}

	result := &SyncResult{Title: title, Entries: entries}
	result.Summary.Total = len(entries)
	for _, entry := range entries {
		if entry.Status == models.Matched {
			result.Summary.Matched++
		} else {
			result.Summary.Unresolved++
		}
	}

	if e.dryRun {
		e.logger.Info("dry run, skipping destination writes",
			"matched", result.Summary.Matched, "unresolved", result.Summary.Unresolved)
		return result, nil
	}

	e.sendProgress(progress, ensurePlaylistUpdate(destTitle))
	playlist, err := e.ensurePlaylistWithRetry(ctx, destTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure destination playlist: %w", err)
	}
	result.PlaylistID = playlist.ID
	e.sendProgress(progress, playlistReadyUpdate(playlist))

	// Insertion is serial and ordered so the destination playlist preserves
	// the source ordering for newly appended tracks.
	for i := range entries {
		entry := &entries[i]
		if entry.Status != models.Matched {
			continue
		}

		e.sendProgress(progress, insertTracksUpdate(i+1, len(entries), entry))
		if playlist.Contains(entry.VideoID) {
			result.Summary.Skipped++
			continue
		}

		if err := e.insertWithRetry(ctx, playlist.ID, entry.VideoID); err != nil {
			e.logger.Warn("failed to insert track",
				"track", entry.Track.Query(), "video", entry.VideoID, "error", err)
			result.Summary.InsertFailures++
			continue
		}

		playlist.Add(entry.VideoID)
		result.Summary.Inserted++
	}

	return result, nil
}

// resolvePage resolves one page of tracks concurrently, returning entries in
// the same order as the input.
func (e *Engine) resolvePage(ctx context.Context, tracks []models.SourceTrack, offset int, progress chan<- ProgressUpdate) []models.ResolvedEntry {
	results := make([]models.ResolvedEntry, len(tracks))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				e.sendProgress(progress, searchTracksUpdate(offset+i+1, 0, &tracks[i]))
				results[i] = e.resolve(ctx, tracks[i])
			}
		}()
	}

	for i := range tracks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// resolve finds the best destination video for one track. Search failures
// leave the track unresolved rather than failing the run.
func (e *Engine) resolve(ctx context.Context, track models.SourceTrack) models.ResolvedEntry {
	if e.cache != nil && track.SourceID != "" {
		if hit, err := e.cache.Get(track.SourceID); err == nil && hit != nil {
			return models.ResolvedEntry{
				Track:   track,
				VideoID: hit.VideoID,
				Score:   hit.Score,
				Status:  models.Matched,
			}
		}
	}

	query := track.Query()
	entry := e.searchAndSelect(ctx, track, query)

	if entry.Status != models.Matched {
		if fallback := match.StripFeaturing(query); fallback != query {
			if retry := e.searchAndSelect(ctx, track, fallback); retry.Status == models.Matched {
				entry = retry
			}
		}
	}

	if entry.Status == models.Matched && e.cache != nil && track.SourceID != "" {
		// Cache writes are best effort
		if err := e.cache.Put(track.SourceID, entry.VideoID, entry.Score); err != nil {
			e.logger.Debug("failed to cache resolution", "track", track.SourceID, "error", err)
		}
	}

	return entry
}

func (e *Engine) searchAndSelect(ctx context.Context, track models.SourceTrack, query string) models.ResolvedEntry {
	var cands []models.Candidate
	err := e.backoff.Retry(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		var searchErr error
		cands, searchErr = e.dest.Search(callCtx, query)
		return searchErr
	})
	if err != nil {
		e.logger.Warn("search failed", "query", query, "error", err)
		return models.ResolvedEntry{Track: track, Status: models.Unresolved}
	}

	return e.scorer.Select(track, cands)
}

// ensurePlaylistWithRetry applies the same per-call timeout and backoff
// discipline as search and insert.
func (e *Engine) ensurePlaylistWithRetry(ctx context.Context, title string) (*models.DestinationPlaylist, error) {
	var playlist *models.DestinationPlaylist
	err := e.backoff.Retry(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		var ensureErr error
		playlist, ensureErr = e.dest.EnsurePlaylist(callCtx, title)
		return ensureErr
	})
	return playlist, err
}

func (e *Engine) insertWithRetry(ctx context.Context, playlistID, videoID string) error {
	return e.backoff.Retry(ctx, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		return e.dest.Insert(callCtx, playlistID, videoID)
	})
}
