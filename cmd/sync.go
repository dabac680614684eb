package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tubesync/internal/auth"
	"github.com/desertthunder/tubesync/internal/match"
	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
	"github.com/desertthunder/tubesync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun runs a full Spotify → YouTube playlist sync.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	sourceRef := cmd.String("source")
	destTitle := cmd.String("title")
	outputPath := cmd.String("output")
	dryRun := cmd.Bool("dry-run")

	spotify, err := services.NewSpotifyService(
		r.config.Credentials.Spotify.ClientID,
		r.config.Credentials.Spotify.ClientSecret,
		r.config.Backoff.Policy(),
		r.config.Backoff.CallTimeout(),
	)
	if err != nil {
		return err
	}

	store := r.tokenStore()
	youtube, err := services.NewYouTubeService(ctx, services.YouTubeOpts{
		Tokens:     store,
		MaxResults: r.config.Search.MaxResults,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}

	var cache tasks.ResolutionCacher
	if r.config.Cache.Enabled {
		db, err := shared.NewDatabase(r.config.Cache.Path)
		if err != nil {
			r.logger.Warn("resolution cache unavailable", "error", err)
		} else {
			defer db.Close()
			if cache, err = repositories.NewResolutionCache(db); err != nil {
				r.logger.Warn("resolution cache unavailable", "error", err)
				cache = nil
			}
		}
	}

	engine := tasks.NewEngine(tasks.EngineOpts{
		Source:      spotify,
		Destination: youtube,
		Scorer: match.NewScorer(match.Config{
			TitleWeight:       r.config.Match.TitleWeight,
			DurationWeight:    r.config.Match.DurationWeight,
			Threshold:         r.config.Match.Threshold,
			DurationTolerance: r.config.Match.DurationTolerance(),
		}),
		Cache:       cache,
		Logger:      r.logger,
		Workers:     r.config.Search.Workers,
		RatePerSec:  r.config.Search.RatePerSec,
		CallTimeout: r.config.Backoff.CallTimeout(),
		Backoff:     r.config.Backoff.Policy(),
		DryRun:      dryRun,
	})

	r.logger.Info("starting sync", "source", sourceRef, "dry_run", dryRun)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource:
				r.writePlain("%s\n", update.Message)
			case tasks.SearchTracks:
				r.writePlain("  %s\n", update.Message)
			case tasks.EnsurePlaylist:
				r.writePlain("\n%s\n", update.Message)
			case tasks.InsertTracks:
				r.writePlain("  %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, sourceRef, destTitle, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	count, err := tasks.WriteLocators(result.Entries, outputPath)
	if err != nil {
		return fmt.Errorf("failed to export locators: %w", err)
	}
	r.writePlain("\nWrote %d locators to %s\n", count, outputPath)

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			PlaylistID string             `json:"playlist_id,omitempty"`
			Title      string             `json:"title"`
			Summary    models.SyncSummary `json:"summary"`
			Output     string             `json:"output"`
		}{result.PlaylistID, result.Title, result.Summary, outputPath}, true)
	}

	return r.writeSummary(result, dryRun)
}

func (r *Runner) writeSummary(result *tasks.SyncResult, dryRun bool) error {
	s := result.Summary
	r.writePlain("\n═══════════════════════════════════════\n")
	if dryRun {
		r.writePlain("Dry Run Complete\n")
	} else {
		r.writePlain("Sync Complete\n")
	}
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("Source: %s (%d tracks)\n", result.Title, s.Total)
	r.writePlain("Matched: %d/%d\n", s.Matched, s.Total)
	if !dryRun {
		r.writePlain("Inserted: %d  Skipped: %d  Failed: %d\n", s.Inserted, s.Skipped, s.InsertFailures)
	}

	if s.Unresolved > 0 {
		r.writePlain("\nUnresolved tracks (%d):\n", s.Unresolved)
		for _, entry := range result.Entries {
			if entry.Status != models.Matched {
				r.writePlain("  - %s\n", entry.Track.Query())
			}
		}
	}

	if !dryRun && result.PlaylistID != "" {
		r.writePlain("\nPlaylist: https://www.youtube.com/playlist?list=%s\n", result.PlaylistID)
	}

	return nil
}

// tokenStore builds the file-backed YouTube token store from config.
func (r *Runner) tokenStore() *auth.FileStore {
	yt := r.config.Credentials.YouTube
	return auth.NewFileStore(auth.FileStoreOpts{
		Config:     auth.GoogleConfig(yt.ClientID, yt.ClientSecret, r.config.Server.RedirectURL()),
		Path:       yt.TokenPath,
		ServerAddr: r.config.Server.Addr(),
		Logger:     r.logger,
	})
}
