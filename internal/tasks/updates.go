package tasks

import (
	"fmt"

	"github.com/desertthunder/tubesync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	SearchTracks
	EnsurePlaylist
	InsertTracks
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case SearchTracks:
		return "search_tracks"
	case EnsurePlaylist:
		return "ensure_playlist"
	case InsertTracks:
		return "insert_tracks"
	default:
		return ""
	}
}

func fetchSourceUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching source playlist (%s)...", title),
	}
}

func searchTracksUpdate(step, total int, track *models.SourceTrack) ProgressUpdate {
	msg := "Searching for tracks..."
	if track != nil {
		msg = fmt.Sprintf("Searching: %s", track.Query())
	}
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    track,
	}
}

func ensurePlaylistUpdate(title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnsurePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Ensuring destination playlist (%s)...", title),
	}
}

func playlistReadyUpdate(pl *models.DestinationPlaylist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   EnsurePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Playlist ready: %s (ID: %s)", pl.Title, pl.ID),
		Data:    pl,
	}
}

func insertTracksUpdate(step, total int, entry *models.ResolvedEntry) ProgressUpdate {
	msg := "Inserting tracks..."
	if entry != nil {
		msg = fmt.Sprintf("Inserting: %s", entry.Track.Query())
	}
	return ProgressUpdate{
		Phase:   InsertTracks,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    entry,
	}
}
