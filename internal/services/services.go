// package services defines interfaces for the two catalog services and their
// HTTP implementations: Spotify as the source, YouTube as the destination.
package services

import (
	"context"

	"github.com/desertthunder/tubesync/internal/models"
)

// Source extracts an ordered track listing from the source service.
type Source interface {
	// Tracks resolves a playlist reference (URL, URI, or bare ID) and returns
	// a lazy pager over its tracks in service order.
	Tracks(ctx context.Context, ref string) (TrackPager, error)

	// PlaylistTitle returns the source playlist's display title.
	PlaylistTitle(ctx context.Context, ref string) (string, error)

	// Name returns the service name (e.g., "Spotify")
	Name() string
}

// TrackPager is a finite, lazy sequence of track pages. Call
// Next until more is false; positions are assigned in fetch order from 0.
type TrackPager interface {
	Next(ctx context.Context) (tracks []models.SourceTrack, more bool, err error)
}

// Destination searches and mutates the destination service.
type Destination interface {
	// Search returns up to the configured top-N candidates for the query, in
	// the service's own relevance order. An empty result is not an error.
	Search(ctx context.Context, query string) ([]models.Candidate, error)

	// EnsurePlaylist finds an owned playlist with an exact title match or
	// creates one, returning it seeded with its current item IDs.
	EnsurePlaylist(ctx context.Context, title string) (*models.DestinationPlaylist, error)

	// Insert appends a video to the playlist.
	Insert(ctx context.Context, playlistID, videoID string) error

	// Name returns the service name (e.g., "YouTube")
	Name() string
}
