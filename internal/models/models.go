package models

import (
	"fmt"
	"time"
)

// SourceTrack is one entry of the source playlist. Immutable once fetched;
// Position reflects the source service's ordering, starting at 0.
type SourceTrack struct {
	Position int
	Title    string
	Artists  []string
	Duration time.Duration
	SourceID string
}

// PrimaryArtist returns the first credited artist, or "" for none.
func (t SourceTrack) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// Query composes the default destination search query.
func (t SourceTrack) Query() string {
	if artist := t.PrimaryArtist(); artist != "" {
		return fmt.Sprintf("%s - %s", artist, t.Title)
	}
	return t.Title
}

// Candidate is a single destination search result considered as a possible
// match. Ephemeral, produced per search call.
type Candidate struct {
	VideoID  string
	Title    string
	Channel  string
	Duration time.Duration
}

// MatchStatus is the outcome classification of resolving one track.
type MatchStatus int

const (
	Unresolved MatchStatus = iota
	Matched
)

func (s MatchStatus) String() string {
	switch s {
	case Matched:
		return "matched"
	case Unresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// ResolvedEntry records the outcome of matching one source track. Created
// once per track per run and never mutated afterwards.
type ResolvedEntry struct {
	Track   SourceTrack
	VideoID string // empty when Unresolved
	Score   float64
	Status  MatchStatus
}

// Locator returns the canonical watch URL for the matched item, or "" when
// the entry is unresolved.
func (e ResolvedEntry) Locator() string {
	if e.Status != Matched || e.VideoID == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + e.VideoID
}

// DestinationPlaylist is the mutable in-run view of the playlist being built.
// The item set is the idempotency boundary: an ID present here is never
// inserted again within the same run.
type DestinationPlaylist struct {
	ID    string
	Title string

	items map[string]struct{}
}

// NewDestinationPlaylist builds a playlist view seeded with its current item IDs.
func NewDestinationPlaylist(id, title string, itemIDs []string) *DestinationPlaylist {
	items := make(map[string]struct{}, len(itemIDs))
	for _, itemID := range itemIDs {
		items[itemID] = struct{}{}
	}
	return &DestinationPlaylist{ID: id, Title: title, items: items}
}

// Contains reports whether the playlist already holds the given video ID.
func (p *DestinationPlaylist) Contains(videoID string) bool {
	_, ok := p.items[videoID]
	return ok
}

// Add records a video ID as present after a successful insert.
func (p *DestinationPlaylist) Add(videoID string) {
	if p.items == nil {
		p.items = make(map[string]struct{})
	}
	p.items[videoID] = struct{}{}
}

// Size returns the number of known item IDs.
func (p *DestinationPlaylist) Size() int {
	return len(p.items)
}

// URL returns the destination playlist's public address.
func (p *DestinationPlaylist) URL() string {
	return "https://www.youtube.com/playlist?list=" + p.ID
}

// CachedMatch is a previously accepted source-to-video resolution.
type CachedMatch struct {
	VideoID string
	Score   float64
}

// SyncSummary holds the operator-facing counts reported at run completion.
type SyncSummary struct {
	Total          int
	Matched        int
	Unresolved     int
	InsertFailures int
	Inserted       int
	Skipped        int // already present in the destination playlist
}
