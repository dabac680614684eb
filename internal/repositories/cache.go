// package repositories provides the optional sqlite-backed resolution cache.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

const resolutionSchema = `CREATE TABLE IF NOT EXISTS resolutions (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL UNIQUE,
	video_id TEXT NOT NULL,
	score REAL NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// ResolutionCache memoizes accepted matches keyed by source track ID so that
// repeated runs skip the search round-trip for already-resolved tracks.
type ResolutionCache struct {
	db *sql.DB
}

// NewResolutionCache creates the table if needed.
func NewResolutionCache(db *sql.DB) (*ResolutionCache, error) {
	if _, err := db.Exec(resolutionSchema); err != nil {
		return nil, fmt.Errorf("failed to create resolutions table: %w", err)
	}
	return &ResolutionCache{db: db}, nil
}

// Get returns the cached match for a source track, or nil on a miss.
func (c *ResolutionCache) Get(sourceID string) (*models.CachedMatch, error) {
	row := c.db.QueryRow(
		`SELECT video_id, score FROM resolutions WHERE source_id = ?`,
		sourceID,
	)

	var hit models.CachedMatch
	if err := row.Scan(&hit.VideoID, &hit.Score); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read resolution cache: %w", err)
	}
	return &hit, nil
}

// Put stores or replaces the resolution for a source track.
func (c *ResolutionCache) Put(sourceID, videoID string, score float64) error {
	_, err := c.db.Exec(
		`INSERT INTO resolutions (id, source_id, video_id, score) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET video_id = excluded.video_id, score = excluded.score`,
		shared.GenerateID(), sourceID, videoID, score,
	)
	if err != nil {
		return fmt.Errorf("failed to write resolution cache: %w", err)
	}
	return nil
}
