// Package tasks orchestrates playlist synchronization from source to
// destination with real-time progress reporting.
//
// # Core Operation
//
// [Engine.Run] performs a full sync:
//   - Pages through the source playlist's tracks
//   - Resolves each track to a destination video via concurrent,
//     rate-limited search and fuzzy scoring
//   - Ensures the destination playlist exists and appends missing videos
//     in source order, skipping those already present
//
// Per-track search and insert failures are counted in the result summary and
// never abort the run.
//
// # Progress Reporting
//
// Operations emit [ProgressUpdate] values on an optional channel. Sends use
// select with default so a slow consumer never blocks the sync.
//
// # Resolution Caching
//
// The optional [ResolutionCacher] memoizes accepted matches keyed by source
// track ID, letting repeated runs skip the search round-trip. Cache failures
// are logged and ignored.
//
// [WriteLocators] exports matched video URLs to a plain text file, one per
// line, written atomically.
package tasks
