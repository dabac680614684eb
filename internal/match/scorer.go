package match

import (
	"strings"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
)

// officialChannelBonus nudges auto-generated "Topic" and official artist
// channels ahead of same-title uploads from unrelated accounts.
const officialChannelBonus = 0.05

// Config holds the scoring weights and acceptance threshold.
type Config struct {
	TitleWeight       float64
	DurationWeight    float64
	Threshold         float64
	DurationTolerance time.Duration
}

// DefaultConfig returns the stock scoring parameters.
func DefaultConfig() Config {
	return Config{
		TitleWeight:       0.6,
		DurationWeight:    0.4,
		Threshold:         0.55,
		DurationTolerance: 10 * time.Second,
	}
}

// Scorer ranks candidate videos against a source track.
type Scorer struct {
	cfg Config
}

// NewScorer validates and normalizes the config. Weights are rescaled to sum
// to one; zero or negative weights fall back to the defaults.
func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.TitleWeight <= 0 && cfg.DurationWeight <= 0 {
		cfg.TitleWeight, cfg.DurationWeight = def.TitleWeight, def.DurationWeight
	}
	if sum := cfg.TitleWeight + cfg.DurationWeight; sum != 1.0 && sum > 0 {
		cfg.TitleWeight /= sum
		cfg.DurationWeight /= sum
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.DurationTolerance <= 0 {
		cfg.DurationTolerance = def.DurationTolerance
	}
	return &Scorer{cfg: cfg}
}

// Score computes the weighted similarity of a candidate to a track in [0, 1].
func (s *Scorer) Score(track models.SourceTrack, cand models.Candidate) float64 {
	text := s.textSimilarity(track, cand)
	return s.cfg.TitleWeight*text + s.cfg.DurationWeight*s.durationProximity(track.Duration, cand.Duration)
}

// textSimilarity compares the track query against the candidate title alone
// and against channel plus title, keeping the closer reading. Artist-channel
// uploads often carry the artist only in the channel name, never the title.
func (s *Scorer) textSimilarity(track models.SourceTrack, cand models.Candidate) float64 {
	want := Normalize(track.Query())
	text := Similarity(want, Normalize(cand.Title))
	if cand.Channel == "" {
		return text
	}

	if combined := Similarity(want, Normalize(cand.Channel+" "+cand.Title)); combined > text {
		text = combined
	}

	ch := strings.ToLower(cand.Channel)
	if strings.Contains(ch, "topic") || strings.Contains(ch, "official") {
		text += officialChannelBonus
		if text > 1.0 {
			text = 1.0
		}
	}

	return text
}

// durationProximity maps the absolute duration difference into [0, 1].
// Inside the tolerance the score decays gently from 1.0 to 0.8 at the
// boundary; outside it falls off toward zero.
func (s *Scorer) durationProximity(want, got time.Duration) float64 {
	if want <= 0 || got <= 0 {
		return 0.5
	}

	diff := want - got
	if diff < 0 {
		diff = -diff
	}

	tol := s.cfg.DurationTolerance
	if diff <= tol {
		return 1.0 - 0.2*float64(diff)/float64(tol)
	}
	return 0.4 * float64(tol) / float64(diff)
}

// Select scores every candidate and returns the resolution for the track.
// Ties break toward the earlier candidate, preserving the search engine's
// relevance ordering. A best score below the threshold leaves the track
// unresolved.
func (s *Scorer) Select(track models.SourceTrack, cands []models.Candidate) models.ResolvedEntry {
	entry := models.ResolvedEntry{Track: track, Status: models.Unresolved}
	if len(cands) == 0 {
		return entry
	}

	best := 0
	bestScore := s.Score(track, cands[0])
	for i := 1; i < len(cands); i++ {
		if score := s.Score(track, cands[i]); score > bestScore {
			best, bestScore = i, score
		}
	}

	entry.Score = bestScore
	if bestScore >= s.cfg.Threshold {
		entry.VideoID = cands[best].VideoID
		entry.Status = models.Matched
	}
	return entry
}

// Similarity is a Levenshtein-based ratio in [0, 1]. Two empty strings are
// identical; one empty string matches nothing.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	// rune counts, not byte lengths, so multibyte titles don't deflate the
	// distance-to-length ratio
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// single-row dynamic programming distance
func levenshtein(ra, rb []rune) int {
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur := prev[0]
		prev[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			next := min(prev[j]+1, prev[j-1]+1, cur+cost)
			cur = prev[j]
			prev[j] = next
		}
	}

	return prev[len(rb)]
}
