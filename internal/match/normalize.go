// package match normalizes track and video titles and scores candidate
// videos against source tracks.
package match

import (
	"regexp"
	"strings"
)

// noiseTokens are dropped from normalized titles before comparison. They mark
// packaging variants of the same recording, not different recordings.
var noiseTokens = map[string]struct{}{
	"official":   {},
	"video":      {},
	"audio":      {},
	"lyric":      {},
	"lyrics":     {},
	"music":      {},
	"hd":         {},
	"hq":         {},
	"4k":         {},
	"mv":         {},
	"visualizer": {},
	"remastered": {},
	"remaster":   {},
	"explicit":   {},
	"clean":      {},
	"full":       {},
	"version":    {},
}

var (
	bracketedPattern = regexp.MustCompile(`[\(\[\{][^\)\]\}]*[\)\]\}]`)
	separatorPattern = regexp.MustCompile(`[\s\-_|/:,.!?"'` + "`" + `]+`)
	featuringPattern = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|featuring)\s+.*$`)
)

// Normalize lowercases the title, strips bracketed segments and punctuation,
// and drops noise tokens.
func Normalize(title string) string {
	s := strings.ToLower(title)
	s = bracketedPattern.ReplaceAllString(s, " ")

	var kept []string
	for _, tok := range separatorPattern.Split(s, -1) {
		if tok == "" {
			continue
		}
		if _, noisy := noiseTokens[tok]; noisy {
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}

// StripFeaturing removes a trailing "feat./ft./featuring ..." clause. Used to
// build a fallback search query when the full query finds nothing.
func StripFeaturing(s string) string {
	return strings.TrimSpace(featuringPattern.ReplaceAllString(s, ""))
}
