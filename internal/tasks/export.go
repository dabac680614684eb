package tasks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/tubesync/internal/models"
)

// WriteLocators writes one destination URL per matched entry, in source
// order, to path. The file is written atomically via a temp file in the same
// directory. Returns the number of locators written.
func WriteLocators(entries []models.ResolvedEntry, path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".locators-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	count := 0
	for _, entry := range entries {
		if entry.Status != models.Matched {
			continue
		}
		if _, err := fmt.Fprintln(tmp, entry.Locator()); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("failed to write locator: %w", err)
		}
		count++
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to flush locators: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	return count, nil
}
