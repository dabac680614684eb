package models

import (
	"testing"
	"time"
)

func TestSourceTrack(t *testing.T) {
	track := SourceTrack{
		Position: 3,
		Title:    "Africa",
		Artists:  []string{"Toto", "Guest"},
		Duration: 295 * time.Second,
		SourceID: "t1",
	}

	t.Run("primary artist is the first listed", func(t *testing.T) {
		if got := track.PrimaryArtist(); got != "Toto" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("no artists yields empty primary", func(t *testing.T) {
		empty := SourceTrack{Title: "Instrumental"}
		if got := empty.PrimaryArtist(); got != "" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("query combines artist and title", func(t *testing.T) {
		if got := track.Query(); got != "Toto - Africa" {
			t.Errorf("got %q", got)
		}
	})
}

func TestResolvedEntry(t *testing.T) {
	entry := ResolvedEntry{VideoID: "abc123", Status: Matched}
	if got := entry.Locator(); got != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("got %q", got)
	}

	t.Run("status strings", func(t *testing.T) {
		if Unresolved.String() != "unresolved" || Matched.String() != "matched" {
			t.Errorf("unexpected status strings %q/%q", Unresolved, Matched)
		}
	})
}

func TestDestinationPlaylist(t *testing.T) {
	pl := NewDestinationPlaylist("PL1", "Mix", []string{"v1", "v2"})

	if pl.Size() != 2 {
		t.Errorf("expected size 2, got %d", pl.Size())
	}
	if !pl.Contains("v1") || pl.Contains("v3") {
		t.Error("membership check failed")
	}

	pl.Add("v3")
	if !pl.Contains("v3") || pl.Size() != 3 {
		t.Error("add failed")
	}

	t.Run("add is idempotent", func(t *testing.T) {
		pl.Add("v3")
		if pl.Size() != 3 {
			t.Errorf("duplicate add changed size to %d", pl.Size())
		}
	})

	t.Run("url", func(t *testing.T) {
		if got := pl.URL(); got != "https://www.youtube.com/playlist?list=PL1" {
			t.Errorf("got %q", got)
		}
	})
}
