package openai

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateTitleKeepsShortTitles(t *testing.T) {
	title := "Vacation Planning"
	if got := truncateTitle(title); got != title {
		t.Fatalf("short title: want=%q got=%q", title, got)
	}
}

func TestTruncateTitleCountsRunesNotBytes(t *testing.T) {
	// Three bytes per rune: byte-based slicing at 80 would cut mid-rune.
	title := strings.Repeat("日", maxTitleLen+10)
	got := truncateTitle(title)
	if n := utf8.RuneCountInString(got); n != maxTitleLen {
		t.Fatalf("rune count: want=%d got=%d", maxTitleLen, n)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated title is not valid UTF-8: %q", got)
	}
}
