package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DisplayPage is one immutable page of the queue view. Totals describe the
// whole snapshot the page was built from.
type DisplayPage struct {
	Index         int
	Count         int
	Lines         []string
	TotalTracks   int
	TotalDuration time.Duration
}

// Body returns the page rows as one block of text.
func (p DisplayPage) Body() string {
	return strings.Join(p.Lines, "")
}

// BuildPages packs one line per entry into pages whose body stays within
// budget characters. An empty snapshot yields no pages.
func BuildPages(entries []QueueEntry, budget int) []DisplayPage {
	if len(entries) == 0 {
		return nil
	}
	if budget <= 0 {
		budget = DefaultPageCharBudget
	}

	var total time.Duration
	for _, entry := range entries {
		total += entry.Track.Duration
	}

	var (
		pages []DisplayPage
		lines []string
		used  int
	)
	seal := func() {
		pages = append(pages, DisplayPage{
			Lines:         lines,
			TotalTracks:   len(entries),
			TotalDuration: total,
		})
		lines = nil
		used = 0
	}

	for i, entry := range entries {
		line := truncateRunes(FormatQueueLine(i+1, entry.Track), budget)
		size := utf8.RuneCountInString(line)
		if used+size > budget && len(lines) > 0 {
			seal()
		}
		lines = append(lines, line)
		used += size
	}
	seal()

	for i := range pages {
		pages[i].Index = i
		pages[i].Count = len(pages)
	}
	return pages
}

// FormatQueueLine renders one queue row.
func FormatQueueLine(position int, track Track) string {
	return fmt.Sprintf("`%d -` [%s](%s)|`%s (%s)`\n",
		position, track.Title, track.DisplayURL, FormatDuration(track.Duration), track.Author)
}

// FormatDuration renders d as H:MM:SS. Hours are not wrapped, so long queue
// totals stay exact.
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds%60)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "\n"
}
