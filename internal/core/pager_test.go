package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"marmobot/internal/chat"
	"marmobot/internal/i18n"
)

func TestNextPageIndex(t *testing.T) {
	tests := []struct {
		name    string
		current int
		r       chat.Reaction
		want    int
	}{
		{name: "first", current: 2, r: chat.ReactionFirst, want: 0},
		{name: "previous", current: 2, r: chat.ReactionPrevious, want: 1},
		{name: "previous clamps", current: 0, r: chat.ReactionPrevious, want: 0},
		{name: "next", current: 1, r: chat.ReactionNext, want: 2},
		{name: "next clamps", current: 3, r: chat.ReactionNext, want: 3},
		{name: "last", current: 0, r: chat.ReactionLast, want: 3},
		{name: "unknown", current: 1, r: chat.Reaction("👍"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextPageIndex(tt.current, 4, tt.r); got != tt.want {
				t.Errorf("NextPageIndex(%d, 4, %s) = %d, want %d", tt.current, tt.r, got, tt.want)
			}
		})
	}
}

func testPages(n int) []DisplayPage {
	pages := make([]DisplayPage, n)
	for i := range pages {
		pages[i] = DisplayPage{
			Index:         i,
			Count:         n,
			Lines:         []string{FormatQueueLine(i+1, Track{Title: "Song", Duration: time.Minute})},
			TotalTracks:   n,
			TotalDuration: time.Duration(n) * time.Minute,
		}
	}
	return pages
}

func TestQueuePager_Render(t *testing.T) {
	pager := NewQueuePager(newMockFrontend(), i18n.NewLocalizer("en"), time.Minute, zap.NewNop())

	embed := pager.Render(testPages(3)[1])
	if embed.Footer != "Page 2/3" {
		t.Errorf("Footer = %q, want Page 2/3", embed.Footer)
	}
	if len(embed.Fields) != 2 {
		t.Fatalf("len(Fields) = %d, want 2", len(embed.Fields))
	}
	if !strings.Contains(embed.Fields[0].Value, "`2 -`") {
		t.Errorf("songs field = %q", embed.Fields[0].Value)
	}
	if want := "**3 songs in queue | 0:03:00 queue duration**"; embed.Fields[1].Value != want {
		t.Errorf("totals field = %q, want %q", embed.Fields[1].Value, want)
	}

	single := pager.Render(testPages(1)[0])
	if want := "**1 song in queue | 0:01:00 queue duration**"; single.Fields[1].Value != want {
		t.Errorf("single totals = %q, want %q", single.Fields[1].Value, want)
	}
}

func TestQueuePager_SinglePageHasNoControls(t *testing.T) {
	frontend := newMockFrontend()
	pager := NewQueuePager(frontend, i18n.NewLocalizer("en"), time.Minute, zap.NewNop())

	if err := pager.Show(context.Background(), testText, testUser, testPages(1)); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	embeds := frontend.embeds()
	if len(embeds) != 1 {
		t.Fatalf("sent %d embeds, want 1", len(embeds))
	}
	if embeds[0].DeleteAfter != time.Minute {
		t.Errorf("DeleteAfter = %v, want 1m", embeds[0].DeleteAfter)
	}
	if len(frontend.reactions) != 0 {
		t.Errorf("reactions = %v, want none", frontend.reactions)
	}
	if pager.ActiveViews() != 0 {
		t.Errorf("ActiveViews() = %d, want 0", pager.ActiveViews())
	}
}

func TestQueuePager_Navigation(t *testing.T) {
	frontend := newMockFrontend()
	pager := NewQueuePager(frontend, i18n.NewLocalizer("en"), 100*time.Millisecond, zap.NewNop())

	if err := pager.Show(context.Background(), testText, testUser, testPages(3)); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	embeds := frontend.embeds()
	if len(embeds) != 1 {
		t.Fatalf("sent %d embeds, want 1", len(embeds))
	}
	msgID := embeds[0].ID

	frontend.mu.Lock()
	controls := append([]chat.Reaction(nil), frontend.reactions[msgID]...)
	frontend.mu.Unlock()
	if len(controls) != 4 || controls[0] != chat.ReactionFirst || controls[3] != chat.ReactionLast {
		t.Errorf("controls = %v, want the four paging reactions", controls)
	}

	// Someone else's reaction is consumed but ignored.
	if !pager.HandleReaction(&chat.ReactionEvent{MessageID: msgID, UserID: testUser + 1, Emoji: chat.ReactionNext}) {
		t.Error("HandleReaction() did not claim a reaction on its message")
	}
	if pager.HandleReaction(&chat.ReactionEvent{MessageID: "other", UserID: testUser, Emoji: chat.ReactionNext}) {
		t.Error("HandleReaction() claimed a reaction on an unknown message")
	}

	pager.HandleReaction(&chat.ReactionEvent{MessageID: msgID, UserID: testUser, Emoji: chat.ReactionLast})
	waitFor(t, "page edit", func() bool {
		frontend.mu.Lock()
		defer frontend.mu.Unlock()
		return len(frontend.edits[msgID]) == 1
	})

	frontend.mu.Lock()
	footer := frontend.edits[msgID][0].Footer
	removed := append([]chat.Reaction(nil), frontend.removed...)
	frontend.mu.Unlock()
	if footer != "Page 3/3" {
		t.Errorf("edited footer = %q, want Page 3/3", footer)
	}
	if len(removed) != 1 || removed[0] != chat.ReactionLast {
		t.Errorf("removed reactions = %v, want [%s]", removed, chat.ReactionLast)
	}

	waitFor(t, "view timeout", func() bool {
		frontend.mu.Lock()
		defer frontend.mu.Unlock()
		return len(frontend.deleted) == 1 && frontend.deleted[0] == msgID
	})
	if pager.ActiveViews() != 0 {
		t.Errorf("ActiveViews() = %d after timeout, want 0", pager.ActiveViews())
	}
}
