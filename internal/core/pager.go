package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"marmobot/internal/chat"
	"marmobot/internal/i18n"
)

// QueuePager shows queue pages and lets the requester flip through them with
// reaction controls. Each view lives until it sees no input for the timeout.
type QueuePager struct {
	frontend  chat.Frontend
	localizer *i18n.Localizer
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*pagerSession // messageID -> session
}

type pagerSession struct {
	id        string
	channelID snowflake.ID
	requester snowflake.ID
	messageID string
	pages     []DisplayPage
	current   int
	input     chan chat.Reaction
}

// NewQueuePager creates a pager. A non-positive timeout uses the default.
func NewQueuePager(frontend chat.Frontend, localizer *i18n.Localizer, timeout time.Duration, logger *zap.Logger) *QueuePager {
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	return &QueuePager{
		frontend:  frontend,
		localizer: localizer,
		timeout:   timeout,
		logger:    logger,
		sessions:  make(map[string]*pagerSession),
	}
}

// Show sends the first page. A single page has no controls and is deleted after
// the timeout; several pages get paging reactions that only requester can use.
func (p *QueuePager) Show(ctx context.Context, channelID, requester snowflake.ID, pages []DisplayPage) error {
	if len(pages) == 0 {
		return nil
	}

	if len(pages) == 1 {
		if _, err := p.frontend.SendEmbed(ctx, channelID, p.Render(pages[0]), p.timeout); err != nil {
			return fmt.Errorf("failed to send queue page: %w", err)
		}
		return nil
	}

	msgID, err := p.frontend.SendEmbed(ctx, channelID, p.Render(pages[0]), 0)
	if err != nil {
		return fmt.Errorf("failed to send queue page: %w", err)
	}
	if err := p.frontend.AddReactions(ctx, channelID, msgID, chat.PagingReactions...); err != nil {
		p.logger.Warn("Failed to add paging controls", zap.String("message_id", msgID), zap.Error(err))
	}

	s := &pagerSession{
		id:        uuid.NewString(),
		channelID: channelID,
		requester: requester,
		messageID: msgID,
		pages:     pages,
		input:     make(chan chat.Reaction, 1),
	}

	p.mu.Lock()
	p.sessions[msgID] = s
	p.mu.Unlock()

	p.logger.Debug("Queue view opened",
		zap.String("session", s.id),
		zap.String("message_id", msgID),
		zap.Int("pages", len(pages)))

	go p.run(context.WithoutCancel(ctx), s)
	return nil
}

// HandleReaction routes a reaction to the view it belongs to. It reports whether
// the reaction was consumed.
func (p *QueuePager) HandleReaction(ev *chat.ReactionEvent) bool {
	p.mu.Lock()
	s, ok := p.sessions[ev.MessageID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	if ev.UserID != s.requester || !isPagingReaction(ev.Emoji) {
		return true
	}

	// One input at a time; extra presses while a page is being edited are dropped.
	select {
	case s.input <- ev.Emoji:
	default:
	}
	return true
}

// ActiveViews returns the number of open paged views.
func (p *QueuePager) ActiveViews() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *QueuePager) run(ctx context.Context, s *pagerSession) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	defer func() {
		p.mu.Lock()
		delete(p.sessions, s.messageID)
		p.mu.Unlock()

		delCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := p.frontend.DeleteMessage(delCtx, s.channelID, s.messageID); err != nil {
			p.logger.Debug("Failed to delete queue view", zap.String("session", s.id), zap.Error(err))
		}
		p.logger.Debug("Queue view closed", zap.String("session", s.id))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case r := <-s.input:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.timeout)
			p.turn(ctx, s, r)
		}
	}
}

func (p *QueuePager) turn(ctx context.Context, s *pagerSession, r chat.Reaction) {
	next := NextPageIndex(s.current, len(s.pages), r)

	if err := p.frontend.RemoveReaction(ctx, s.channelID, s.messageID, r, s.requester); err != nil {
		p.logger.Debug("Failed to remove paging reaction", zap.Error(err))
	}

	if next == s.current {
		return
	}
	s.current = next
	if err := p.frontend.EditEmbed(ctx, s.channelID, s.messageID, p.Render(s.pages[next])); err != nil {
		p.logger.Warn("Failed to edit queue view", zap.String("session", s.id), zap.Error(err))
	}
}

// NextPageIndex applies a paging control to current, clamped to [0, count-1].
func NextPageIndex(current, count int, r chat.Reaction) int {
	switch r {
	case chat.ReactionFirst:
		return 0
	case chat.ReactionPrevious:
		if current > 0 {
			return current - 1
		}
	case chat.ReactionNext:
		if current < count-1 {
			return current + 1
		}
	case chat.ReactionLast:
		return count - 1
	}
	return current
}

// Render turns a page into an embed.
func (p *QueuePager) Render(page DisplayPage) *chat.Embed {
	totalsKey := "queue.totals"
	if page.TotalTracks == 1 {
		totalsKey = "queue.totals_one"
	}
	return &chat.Embed{
		Title: p.localizer.T("queue.title"),
		Fields: []chat.EmbedField{
			{Name: p.localizer.T("queue.field_songs"), Value: page.Body()},
			{Name: "\u200b", Value: p.localizer.T(totalsKey, page.TotalTracks, FormatDuration(page.TotalDuration))},
		},
		Footer: p.localizer.T("queue.footer", page.Index+1, page.Count),
	}
}

func isPagingReaction(r chat.Reaction) bool {
	for _, candidate := range chat.PagingReactions {
		if r == candidate {
			return true
		}
	}
	return false
}
