// Package youtube implements core.MediaProvider on top of yt-dlp with
// YouTube and YouTube Music search front-ends.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"go.uber.org/zap"

	"marmobot/internal/core"
)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// searchFunc returns the video id of the best match for query.
type searchFunc func(ctx context.Context, query string) (string, error)

type searcher struct {
	name   string
	search searchFunc
}

// runFunc executes a prepared yt-dlp command.
type runFunc func(ctx context.Context, cmd *ytdlp.Command, args ...string) (*ytdlp.Result, error)

// Provider resolves media through yt-dlp.
type Provider struct {
	searchers []searcher
	run       runFunc
	proxy     string
	logger    *zap.Logger
}

// Option customizes a Provider.
type Option func(*Provider)

// WithProxy routes yt-dlp traffic through proxy.
func WithProxy(proxy string) Option {
	return func(p *Provider) {
		p.proxy = proxy
	}
}

// NewProvider creates a provider that searches YouTube first, then YouTube Music.
func NewProvider(logger *zap.Logger, opts ...Option) *Provider {
	p := &Provider{
		searchers: []searcher{
			{name: "youtube", search: searchYouTube},
			{name: "ytmusic", search: searchYouTubeMusic},
		},
		run: func(ctx context.Context, cmd *ytdlp.Command, args ...string) (*ytdlp.Result, error) {
			return cmd.Run(ctx, args...)
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if p.proxy != "" {
		cmd.Proxy(p.proxy)
	}
	return cmd
}

// Extract returns full media information for a single video URL.
func (p *Provider) Extract(ctx context.Context, url string) (*core.MediaInfo, error) {
	res, err := p.run(ctx, p.command().NoPlaylist(), "--dump-single-json", url)
	if err != nil {
		return nil, classifyError(err, stderrOf(res))
	}
	info, err := parseInfo([]byte(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrResolution, err)
	}
	return info, nil
}

// Search finds the best match for a free-text query. The search front-ends are
// tried in order; yt-dlp's own search is the last resort.
func (p *Provider) Search(ctx context.Context, query string) (*core.MediaInfo, error) {
	for _, s := range p.searchers {
		id, err := s.search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Debug("Search front-end failed",
				zap.String("searcher", s.name),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		if id == "" {
			continue
		}
		info, err := p.Extract(ctx, watchURLPrefix+id)
		if err == nil {
			return info, nil
		}
		p.logger.Debug("Search result could not be extracted",
			zap.String("searcher", s.name),
			zap.String("id", id),
			zap.Error(err))
	}

	return p.searchWithYtdlp(ctx, query)
}

func (p *Provider) searchWithYtdlp(ctx context.Context, query string) (*core.MediaInfo, error) {
	res, err := p.run(ctx, p.command(), "--dump-single-json", "ytsearch1:"+query)
	if err != nil {
		return nil, classifyError(err, stderrOf(res))
	}

	var result searchResult
	if err := json.Unmarshal([]byte(res.Stdout), &result); err != nil {
		return nil, fmt.Errorf("%w: decoding search result: %w", core.ErrResolution, err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("%w: no results for %q", core.ErrResolution, query)
	}
	return result.Entries[0].toMediaInfo()
}

// ListPlaylistItems lists one page of a playlist without resolving its items.
// Page tokens are 1-based start indexes.
func (p *Provider) ListPlaylistItems(ctx context.Context, playlistURL, pageToken string, pageSize int) (*core.PlaylistPage, error) {
	if pageSize <= 0 {
		pageSize = core.DefaultPlaylistPageSize
	}
	start := 1
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: bad page token %q", core.ErrValidation, pageToken)
		}
		start = n
	}

	cmd := p.command().
		FlatPlaylist().
		Print("%(url)s\t%(title)s\t%(duration)s").
		PlaylistItems(fmt.Sprintf("%d-%d", start, start+pageSize-1))

	res, err := p.run(ctx, cmd, playlistURL)
	if err != nil {
		err = classifyError(err, stderrOf(res))
		if errors.Is(err, core.ErrResolution) {
			return nil, fmt.Errorf("%w: %w", core.ErrPlaylistUnavailable, err)
		}
		return nil, err
	}

	// Unlistable rows are dropped from items but still occupy the page.
	page := &core.PlaylistPage{Items: parsePlaylistLines(res.Stdout)}
	if countRows(res.Stdout) >= pageSize {
		page.NextPageToken = strconv.Itoa(start + pageSize)
	}
	return page, nil
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return res.Stderr
}

// classifyError maps a failed yt-dlp run to a core error.
func classifyError(err error, stderr string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := strings.ToLower(stderr)
	detail := lastLine(stderr)
	if detail == "" {
		detail = err.Error()
	}

	switch {
	case strings.Contains(msg, "unsupported url"):
		return fmt.Errorf("%w: %s", core.ErrUnsupportedMedia, detail)
	case strings.Contains(msg, "drm"):
		return fmt.Errorf("%w: DRM protected: %s", core.ErrUnsupportedMedia, detail)
	case strings.Contains(msg, "private"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "removed"),
		strings.Contains(msg, "sign in"):
		return fmt.Errorf("%w: %s", core.ErrResolution, detail)
	default:
		return fmt.Errorf("%w: yt-dlp: %s", core.ErrResolution, detail)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// parsePlaylistLines reads the url\ttitle\tduration rows printed for a flat playlist.
func parsePlaylistLines(stdout string) []core.PlaylistItem {
	var items []core.PlaylistItem
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 3 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		item := core.PlaylistItem{URL: normalizeEntryURL(parts[0])}
		if parts[1] != "NA" {
			item.Title = parts[1]
		}
		if secs, err := strconv.ParseFloat(parts[2], 64); err == nil {
			item.Duration = time.Duration(secs * float64(time.Second))
		}
		items = append(items, item)
	}
	return items
}

// countRows counts the non-empty lines yt-dlp printed, one per playlist entry.
func countRows(stdout string) int {
	n := 0
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// normalizeEntryURL turns a bare video id from a flat listing into a watch URL.
func normalizeEntryURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return watchURLPrefix + u
}

func searchYouTube(ctx context.Context, query string) (string, error) {
	client := ytsearch.NewClient(nil)
	res, err := client.Search(ctx, query)
	if err != nil {
		return "", err
	}
	for _, v := range res.Results {
		if v.VideoID != "" {
			return v.VideoID, nil
		}
	}
	return "", nil
}

func searchYouTubeMusic(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	res, err := ytmusic.TrackSearch(query).Next()
	if err != nil {
		return "", err
	}
	for _, t := range res.Tracks {
		if t.VideoID != "" {
			return t.VideoID, nil
		}
	}
	return "", nil
}

var _ core.MediaProvider = (*Provider)(nil)
