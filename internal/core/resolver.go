package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"marmobot/pkg/text"
)

// Resolution outcomes reported to Metrics.
const (
	resolutionOK          = "ok"
	resolutionCached      = "cached"
	resolutionFailed      = "failed"
	resolutionUnsupported = "unsupported"
)

// SongResolver turns queries and playlist URLs into tracks, reading and
// populating the metadata cache.
type SongResolver struct {
	config   *ResolverConfig
	provider MediaProvider
	cache    MetadataCache
	parser   *text.Parser
	metrics  Metrics
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewSongResolver creates a resolver. metrics may be nil.
func NewSongResolver(
	config *ResolverConfig,
	provider MediaProvider,
	cache MetadataCache,
	metrics Metrics,
	logger *zap.Logger,
) *SongResolver {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SongResolver{
		config:   config,
		provider: provider,
		cache:    cache,
		parser:   text.NewParser(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// IsPlaylist reports whether query names a playlist.
func (r *SongResolver) IsPlaylist(query string) bool {
	return r.parser.Parse(query).IsPlaylist
}

// Resolve turns a URL or free-text query into a playable track.
func (r *SongResolver) Resolve(ctx context.Context, query, requester string) (Track, error) {
	q := r.parser.Parse(query)
	if q.Text == "" {
		return Track{}, fmt.Errorf("%w: empty query", ErrValidation)
	}

	start := r.now()
	var (
		info *MediaInfo
		err  error
	)
	if q.IsURL {
		info, err = r.extract(ctx, q.Text)
	} else {
		info, err = r.search(ctx, q.Text)
	}
	if err != nil {
		r.metrics.RecordResolution(resolutionFailed, r.now().Sub(start))
		return Track{}, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	track, err := r.trackFromInfo(info, q.Text, requester)
	if err != nil {
		r.recordFailure(err, start)
		return Track{}, err
	}

	r.metrics.RecordResolution(resolutionOK, r.now().Sub(start))
	r.storeMetadata(ctx, track)

	r.logger.Debug("Resolved song",
		zap.String("query", q.Text),
		zap.String("id", track.CanonicalID),
		zap.String("title", track.Title),
		zap.String("format", track.SourceFormatID))

	return track, nil
}

// ResolveSource fetches a fresh playable source for track, refreshing its metadata.
func (r *SongResolver) ResolveSource(ctx context.Context, track Track) (Track, error) {
	start := r.now()

	info, err := r.extract(ctx, track.DisplayURL)
	if err != nil {
		r.metrics.RecordResolution(resolutionFailed, r.now().Sub(start))
		return track, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	fresh, err := r.trackFromInfo(info, track.DisplayURL, track.Author)
	if err != nil {
		r.recordFailure(err, start)
		return track, err
	}
	if track.CanonicalID != "" {
		fresh.CanonicalID = track.CanonicalID
	}

	r.metrics.RecordResolution(resolutionOK, r.now().Sub(start))
	r.storeMetadata(ctx, fresh)
	return fresh, nil
}

// Hydrate fills missing display metadata, first from the cache and then from the provider.
func (r *SongResolver) Hydrate(ctx context.Context, track Track) (Track, error) {
	if track.IsResolved() {
		return track, nil
	}

	id := track.CanonicalID
	if id == "" {
		id = text.CanonicalID(track.DisplayURL)
	}
	if meta, ok := r.lookup(ctx, id); ok {
		track.CanonicalID = id
		return track.WithMetadata(meta), nil
	}

	return r.ResolveSource(ctx, track)
}

// ResolvePlaylist returns a lazy, single-use iterator over the tracks of a playlist.
func (r *SongResolver) ResolvePlaylist(playlistURL, requester string) *PlaylistIterator {
	return &PlaylistIterator{
		resolver:  r,
		url:       text.StripTimestamp(strings.TrimSpace(playlistURL)),
		requester: requester,
	}
}

func (r *SongResolver) resolveListedItem(ctx context.Context, item PlaylistItem, requester string) (Track, error) {
	id := text.CanonicalID(item.URL)
	if meta, ok := r.lookup(ctx, id); ok {
		r.metrics.RecordResolution(resolutionCached, 0)
		track := Track{CanonicalID: id, DisplayURL: item.URL, Author: requester}
		return track.WithMetadata(meta), nil
	}

	start := r.now()
	info, err := r.extract(ctx, item.URL)
	if err != nil {
		r.metrics.RecordResolution(resolutionFailed, r.now().Sub(start))
		return Track{}, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	track, err := r.trackFromInfo(info, item.URL, requester)
	if err != nil {
		r.recordFailure(err, start)
		return Track{}, err
	}

	r.metrics.RecordResolution(resolutionOK, r.now().Sub(start))
	r.storeMetadata(ctx, track)
	return track, nil
}

func (r *SongResolver) lookup(ctx context.Context, id string) (TrackMetadata, bool) {
	if id == "" {
		return TrackMetadata{}, false
	}
	meta, ok := r.cache.Get(ctx, id)
	hit := ok && meta.Complete()
	r.metrics.RecordCacheLookup(hit)
	return meta, hit
}

func (r *SongResolver) storeMetadata(ctx context.Context, track Track) {
	if track.CanonicalID == "" || !track.IsResolved() {
		return
	}
	if err := r.cache.Put(ctx, track.CanonicalID, track.Metadata()); err != nil {
		r.logger.Warn("Failed to store song metadata",
			zap.String("id", track.CanonicalID),
			zap.Error(err))
	}
}

func (r *SongResolver) recordFailure(err error, start time.Time) {
	outcome := resolutionFailed
	if errors.Is(err, ErrUnsupportedMedia) {
		outcome = resolutionUnsupported
	}
	r.metrics.RecordResolution(outcome, r.now().Sub(start))
}

func (r *SongResolver) extract(ctx context.Context, url string) (*MediaInfo, error) {
	v, err, _ := r.group.Do("extract:"+url, func() (any, error) {
		callCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.provider.Extract(callCtx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MediaInfo), nil
}

func (r *SongResolver) search(ctx context.Context, query string) (*MediaInfo, error) {
	v, err, _ := r.group.Do("search:"+query, func() (any, error) {
		callCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.provider.Search(callCtx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MediaInfo), nil
}

func (r *SongResolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.config.RequestTimeout)
}

func (r *SongResolver) trackFromInfo(info *MediaInfo, requestedURL, requester string) (Track, error) {
	if info == nil {
		return Track{}, fmt.Errorf("%w: no entries", ErrResolution)
	}
	if info.IsLive {
		return Track{}, fmt.Errorf("%w: livestreams cannot be queued", ErrUnsupportedMedia)
	}

	source, formatID := SelectAudioFormat(info.Formats)
	if source == "" {
		return Track{}, fmt.Errorf("%w: %w", ErrResolution, ErrNoPlayableFormat)
	}

	displayURL := info.WebpageURL
	if displayURL == "" && text.IsURL(requestedURL) {
		displayURL = requestedURL
	}

	id := text.CanonicalID(displayURL)
	if id == "" {
		id = info.ID
	}

	return Track{
		CanonicalID:      id,
		DisplayURL:       displayURL,
		Title:            info.Title,
		Duration:         info.Duration,
		Author:           requester,
		ThumbnailURL:     info.ThumbnailURL,
		PlayableSource:   source,
		SourceFormatID:   formatID,
		SourceResolvedAt: r.now(),
	}, nil
}

// SelectAudioFormat picks the stream to play: opus audio first, then the highest
// audio bitrate (falling back to total bitrate). With no audio-tagged format the
// first format exposing a URL is used.
func SelectAudioFormat(formats []MediaFormat) (url, formatID string) {
	var audio []MediaFormat
	for _, f := range formats {
		if f.URL != "" && f.AudioCodec != "" && f.AudioCodec != "none" {
			audio = append(audio, f)
		}
	}

	if len(audio) == 0 {
		for _, f := range formats {
			if f.URL != "" {
				return f.URL, f.FormatID
			}
		}
		return "", ""
	}

	var opus []MediaFormat
	for _, f := range audio {
		if strings.Contains(strings.ToLower(f.AudioCodec), "opus") {
			opus = append(opus, f)
		}
	}
	candidates := audio
	if len(opus) > 0 {
		candidates = opus
	}

	best := candidates[0]
	for _, f := range candidates[1:] {
		if formatScore(f) > formatScore(best) {
			best = f
		}
	}
	return best.URL, best.FormatID
}

func formatScore(f MediaFormat) float64 {
	if f.AudioBitrate > 0 {
		return f.AudioBitrate
	}
	return f.TotalBitrate
}

// PlaylistIterator yields the tracks of a playlist page by page. Items that fail
// to resolve are skipped. It cannot be restarted.
type PlaylistIterator struct {
	resolver  *SongResolver
	url       string
	requester string

	items     []PlaylistItem
	pos       int
	pageToken string
	done      bool
	listed    int
	skipped   int
	track     Track
	err       error
}

// Next advances to the next resolvable track.
func (it *PlaylistIterator) Next(ctx context.Context) bool {
	for {
		if it.err != nil {
			return false
		}

		if it.pos < len(it.items) {
			item := it.items[it.pos]
			it.pos++

			track, err := it.resolver.resolveListedItem(ctx, item, it.requester)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					it.err = ctxErr
					return false
				}
				it.skipped++
				it.resolver.logger.Info("Skipping playlist item",
					zap.String("playlist", it.url),
					zap.String("item", item.URL),
					zap.Error(err))
				continue
			}

			it.track = track
			return true
		}

		if it.done {
			if it.listed == 0 {
				it.err = ErrPlaylistEmpty
			}
			return false
		}

		if !it.fetchPage(ctx) {
			return false
		}
	}
}

func (it *PlaylistIterator) fetchPage(ctx context.Context) bool {
	cfg := it.resolver.config
	limit := cfg.PlaylistPageSize
	if limit <= 0 || limit > DefaultPlaylistPageSize {
		limit = DefaultPlaylistPageSize
	}
	if cfg.MaxPlaylistItems > 0 && it.listed+limit > cfg.MaxPlaylistItems {
		limit = cfg.MaxPlaylistItems - it.listed
	}
	if limit <= 0 {
		it.done = true
		return true
	}

	callCtx, cancel := it.resolver.withTimeout(ctx)
	defer cancel()

	page, err := it.resolver.provider.ListPlaylistItems(callCtx, it.url, it.pageToken, limit)
	if err != nil {
		if errors.Is(err, ErrPlaylistUnavailable) {
			it.err = err
		} else {
			it.err = fmt.Errorf("%w: listing playlist: %w", ErrResolution, err)
		}
		return false
	}

	it.items = page.Items
	it.pos = 0
	it.listed += len(page.Items)
	it.pageToken = page.NextPageToken
	if it.pageToken == "" || len(page.Items) == 0 {
		it.done = true
	}
	return true
}

// Track returns the track produced by the last successful Next.
func (it *PlaylistIterator) Track() Track {
	return it.track
}

// Err returns the error that ended iteration, if any.
func (it *PlaylistIterator) Err() error {
	return it.err
}

// Skipped returns how many listed items failed to resolve.
func (it *PlaylistIterator) Skipped() int {
	return it.skipped
}
