package core

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is a single playable item. Metadata may be missing until resolved.
type Track struct {
	CanonicalID      string        `json:"id"`
	DisplayURL       string        `json:"url"`
	Title            string        `json:"title"`
	Duration         time.Duration `json:"duration"`
	Author           string        `json:"author"`
	ThumbnailURL     string        `json:"thumbnail,omitempty"`
	PlayableSource   string        `json:"-"`
	SourceFormatID   string        `json:"-"`
	SourceResolvedAt time.Time     `json:"-"`
}

// IsResolved reports whether the display metadata is complete.
func (t Track) IsResolved() bool {
	return t.Title != "" && t.Duration > 0
}

// HasFreshSource reports whether the playable source can still be used at now.
func (t Track) HasFreshSource(now time.Time, ttl time.Duration) bool {
	if t.PlayableSource == "" {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return now.Sub(t.SourceResolvedAt) < ttl
}

// Metadata returns the cacheable part of the track.
func (t Track) Metadata() TrackMetadata {
	return TrackMetadata{
		Title:        t.Title,
		Duration:     t.Duration,
		ThumbnailURL: t.ThumbnailURL,
	}
}

// WithMetadata returns a copy of t carrying meta.
func (t Track) WithMetadata(meta TrackMetadata) Track {
	t.Title = meta.Title
	t.Duration = meta.Duration
	t.ThumbnailURL = meta.ThumbnailURL
	return t
}

// TrackMetadata is what the metadata cache persists. It never holds a playable source.
type TrackMetadata struct {
	Title        string
	Duration     time.Duration
	ThumbnailURL string
}

// Complete reports whether the metadata can be displayed without re-resolving.
func (m TrackMetadata) Complete() bool {
	return m.Title != "" && m.Duration > 0
}

// QueueEntry is a track plus the voice channel it was requested for.
type QueueEntry struct {
	ID          uint64       `json:"entry_id"`
	Track       Track        `json:"track"`
	Channel     snowflake.ID `json:"channel_id"`
	RequesterID snowflake.ID `json:"requester_id"`
}

// PlaybackState is the driver state of a session.
type PlaybackState int

const (
	// StateIdle means nothing is playing or being prepared.
	StateIdle PlaybackState = iota
	// StateResolving means the head entry's source is being fetched.
	StateResolving
	// StateStreaming means the transport is playing.
	StateStreaming
	// StatePaused means the transport stream is paused.
	StatePaused
)

// String returns the lowercase state name.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name in JSON output.
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionStatus is a point-in-time view of the session.
type SessionStatus struct {
	State      PlaybackState `json:"state"`
	Connected  bool          `json:"connected"`
	ChannelID  snowflake.ID  `json:"channel_id,omitempty"`
	Shuffled   bool          `json:"shuffled"`
	NowPlaying *QueueEntry   `json:"now_playing,omitempty"`
	Queue      []QueueEntry  `json:"queue"`
}

// VoiceConnection is an established attachment to a voice channel.
type VoiceConnection interface {
	ChannelID() snowflake.ID
}

// VoiceTransport streams audio into a voice channel.
// onComplete is called exactly once per successful Play, from any goroutine.
type VoiceTransport interface {
	Connect(ctx context.Context, channelID snowflake.ID) (VoiceConnection, error)
	Disconnect(ctx context.Context, conn VoiceConnection) error
	Play(conn VoiceConnection, source string, onComplete func(error)) error
	Pause(conn VoiceConnection) error
	Resume(conn VoiceConnection) error
	Stop(conn VoiceConnection) error
	IsPlaying(conn VoiceConnection) bool
}

// MediaFormat is one downloadable rendition reported by the provider.
type MediaFormat struct {
	FormatID     string
	URL          string
	AudioCodec   string
	AudioBitrate float64
	TotalBitrate float64
}

// MediaInfo is the provider's description of a single media item.
type MediaInfo struct {
	ID           string
	WebpageURL   string
	Title        string
	Duration     time.Duration
	ThumbnailURL string
	IsLive       bool
	Formats      []MediaFormat
}

// PlaylistItem is a flat playlist listing row.
type PlaylistItem struct {
	URL      string
	Title    string
	Duration time.Duration
}

// PlaylistPage is one page of a playlist listing. An empty NextPageToken ends the listing.
type PlaylistPage struct {
	Items         []PlaylistItem
	NextPageToken string
}

// MediaProvider searches and extracts media.
type MediaProvider interface {
	Search(ctx context.Context, query string) (*MediaInfo, error)
	Extract(ctx context.Context, url string) (*MediaInfo, error)
	ListPlaylistItems(ctx context.Context, playlistURL, pageToken string, pageSize int) (*PlaylistPage, error)
}

// MetadataCache maps canonical ids to display metadata. Absence is not an error.
type MetadataCache interface {
	Get(ctx context.Context, id string) (TrackMetadata, bool)
	Put(ctx context.Context, id string, meta TrackMetadata) error
}

// PlaybackListener is notified of driver transitions. Calls must not block.
type PlaybackListener interface {
	OnTrackStarted(entry QueueEntry)
	OnTrackFailed(entry QueueEntry, err error)
	OnConnectFailed(channel snowflake.ID, err error)
}

// Metrics records engine activity.
type Metrics interface {
	RecordCommand(name, status string)
	RecordResolution(outcome string, duration time.Duration)
	RecordCacheLookup(hit bool)
	RecordConnectAttempt(outcome string)
	RecordTrackStarted()
	SetQueueLength(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordCommand(string, string) {}
func (noopMetrics) RecordResolution(string, time.Duration) {}
func (noopMetrics) RecordCacheLookup(bool) {}
func (noopMetrics) RecordConnectAttempt(string) {}
func (noopMetrics) RecordTrackStarted() {}
func (noopMetrics) SetQueueLength(int) {}

type noopListener struct{}

func (noopListener) OnTrackStarted(QueueEntry) {}
func (noopListener) OnTrackFailed(QueueEntry, error) {}
func (noopListener) OnConnectFailed(snowflake.ID, error) {}
