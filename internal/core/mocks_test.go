package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"marmobot/internal/chat"
)

const (
	testChannelA snowflake.ID = 111
	testChannelB snowflake.ID = 222
	testUser     snowflake.ID = 333
	testGuild    snowflake.ID = 444
	testText     snowflake.ID = 555
)

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type mockConn struct {
	channel snowflake.ID
}

func (c *mockConn) ChannelID() snowflake.ID { return c.channel }

// mockTransport records calls. Stop and finish fire the pending onComplete.
type mockTransport struct {
	mu          sync.Mutex
	connectGate chan struct{}
	connectErrs []error
	connects    []snowflake.ID
	disconnects []snowflake.ID
	plays       []string
	playErr     error
	onComplete  func(error)
	paused      bool
	stops       int
}

func (m *mockTransport) Connect(ctx context.Context, channelID snowflake.ID) (VoiceConnection, error) {
	m.mu.Lock()
	gate := m.connectGate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, channelID)
	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &mockConn{channel: channelID}, nil
}

func (m *mockTransport) Disconnect(_ context.Context, conn VoiceConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, conn.ChannelID())
	return nil
}

func (m *mockTransport) Play(_ VoiceConnection, source string, onComplete func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playErr != nil {
		err := m.playErr
		m.playErr = nil
		return err
	}
	m.plays = append(m.plays, source)
	m.onComplete = onComplete
	m.paused = false
	return nil
}

func (m *mockTransport) Pause(VoiceConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	return nil
}

func (m *mockTransport) Resume(VoiceConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	return nil
}

func (m *mockTransport) Stop(VoiceConnection) error {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	m.finish(nil)
	return nil
}

func (m *mockTransport) IsPlaying(VoiceConnection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onComplete != nil && !m.paused
}

// finish ends the current stream as if it played to the end.
func (m *mockTransport) finish(err error) {
	m.mu.Lock()
	cb := m.onComplete
	m.onComplete = nil
	m.mu.Unlock()
	if cb != nil {
		go cb(err)
	}
}

func (m *mockTransport) playCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plays)
}

func (m *mockTransport) playsCopy() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.plays...)
}

func (m *mockTransport) connectsCopy() []snowflake.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]snowflake.ID(nil), m.connects...)
}

func (m *mockTransport) disconnectsCopy() []snowflake.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]snowflake.ID(nil), m.disconnects...)
}

// mockProvider serves canned media info keyed by URL or query.
type mockProvider struct {
	mu           sync.Mutex
	infos        map[string]*MediaInfo
	extractErrs  map[string]error
	searches     map[string]*MediaInfo
	pages        map[string]*PlaylistPage
	playlistErr  error
	extractGate  chan struct{}
	extractCalls map[string]int
	searchCalls  int
	pageSizes    []int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		infos:        make(map[string]*MediaInfo),
		extractErrs:  make(map[string]error),
		searches:     make(map[string]*MediaInfo),
		pages:        make(map[string]*PlaylistPage),
		extractCalls: make(map[string]int),
	}
}

// addVideo registers a playable video with id at https://www.youtube.com/watch?v=<id>.
func (p *mockProvider) addVideo(id, title string, d time.Duration) string {
	url := "https://www.youtube.com/watch?v=" + id
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos[url] = &MediaInfo{
		ID:           id,
		WebpageURL:   url,
		Title:        title,
		Duration:     d,
		ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/hq.jpg",
		Formats: []MediaFormat{
			{FormatID: "140", URL: "https://cdn/" + id + "/m4a", AudioCodec: "mp4a.40.2", AudioBitrate: 128},
			{FormatID: "251", URL: "https://cdn/" + id + "/opus", AudioCodec: "opus", AudioBitrate: 160},
		},
	}
	return url
}

func (p *mockProvider) Search(_ context.Context, query string) (*MediaInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searchCalls++
	if info, ok := p.searches[query]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("no results for %q", query)
}

func (p *mockProvider) Extract(ctx context.Context, url string) (*MediaInfo, error) {
	p.mu.Lock()
	gate := p.extractGate
	p.extractCalls[url]++
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.extractErrs[url]; ok {
		return nil, err
	}
	if info, ok := p.infos[url]; ok {
		return info, nil
	}
	return nil, errors.New("video unavailable")
}

func (p *mockProvider) ListPlaylistItems(_ context.Context, _, pageToken string, pageSize int) (*PlaylistPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageSizes = append(p.pageSizes, pageSize)
	if p.playlistErr != nil {
		return nil, p.playlistErr
	}
	page, ok := p.pages[pageToken]
	if !ok {
		return &PlaylistPage{}, nil
	}
	items := page.Items
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return &PlaylistPage{Items: items, NextPageToken: page.NextPageToken}, nil
}

func (p *mockProvider) extractCount(url string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extractCalls[url]
}

// mapCache is an in-memory MetadataCache.
type mapCache struct {
	mu   sync.Mutex
	data map[string]TrackMetadata
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]TrackMetadata)}
}

func (c *mapCache) Get(_ context.Context, id string) (TrackMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.data[id]
	return meta, ok
}

func (c *mapCache) Put(_ context.Context, id string, meta TrackMetadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = meta
	return nil
}

// recordingListener captures playback notifications.
type recordingListener struct {
	mu             sync.Mutex
	started        []QueueEntry
	failed         []QueueEntry
	connectFailure []error
}

func (l *recordingListener) OnTrackStarted(entry QueueEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, entry)
}

func (l *recordingListener) OnTrackFailed(entry QueueEntry, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, entry)
}

func (l *recordingListener) OnConnectFailed(_ snowflake.ID, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connectFailure = append(l.connectFailure, err)
}

func (l *recordingListener) counts() (started, failed, connect int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started), len(l.failed), len(l.connectFailure)
}

// sentMessage is one message recorded by mockFrontend.
type sentMessage struct {
	ID          string
	ChannelID   snowflake.ID
	Text        string
	Embed       *chat.Embed
	DeleteAfter time.Duration
}

// mockFrontend records everything the bot sends.
type mockFrontend struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMessage
	edits     map[string][]*chat.Embed
	deleted   []string
	reactions map[string][]chat.Reaction
	removed   []chat.Reaction
}

func newMockFrontend() *mockFrontend {
	return &mockFrontend{
		edits:     make(map[string][]*chat.Embed),
		reactions: make(map[string][]chat.Reaction),
	}
}

func (f *mockFrontend) Start(context.Context) error { return nil }

func (f *mockFrontend) Listen(ctx context.Context, _ func(*chat.Command), _ func(*chat.ReactionEvent)) error {
	<-ctx.Done()
	return nil
}

func (f *mockFrontend) record(channelID snowflake.ID, text string, embed *chat.Embed, deleteAfter time.Duration) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.sent = append(f.sent, sentMessage{ID: id, ChannelID: channelID, Text: text, Embed: embed, DeleteAfter: deleteAfter})
	return id
}

func (f *mockFrontend) SendText(_ context.Context, channelID snowflake.ID, text string, deleteAfter time.Duration) (string, error) {
	return f.record(channelID, text, nil, deleteAfter), nil
}

func (f *mockFrontend) SendEmbed(_ context.Context, channelID snowflake.ID, embed *chat.Embed, deleteAfter time.Duration) (string, error) {
	return f.record(channelID, "", embed, deleteAfter), nil
}

func (f *mockFrontend) EditEmbed(_ context.Context, _ snowflake.ID, messageID string, embed *chat.Embed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[messageID] = append(f.edits[messageID], embed)
	return nil
}

func (f *mockFrontend) DeleteMessage(_ context.Context, _ snowflake.ID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *mockFrontend) AddReactions(_ context.Context, _ snowflake.ID, messageID string, reactions ...chat.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = append(f.reactions[messageID], reactions...)
	return nil
}

func (f *mockFrontend) RemoveReaction(_ context.Context, _ snowflake.ID, _ string, r chat.Reaction, _ snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, r)
	return nil
}

func (f *mockFrontend) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.Embed == nil {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *mockFrontend) embeds() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.Embed != nil {
			out = append(out, m)
		}
	}
	return out
}

func (f *mockFrontend) hasText(text string) bool {
	for _, got := range f.texts() {
		if got == text {
			return true
		}
	}
	return false
}

// testConfig returns a config with fast retries.
func testConfig() *Config {
	config := DefaultConfig()
	config.Connection.RetryDelay = time.Millisecond
	config.Resolver.RequestTimeout = time.Second
	return config
}

type engineFixture struct {
	config    *Config
	transport *mockTransport
	provider  *mockProvider
	cache     *mapCache
	listener  *recordingListener
	resolver  *SongResolver
	engine    *Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		config:    testConfig(),
		transport: &mockTransport{},
		provider:  newMockProvider(),
		cache:     newMapCache(),
		listener:  &recordingListener{},
	}
	f.resolver = NewSongResolver(&f.config.Resolver, f.provider, f.cache, nil, zap.NewNop())
	f.engine = NewEngine(f.config, f.resolver, f.transport, zap.NewNop(),
		WithPlaybackListener(f.listener),
		WithQueueManager(newSeededQueue()))
	return f
}

// start runs the engine loop until the test ends.
func (f *engineFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// resolvedTrack resolves a registered video through the resolver.
func (f *engineFixture) resolvedTrack(t *testing.T, id, title string, d time.Duration) Track {
	t.Helper()
	url := f.provider.addVideo(id, title, d)
	track, err := f.resolver.Resolve(context.Background(), url, "ana")
	if err != nil {
		t.Fatalf("Resolve(%s) error = %v", url, err)
	}
	return track
}
