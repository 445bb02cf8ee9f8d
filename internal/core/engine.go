package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

const taskBufferSize = 128

// Engine owns one playback session. Every session mutation runs on the engine
// loop; network work runs on other goroutines and posts its result back.
type Engine struct {
	config    *Config
	queue     *QueueManager
	resolver  *SongResolver
	transport VoiceTransport
	listener  PlaybackListener
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time

	tasks   chan func()
	stopped chan struct{}
	runCtx  context.Context

	// Loop-owned session state.
	state         PlaybackState
	conn          VoiceConnection
	nowPlaying    *QueueEntry
	nextEntryID   uint64
	playGen       uint64
	skipRequested bool
	dial          *dialState
	dialSeq       uint64
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithPlaybackListener sets the receiver of playback notifications.
func WithPlaybackListener(l PlaybackListener) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.listener = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithQueueManager replaces the default queue, e.g. with a seeded one.
func WithQueueManager(q *QueueManager) EngineOption {
	return func(e *Engine) {
		if q != nil {
			e.queue = q
		}
	}
}

// NewEngine creates an idle, disconnected engine. Call Run to start its loop.
func NewEngine(
	config *Config,
	resolver *SongResolver,
	transport VoiceTransport,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		config:    config,
		queue:     NewQueueManager(nil),
		resolver:  resolver,
		transport: transport,
		listener:  noopListener{},
		metrics:   noopMetrics{},
		logger:    logger,
		now:       time.Now,
		tasks:     make(chan func(), taskBufferSize),
		stopped:   make(chan struct{}),
		runCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetPlaybackListener replaces the listener. It must be called before Run.
func (e *Engine) SetPlaybackListener(l PlaybackListener) {
	WithPlaybackListener(l)(e)
}

// Run processes session tasks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	e.logger.Info("Starting playback engine")
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			e.logger.Info("Playback engine stopped")
			return nil
		case task := <-e.tasks:
			task()
		}
	}
}

func (e *Engine) shutdown() {
	if e.conn == nil {
		return
	}
	conn := e.detach()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.transport.Disconnect(ctx, conn); err != nil {
		e.logger.Debug("Failed to disconnect on shutdown", zap.Error(err))
	}
}

// post schedules fn on the loop. It reports false once the engine has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.stopped:
		return false
	default:
	}

	select {
	case e.tasks <- fn:
		return true
	case <-e.stopped:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (e *Engine) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		fn()
		close(done)
	}

	select {
	case e.tasks <- task:
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) newEntry(track Track, channel, requester snowflake.ID) QueueEntry {
	e.nextEntryID++
	return QueueEntry{
		ID:          e.nextEntryID,
		Track:       track,
		Channel:     channel,
		RequesterID: requester,
	}
}

// Enqueue appends a track bound for channel and starts playback if idle.
// It returns the 1-based queue position.
func (e *Engine) Enqueue(ctx context.Context, track Track, channel, requester snowflake.ID) (int, error) {
	var position int
	err := e.call(ctx, func() {
		position = e.queue.Enqueue(e.newEntry(track, channel, requester))
		e.metrics.SetQueueLength(e.queue.Len())
		e.ensureAdvancing()
	})
	return position, err
}

// InsertNext places a track at the head of the queue. It returns ErrNotSupported
// when the queue is empty; callers fall back to Enqueue.
func (e *Engine) InsertNext(ctx context.Context, track Track, channel, requester snowflake.ID) error {
	var insertErr error
	err := e.call(ctx, func() {
		if insertErr = e.queue.InsertNext(e.newEntry(track, channel, requester)); insertErr != nil {
			return
		}
		e.metrics.SetQueueLength(e.queue.Len())
		e.ensureAdvancing()
	})
	if err != nil {
		return err
	}
	return insertErr
}

// Move relocates a queued entry using 1-based positions.
func (e *Engine) Move(ctx context.Context, from, to int) error {
	var moveErr error
	err := e.call(ctx, func() {
		moveErr = e.queue.Move(from, to)
	})
	if err != nil {
		return err
	}
	return moveErr
}

// Shuffle prepares a shuffled ordering, adopted when the next track starts.
func (e *Engine) Shuffle(ctx context.Context) error {
	var shuffleErr error
	err := e.call(ctx, func() {
		shuffleErr = e.queue.Shuffle()
	})
	if err != nil {
		return err
	}
	return shuffleErr
}

// Skip ends the current track. The next one starts from the completion event.
func (e *Engine) Skip(ctx context.Context) error {
	var skipErr error
	err := e.call(ctx, func() {
		skipErr = e.skip()
	})
	if err != nil {
		return err
	}
	return skipErr
}

// Pause pauses a streaming track.
func (e *Engine) Pause(ctx context.Context) error {
	var pauseErr error
	err := e.call(ctx, func() {
		pauseErr = e.pause()
	})
	if err != nil {
		return err
	}
	return pauseErr
}

// Resume continues a paused track.
func (e *Engine) Resume(ctx context.Context) error {
	var resumeErr error
	err := e.call(ctx, func() {
		resumeErr = e.resume()
	})
	if err != nil {
		return err
	}
	return resumeErr
}

// Join attaches to channel, moving there if connected elsewhere, and waits for the result.
func (e *Engine) Join(ctx context.Context, channel snowflake.ID) error {
	result := make(chan error, 1)
	err := e.call(ctx, func() {
		e.ensureConnected(channel, true, func(err error) {
			result <- err
			if err == nil {
				e.ensureAdvancing()
			}
		})
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-e.stopped:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect leaves the voice channel and clears the session.
func (e *Engine) Disconnect(ctx context.Context) error {
	var conn VoiceConnection
	err := e.call(ctx, func() {
		conn = e.detach()
	})
	if err != nil {
		return err
	}
	if conn == nil {
		return ErrNotConnected
	}
	if err := e.transport.Disconnect(ctx, conn); err != nil {
		return fmt.Errorf("disconnecting from %s: %w", conn.ChannelID(), err)
	}
	return nil
}

// NowPlaying returns the entry being played or prepared.
func (e *Engine) NowPlaying(ctx context.Context) (QueueEntry, bool, error) {
	var (
		entry QueueEntry
		ok    bool
	)
	err := e.call(ctx, func() {
		if e.nowPlaying != nil {
			entry, ok = *e.nowPlaying, true
		}
	})
	return entry, ok, err
}

// IsPlaying reports whether a track is being resolved or streamed.
func (e *Engine) IsPlaying(ctx context.Context) (bool, error) {
	var playing bool
	err := e.call(ctx, func() {
		playing = e.state == StateResolving || e.state == StateStreaming
	})
	return playing, err
}

// IsPaused reports whether playback is paused.
func (e *Engine) IsPaused(ctx context.Context) (bool, error) {
	var paused bool
	err := e.call(ctx, func() {
		paused = e.state == StatePaused
	})
	return paused, err
}

// QueueLength returns the number of pending entries.
func (e *Engine) QueueLength(ctx context.Context) (int, error) {
	var n int
	err := e.call(ctx, func() {
		n = e.queue.Len()
	})
	return n, err
}

// ConnectedChannel returns the channel the session is attached to.
func (e *Engine) ConnectedChannel(ctx context.Context) (snowflake.ID, bool, error) {
	var (
		channel snowflake.ID
		ok      bool
	)
	err := e.call(ctx, func() {
		if e.conn != nil {
			channel, ok = e.conn.ChannelID(), true
		}
	})
	return channel, ok, err
}

// Snapshot returns a copy of the pending entries in play order.
func (e *Engine) Snapshot(ctx context.Context) ([]QueueEntry, error) {
	var entries []QueueEntry
	err := e.call(ctx, func() {
		entries = e.queue.Snapshot()
	})
	return entries, err
}

// Status returns a point-in-time view of the whole session.
func (e *Engine) Status(ctx context.Context) (SessionStatus, error) {
	var status SessionStatus
	err := e.call(ctx, func() {
		status = SessionStatus{
			State:    e.state,
			Shuffled: e.queue.IsShuffled(),
			Queue:    e.queue.Snapshot(),
		}
		if e.conn != nil {
			status.Connected = true
			status.ChannelID = e.conn.ChannelID()
		}
		if e.nowPlaying != nil {
			np := *e.nowPlaying
			status.NowPlaying = &np
		}
	})
	return status, err
}

// HydratedSnapshot returns the queue with every entry's display metadata filled.
// Entries that cannot be resolved are removed from the queue.
func (e *Engine) HydratedSnapshot(ctx context.Context) ([]QueueEntry, error) {
	entries, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	hydrated := make([]QueueEntry, 0, len(entries))
	var updates []QueueEntry
	var removals []uint64
	for _, entry := range entries {
		if entry.Track.IsResolved() {
			hydrated = append(hydrated, entry)
			continue
		}

		track, err := e.resolver.Hydrate(ctx, entry.Track)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Info("Removing unresolvable queue entry",
				zap.Uint64("entry", entry.ID),
				zap.String("url", entry.Track.DisplayURL),
				zap.Error(err))
			removals = append(removals, entry.ID)
			continue
		}
		entry.Track = track
		updates = append(updates, entry)
		hydrated = append(hydrated, entry)
	}

	if len(updates) == 0 && len(removals) == 0 {
		return hydrated, nil
	}

	err = e.call(ctx, func() {
		for _, u := range updates {
			e.queue.Update(u.ID, u.Track)
		}
		for _, id := range removals {
			e.queue.Remove(id)
		}
		e.metrics.SetQueueLength(e.queue.Len())
	})
	if err != nil {
		return nil, err
	}
	return hydrated, nil
}

// EnsureAdvancing starts the next track if nothing is playing.
func (e *Engine) EnsureAdvancing(ctx context.Context) error {
	return e.call(ctx, e.ensureAdvancing)
}

// IsUserError reports whether err is an expected, user-facing failure.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrResolution, ErrUnsupportedMedia, ErrPlaylistUnavailable, ErrPlaylistEmpty,
		ErrValidation, ErrNotSupported, ErrEmptyQueue, ErrNotConnected, ErrNotPlaying,
		ErrNotPaused, ErrConnect, ErrPlaylistInsert,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
