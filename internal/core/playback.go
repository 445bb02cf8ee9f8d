package core

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// ensureAdvancing is the only place playback starts. It is a no-op unless the
// session is idle with a non-empty queue.
func (e *Engine) ensureAdvancing() {
	if e.state != StateIdle {
		return
	}

	head, ok := e.queue.Peek()
	if !ok {
		e.nowPlaying = nil
		return
	}

	if e.conn == nil || e.conn.ChannelID() != head.Channel {
		if e.dial != nil {
			// The dial in flight re-enters ensureAdvancing when it settles.
			return
		}
		e.ensureConnected(head.Channel, false, e.afterAdvanceConnect(head.Channel))
		return
	}

	entry, _ := e.queue.PopHead()
	e.metrics.SetQueueLength(e.queue.Len())

	e.playGen++
	gen := e.playGen
	e.nowPlaying = &entry
	e.state = StateResolving
	e.skipRequested = false

	if entry.Track.HasFreshSource(e.now(), e.config.Resolver.SourceTTL) {
		e.startStream(gen, entry)
		return
	}

	ctx := e.runCtx
	track := entry.Track
	go func() {
		resolved, err := e.resolver.ResolveSource(ctx, track)
		e.post(func() { e.onSourceResolved(gen, resolved, err) })
	}()
}

func (e *Engine) afterAdvanceConnect(channel snowflake.ID) func(error) {
	return func(err error) {
		if err != nil {
			if !errors.Is(err, ErrNotConnected) {
				e.logger.Error("Could not connect for playback",
					zap.Stringer("channel", channel),
					zap.Error(err))
				e.listener.OnConnectFailed(channel, err)
			}
			return
		}
		e.ensureAdvancing()
	}
}

func (e *Engine) onSourceResolved(gen uint64, track Track, err error) {
	if gen != e.playGen || e.state != StateResolving || e.nowPlaying == nil {
		return
	}

	entry := *e.nowPlaying
	if e.skipRequested {
		e.skipRequested = false
		e.logger.Info("Discarding skipped track", zap.String("title", entry.Track.Title))
		e.finishTrack()
		return
	}

	if err != nil {
		e.logger.Warn("Failed to resolve source, dropping entry",
			zap.String("url", entry.Track.DisplayURL),
			zap.Error(err))
		e.listener.OnTrackFailed(entry, err)
		e.finishTrack()
		return
	}

	entry.Track = track
	e.nowPlaying = &entry
	e.startStream(gen, entry)
}

func (e *Engine) startStream(gen uint64, entry QueueEntry) {
	err := e.transport.Play(e.conn, entry.Track.PlayableSource, func(playErr error) {
		e.post(func() { e.onStreamFinished(gen, playErr) })
	})
	if err != nil {
		e.logger.Warn("Transport refused to play, dropping entry",
			zap.String("url", entry.Track.DisplayURL),
			zap.Error(err))
		e.listener.OnTrackFailed(entry, fmt.Errorf("%w: %w", ErrResolution, err))
		e.finishTrack()
		return
	}

	e.state = StateStreaming
	e.metrics.RecordTrackStarted()
	e.logger.Info("Now playing",
		zap.String("title", entry.Track.Title),
		zap.String("url", entry.Track.DisplayURL),
		zap.Duration("duration", entry.Track.Duration),
		zap.String("requested_by", entry.Track.Author))
	e.listener.OnTrackStarted(entry)
}

func (e *Engine) onStreamFinished(gen uint64, err error) {
	if gen != e.playGen {
		return
	}
	if e.state != StateStreaming && e.state != StatePaused {
		return
	}
	if err != nil {
		e.logger.Warn("Stream ended with error", zap.Error(err))
	}
	e.finishTrack()
}

func (e *Engine) finishTrack() {
	e.state = StateIdle
	e.nowPlaying = nil
	e.ensureAdvancing()
}

func (e *Engine) skip() error {
	switch e.state {
	case StateStreaming, StatePaused:
		if err := e.transport.Stop(e.conn); err != nil {
			return fmt.Errorf("stopping playback: %w", err)
		}
		return nil
	case StateResolving:
		e.skipRequested = true
		return nil
	default:
		return ErrNotPlaying
	}
}

func (e *Engine) pause() error {
	if e.state != StateStreaming {
		return ErrNotPlaying
	}
	if err := e.transport.Pause(e.conn); err != nil {
		return fmt.Errorf("pausing playback: %w", err)
	}
	e.state = StatePaused
	return nil
}

func (e *Engine) resume() error {
	if e.state != StatePaused {
		return ErrNotPaused
	}
	if err := e.transport.Resume(e.conn); err != nil {
		return fmt.Errorf("resuming playback: %w", err)
	}
	e.state = StateStreaming
	return nil
}
