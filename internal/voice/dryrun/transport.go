// Package dryrun provides a voice transport that simulates playback with
// timers, so the bot can run without a real voice connection.
package dryrun

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"marmobot/internal/core"
)

var errForeignConnection = errors.New("connection was not created by this transport")

type connection struct {
	channel snowflake.ID
}

func (c *connection) ChannelID() snowflake.ID { return c.channel }

// stream is one simulated track.
type stream struct {
	source     string
	onComplete func(error)
	timer      *time.Timer
	remaining  time.Duration
	startedAt  time.Time
	paused     bool
	done       bool
}

// Transport implements core.VoiceTransport.
type Transport struct {
	trackLength time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mutex   sync.Mutex
	streams map[*connection]*stream
}

// New creates a transport where every source plays for trackLength.
func New(trackLength time.Duration, logger *zap.Logger) *Transport {
	if trackLength <= 0 {
		trackLength = 3 * time.Minute
	}
	return &Transport{
		trackLength: trackLength,
		logger:      logger,
		now:         time.Now,
		streams:     make(map[*connection]*stream),
	}
}

// Connect attaches to channelID. Channel 0 fails permanently.
func (t *Transport) Connect(ctx context.Context, channelID snowflake.ID) (core.VoiceConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if channelID == 0 {
		return nil, fmt.Errorf("%w: no voice channel", core.ErrPermanent)
	}
	t.logger.Info("Joined voice channel", zap.Stringer("channel", channelID))
	return &connection{channel: channelID}, nil
}

// Disconnect ends any active stream and releases conn.
func (t *Transport) Disconnect(_ context.Context, conn core.VoiceConnection) error {
	c, err := t.own(conn)
	if err != nil {
		return err
	}

	t.mutex.Lock()
	s := t.streams[c]
	delete(t.streams, c)
	t.mutex.Unlock()

	if s != nil {
		t.finish(s, nil)
	}
	t.logger.Info("Left voice channel", zap.Stringer("channel", c.channel))
	return nil
}

// Play starts a simulated stream; onComplete runs once when it ends.
func (t *Transport) Play(conn core.VoiceConnection, source string, onComplete func(error)) error {
	c, err := t.own(conn)
	if err != nil {
		return err
	}
	if source == "" {
		return errors.New("empty source")
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	if s := t.streams[c]; s != nil && !s.done {
		return errors.New("already playing")
	}

	s := &stream{source: source, onComplete: onComplete, remaining: t.trackLength, startedAt: t.now()}
	s.timer = time.AfterFunc(t.trackLength, func() { t.expire(c, s) })
	t.streams[c] = s

	t.logger.Info("Streaming",
		zap.Stringer("channel", c.channel),
		zap.String("source", source),
		zap.Duration("length", t.trackLength))
	return nil
}

// Pause freezes the stream, keeping its remaining time.
func (t *Transport) Pause(conn core.VoiceConnection) error {
	s, err := t.active(conn)
	if err != nil {
		return err
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	if s.paused || s.done {
		return nil
	}
	if s.timer.Stop() {
		s.remaining -= t.now().Sub(s.startedAt)
		if s.remaining < 0 {
			s.remaining = 0
		}
	}
	s.paused = true
	return nil
}

// Resume continues a paused stream.
func (t *Transport) Resume(conn core.VoiceConnection) error {
	c, err := t.own(conn)
	if err != nil {
		return err
	}
	s, err := t.active(conn)
	if err != nil {
		return err
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !s.paused || s.done {
		return nil
	}
	s.paused = false
	s.startedAt = t.now()
	s.timer = time.AfterFunc(s.remaining, func() { t.expire(c, s) })
	return nil
}

// Stop ends the stream early and fires its completion. It is a no-op without one.
func (t *Transport) Stop(conn core.VoiceConnection) error {
	c, err := t.own(conn)
	if err != nil {
		return err
	}

	t.mutex.Lock()
	s := t.streams[c]
	delete(t.streams, c)
	t.mutex.Unlock()

	if s == nil {
		return nil
	}
	t.finish(s, nil)
	return nil
}

// IsPlaying reports whether conn has an unpaused stream.
func (t *Transport) IsPlaying(conn core.VoiceConnection) bool {
	s, err := t.active(conn)
	if err != nil {
		return false
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return !s.paused && !s.done
}

func (t *Transport) expire(c *connection, s *stream) {
	t.mutex.Lock()
	if t.streams[c] == s {
		delete(t.streams, c)
	}
	t.mutex.Unlock()
	t.finish(s, nil)
}

// finish stops s and fires its completion callback exactly once, off the caller's goroutine.
func (t *Transport) finish(s *stream, err error) {
	t.mutex.Lock()
	if s.done {
		t.mutex.Unlock()
		return
	}
	s.done = true
	s.timer.Stop()
	t.mutex.Unlock()

	t.logger.Debug("Stream finished", zap.String("source", s.source))
	if s.onComplete != nil {
		go s.onComplete(err)
	}
}

func (t *Transport) own(conn core.VoiceConnection) (*connection, error) {
	c, ok := conn.(*connection)
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPermanent, errForeignConnection)
	}
	return c, nil
}

func (t *Transport) active(conn core.VoiceConnection) (*stream, error) {
	c, err := t.own(conn)
	if err != nil {
		return nil, err
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	s := t.streams[c]
	if s == nil {
		return nil, core.ErrNotPlaying
	}
	return s, nil
}

var _ core.VoiceTransport = (*Transport)(nil)
