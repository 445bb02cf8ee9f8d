package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// Connect attempt outcomes reported to Metrics.
const (
	connectOK     = "ok"
	connectFailed = "failed"
)

// dialState tracks the single in-flight connection attempt.
type dialState struct {
	seq     uint64
	channel snowflake.ID
	waiters []func(error)
}

// ensureConnected attaches the session to channel and calls done on the loop
// once the attempt settles. explicit marks a user-requested join: pending
// entries are re-pinned to channel so playback follows the bot.
func (e *Engine) ensureConnected(channel snowflake.ID, explicit bool, done func(error)) {
	if explicit {
		e.queue.Repin(channel)
	}

	if e.conn != nil && e.conn.ChannelID() == channel {
		done(nil)
		return
	}

	waiters := []func(error){done}
	if e.dial != nil {
		if e.dial.channel == channel {
			e.dial.waiters = append(e.dial.waiters, done)
			return
		}
		e.logger.Info("Retargeting voice connection",
			zap.Stringer("from", e.dial.channel),
			zap.Stringer("to", channel))
		waiters = append(e.dial.waiters, done)
		e.dial = nil
	}

	var previous VoiceConnection
	if e.conn != nil {
		previous = e.releaseForMove()
		if explicit {
			e.queue.Repin(channel)
		}
	}

	e.startDial(channel, previous, waiters)
}

// releaseForMove detaches the current connection for a channel move. A track in
// progress is stopped and put back at the head of the queue.
func (e *Engine) releaseForMove() VoiceConnection {
	if e.state != StateIdle && e.nowPlaying != nil {
		e.playGen++
		if e.state == StateStreaming || e.state == StatePaused {
			if err := e.transport.Stop(e.conn); err != nil {
				e.logger.Debug("Failed to stop playback before move", zap.Error(err))
			}
		}
		e.queue.PushFront(*e.nowPlaying)
		e.state = StateIdle
		e.nowPlaying = nil
		e.skipRequested = false
	}

	conn := e.conn
	e.conn = nil
	return conn
}

func (e *Engine) startDial(channel snowflake.ID, previous VoiceConnection, waiters []func(error)) {
	e.dialSeq++
	seq := e.dialSeq
	e.dial = &dialState{seq: seq, channel: channel, waiters: waiters}

	ctx := e.runCtx
	go func() {
		if previous != nil {
			if err := e.transport.Disconnect(ctx, previous); err != nil {
				e.logger.Warn("Failed to leave previous voice channel",
					zap.Stringer("channel", previous.ChannelID()),
					zap.Error(err))
			}
		}

		conn, err := e.dialWithRetry(ctx, channel)
		if !e.post(func() { e.onDialed(seq, conn, err) }) && conn != nil {
			e.disconnectAsync(conn)
		}
	}()
}

func (e *Engine) dialWithRetry(ctx context.Context, channel snowflake.ID) (VoiceConnection, error) {
	attempts := e.config.Connection.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultConnectAttempts
	}

	var lastErr error
	attempt := 0
	for attempt < attempts {
		attempt++

		conn, err := e.transport.Connect(ctx, channel)
		if err == nil {
			e.metrics.RecordConnectAttempt(connectOK)
			e.logger.Info("Connected to voice channel",
				zap.Stringer("channel", channel),
				zap.Int("attempt", attempt))
			return conn, nil
		}

		lastErr = err
		e.metrics.RecordConnectAttempt(connectFailed)
		e.logger.Warn("Voice connection attempt failed",
			zap.Stringer("channel", channel),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if errors.Is(err, ErrPermanent) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
		case <-time.After(e.config.Connection.RetryDelay):
		}
	}

	return nil, fmt.Errorf("%w: channel %s after %d attempt(s): %w", ErrConnect, channel, attempt, lastErr)
}

func (e *Engine) onDialed(seq uint64, conn VoiceConnection, err error) {
	if e.dial == nil || e.dial.seq != seq {
		if conn != nil {
			e.disconnectAsync(conn)
		}
		return
	}

	waiters := e.dial.waiters
	e.dial = nil
	if err == nil {
		e.conn = conn
	}

	for _, w := range waiters {
		w(err)
	}
}

func (e *Engine) disconnectAsync(conn VoiceConnection) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.transport.Disconnect(ctx, conn); err != nil {
			e.logger.Debug("Failed to drop stale voice connection", zap.Error(err))
		}
	}()
}

// detach ends the session: pending dials are abandoned, playback is stopped and
// the queue is cleared. It returns the connection for the caller to tear down.
func (e *Engine) detach() VoiceConnection {
	if e.dial != nil {
		waiters := e.dial.waiters
		e.dial = nil
		for _, w := range waiters {
			w(ErrNotConnected)
		}
	}

	e.playGen++
	if e.conn != nil && (e.state == StateStreaming || e.state == StatePaused) {
		if err := e.transport.Stop(e.conn); err != nil {
			e.logger.Debug("Failed to stop playback on disconnect", zap.Error(err))
		}
	}

	e.state = StateIdle
	e.nowPlaying = nil
	e.skipRequested = false
	e.queue.Clear()
	e.metrics.SetQueueLength(0)

	conn := e.conn
	e.conn = nil
	return conn
}
