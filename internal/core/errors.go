package core

import "errors"

// Resolution errors. All are recoverable and reported to the requester.
var (
	ErrResolution          = errors.New("song could not be resolved")
	ErrUnsupportedMedia    = errors.New("media kind is not supported")
	ErrNoPlayableFormat    = errors.New("no playable format")
	ErrPlaylistUnavailable = errors.New("playlist is private or does not exist")
	ErrPlaylistEmpty       = errors.New("playlist has no items")
)

// Queue and command validation errors.
var (
	ErrValidation     = errors.New("invalid request")
	ErrMoveArgs       = errors.New("move takes one or two numeric positions")
	ErrMovePosition   = errors.New("move positions must be greater than zero")
	ErrMoveRange      = errors.New("move position is outside the queue")
	ErrNotSupported   = errors.New("operation not supported in current state")
	ErrEmptyQueue     = errors.New("queue is empty")
	ErrPlaylistInsert = errors.New("playlists cannot be inserted next")
)

// Playback and connection errors.
var (
	ErrNotConnected  = errors.New("not connected to a voice channel")
	ErrNotPlaying    = errors.New("nothing is playing")
	ErrNotPaused     = errors.New("playback is not paused")
	ErrConnect       = errors.New("voice connection failed")
	ErrPermanent     = errors.New("permanent transport error")
	ErrEngineStopped = errors.New("engine stopped")
)
