// Package flood limits how fast each member of a guild can issue bot commands.
package flood

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	// windowDuration is the sliding window for the per-minute limit
	windowDuration = 60 * time.Second
	// cleanupInterval is how often idle members are forgotten
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a member may stay silent before being forgotten
	idleTimeout = 10 * time.Minute
)

type memberKey struct {
	guild snowflake.ID
	user  snowflake.ID
}

// Floodgate rate limits commands per guild member with a sliding window.
type Floodgate struct {
	limitPerMinute int
	entries        map[memberKey]*memberEntry
	mutex          sync.Mutex
	now            func() time.Time
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

type memberEntry struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// New creates a Floodgate allowing limitPerMinute commands per member.
// A non-positive limit blocks every command.
func New(limitPerMinute int) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		entries:        make(map[memberKey]*memberEntry),
		now:            time.Now,
		stopCleanup:    make(chan struct{}),
	}

	go fg.cleanup()

	return fg
}

// Stop ends the background cleanup. It is safe to call more than once.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() { close(fg.stopCleanup) })
}

// Allow records a command from userID in guildID and reports whether it is
// within the limit. Blocked commands do not count against the window.
func (fg *Floodgate) Allow(guildID, userID snowflake.ID) bool {
	key := memberKey{guild: guildID, user: userID}

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	now := fg.now()
	entry, exists := fg.entries[key]
	if !exists {
		entry = &memberEntry{}
		fg.entries[key] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-windowDuration)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= fg.limitPerMinute {
		return false
	}

	entry.timestamps = append(entry.timestamps, now)
	return true
}

func (fg *Floodgate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// GetStats returns statistics about the floodgate for monitoring.
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActiveMembers:  len(fg.entries),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats contains floodgate statistics.
type Stats struct {
	ActiveMembers  int `json:"active_members"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
