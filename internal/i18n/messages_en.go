package i18n

// englishMessages contains all English translations.
var englishMessages = map[string]string{
	// Error messages
	"error.generic":              "Something went wrong. Please try again.",
	"error.wrong_channel":        "This channel is not accepting commands.",
	"error.not_in_voice":         "You are not in a voice channel.",
	"error.not_same_channel":     "You are not in the same voice channel as %s.",
	"error.bot_not_connected":    "%s is not in a voice channel.",
	"error.not_playing":          "%s is not playing anything.",
	"error.not_paused":           "%s is not paused.",
	"error.connect_failed":       "%s could not join the voice channel.",
	"error.resolve_failed":       "Couldn't download that song.",
	"error.playlist_unavailable": "Couldn't open that playlist, it is private or does not exist!",
	"error.playlist_empty":       "That playlist has no playable songs!",
	"error.playnext_playlist":    "This command does not take playlists, use play for that.",
	"error.move_args":            "Whoa, this command takes one or two positions at most.",
	"error.move_position":        "Positions must be greater than 0!",
	"error.move_range":           "There is no song at that position.",
	"error.track_failed":         "Skipping %s, it could not be played.",

	// Play messages
	"play.usage":               "Usage: %splay <url or search text>",
	"play.added":               "Added %s to the queue at position %d ヾ(•ω•`)o",
	"play.processing_playlist": "Processing the playlist...",
	"play.playlist_added":      "%d songs added to the queue ヾ(•ω•`)o",
	"playnext.added":           "Added %s to the front of the queue ヾ(•ω•`)o",

	// Queue messages
	"queue.title":       "Songs in queue",
	"queue.field_songs": "Songs",
	"queue.totals":      "**%d songs in queue | %s queue duration**",
	"queue.totals_one":  "**%d song in queue | %s queue duration**",
	"queue.footer":      "Page %d/%d",
	"queue.empty":       "There is no music in the queue right now 💔",

	// Playback messages
	"skip.done":           "Skipped.",
	"shuffle.done":        "Queue shuffled, it applies from the next song.",
	"pause.done":          "%s paused the song (╹ڡ╹ )",
	"resume.done":         "%s keeps playing ♪(´▽｀)",
	"move.done":           "%s moved to position %d! ✪ ω ✪",
	"join.done":           "%s joined your voice channel.",
	"disconnect.done":     "%s left the voice channel.",
	"nowplaying.none":     "Nothing is playing right now.",
	"nowplaying.current":  "Current song",
	"nowplaying.duration": "Duration",
	"nowplaying.added_by": "Added by",

	// Help
	"help.title": "Click here for the music bot command reference",
}
