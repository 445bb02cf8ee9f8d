// Package chat provides the interface between the bot and a chat platform.
package chat

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Command is a message addressed to the bot, as delivered by a frontend.
type Command struct {
	MessageID  string
	GuildID    snowflake.ID
	ChannelID  snowflake.ID
	AuthorID   snowflake.ID
	AuthorName string
	// VoiceChannelID is the voice channel the author is in, or nil.
	VoiceChannelID *snowflake.ID
	Text           string
}

// Reaction represents the emoji controls the bot understands.
type Reaction string

// Paging controls attached to multi-page queue views.
const (
	ReactionFirst    Reaction = "⏪"
	ReactionPrevious Reaction = "⬅"
	ReactionNext     Reaction = "➡"
	ReactionLast     Reaction = "⏩"
)

// PagingReactions lists the paging controls in display order.
var PagingReactions = []Reaction{ReactionFirst, ReactionPrevious, ReactionNext, ReactionLast}

// ReactionEvent is a reaction added to a message by a user.
type ReactionEvent struct {
	MessageID string
	ChannelID snowflake.ID
	UserID    snowflake.ID
	Emoji     Reaction
}

// EmbedField is a titled block of an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich message.
type Embed struct {
	Title        string
	Description  string
	URL          string
	ThumbnailURL string
	Fields       []EmbedField
	Footer       string
}

// Frontend defines the unified interface for chat integrations.
type Frontend interface {
	// Start connects to the platform.
	Start(ctx context.Context) error

	// Listen delivers commands and reactions until ctx is done.
	Listen(ctx context.Context, onCommand func(*Command), onReaction func(*ReactionEvent)) error

	// SendText sends a message. A positive deleteAfter removes it after that delay.
	SendText(ctx context.Context, channelID snowflake.ID, text string, deleteAfter time.Duration) (string, error)

	// SendEmbed sends a rich message and returns its ID.
	SendEmbed(ctx context.Context, channelID snowflake.ID, embed *Embed, deleteAfter time.Duration) (string, error)

	// EditEmbed replaces the content of a previously sent rich message.
	EditEmbed(ctx context.Context, channelID snowflake.ID, messageID string, embed *Embed) error

	// DeleteMessage deletes a message by its ID.
	DeleteMessage(ctx context.Context, channelID snowflake.ID, messageID string) error

	// AddReactions attaches reaction controls to a message, in order.
	AddReactions(ctx context.Context, channelID snowflake.ID, messageID string, reactions ...Reaction) error

	// RemoveReaction removes one user's reaction from a message.
	RemoveReaction(ctx context.Context, channelID snowflake.ID, messageID string, r Reaction, userID snowflake.ID) error
}
