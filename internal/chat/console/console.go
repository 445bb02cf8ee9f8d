// Package console provides a line-oriented chat frontend on stdin/stdout.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"marmobot/internal/chat"
)

const (
	reactCommand = "/react"
	voiceCommand = "/voice"
	shortIDLen   = 8
)

// reactionNames lets the operator type a word instead of an emoji.
var reactionNames = map[string]chat.Reaction{
	"first": chat.ReactionFirst,
	"prev":  chat.ReactionPrevious,
	"next":  chat.ReactionNext,
	"last":  chat.ReactionLast,
}

// Config identifies the simulated guild member typing into the console.
type Config struct {
	GuildID        snowflake.ID
	ChannelID      snowflake.ID
	UserID         snowflake.ID
	UserName       string
	VoiceChannelID snowflake.ID
}

// Frontend implements chat.Frontend over an io.Reader and io.Writer.
type Frontend struct {
	config *Config
	in     io.Reader
	out    io.Writer
	logger *zap.Logger

	outMutex sync.Mutex

	mutex    sync.Mutex
	voice    snowflake.ID
	messages map[string]struct{}
}

// NewFrontend creates a console frontend reading commands from in.
func NewFrontend(config *Config, in io.Reader, out io.Writer, logger *zap.Logger) *Frontend {
	return &Frontend{
		config:   config,
		in:       in,
		out:      out,
		logger:   logger,
		voice:    config.VoiceChannelID,
		messages: make(map[string]struct{}),
	}
}

// Start prints a short usage banner.
func (f *Frontend) Start(_ context.Context) error {
	f.logger.Info("Starting console frontend",
		zap.Stringer("channel", f.config.ChannelID),
		zap.Stringer("voice_channel", f.config.VoiceChannelID))
	f.println("console ready: type commands, " +
		reactCommand + " <message> <first|prev|next|last>, " +
		voiceCommand + " <channel|off>")
	return nil
}

// Listen reads lines until ctx is done or the input ends.
func (f *Frontend) Listen(ctx context.Context, onCommand func(*chat.Command), onReaction func(*chat.ReactionEvent)) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errs:
					if err != nil {
						return fmt.Errorf("failed to read console input: %w", err)
					}
				default:
				}
				f.logger.Info("Console input closed")
				return nil
			}
			f.handleLine(line, onCommand, onReaction)
		}
	}
}

func (f *Frontend) handleLine(line string, onCommand func(*chat.Command), onReaction func(*chat.ReactionEvent)) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case reactCommand:
		if ev, ok := f.parseReaction(fields[1:]); ok {
			onReaction(ev)
		}
		return
	case voiceCommand:
		f.switchVoice(fields[1:])
		return
	}

	onCommand(f.command(line))
}

func (f *Frontend) command(text string) *chat.Command {
	f.mutex.Lock()
	voice := f.voice
	f.mutex.Unlock()

	cmd := &chat.Command{
		MessageID:  uuid.NewString(),
		GuildID:    f.config.GuildID,
		ChannelID:  f.config.ChannelID,
		AuthorID:   f.config.UserID,
		AuthorName: f.config.UserName,
		Text:       text,
	}
	if voice != 0 {
		cmd.VoiceChannelID = &voice
	}
	return cmd
}

func (f *Frontend) parseReaction(args []string) (*chat.ReactionEvent, bool) {
	if len(args) != 2 {
		f.println("usage: " + reactCommand + " <message> <first|prev|next|last>")
		return nil, false
	}

	msgID, ok := f.resolveMessageID(args[0])
	if !ok {
		f.println("unknown message " + args[0])
		return nil, false
	}

	emoji, ok := reactionNames[strings.ToLower(args[1])]
	if !ok {
		emoji = chat.Reaction(args[1])
	}
	return &chat.ReactionEvent{
		MessageID: msgID,
		ChannelID: f.config.ChannelID,
		UserID:    f.config.UserID,
		Emoji:     emoji,
	}, true
}

// resolveMessageID accepts a full id or the short prefix printed with each message.
func (f *Frontend) resolveMessageID(ref string) (string, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.messages[ref]; ok {
		return ref, true
	}
	for id := range f.messages {
		if strings.HasPrefix(id, ref) {
			return id, true
		}
	}
	return "", false
}

func (f *Frontend) switchVoice(args []string) {
	if len(args) != 1 {
		f.println("usage: " + voiceCommand + " <channel|off>")
		return
	}

	var voice snowflake.ID
	if args[0] != "off" {
		id, err := snowflake.Parse(args[0])
		if err != nil {
			f.println("invalid channel " + args[0])
			return
		}
		voice = id
	}

	f.mutex.Lock()
	f.voice = voice
	f.mutex.Unlock()
	if voice == 0 {
		f.println("left voice")
		return
	}
	f.println("now in voice channel " + voice.String())
}

// SendText prints text and returns the new message id.
func (f *Frontend) SendText(_ context.Context, channelID snowflake.ID, text string, deleteAfter time.Duration) (string, error) {
	id := f.newMessage(channelID, deleteAfter)
	f.println(fmt.Sprintf("[%s] %s", shortID(id), text))
	return id, nil
}

// SendEmbed prints a rendered embed and returns the new message id.
func (f *Frontend) SendEmbed(_ context.Context, channelID snowflake.ID, embed *chat.Embed, deleteAfter time.Duration) (string, error) {
	id := f.newMessage(channelID, deleteAfter)
	f.println(fmt.Sprintf("[%s]\n%s", shortID(id), RenderEmbed(embed)))
	return id, nil
}

// EditEmbed reprints an embed under its existing message id.
func (f *Frontend) EditEmbed(_ context.Context, _ snowflake.ID, messageID string, embed *chat.Embed) error {
	if !f.known(messageID) {
		return fmt.Errorf("unknown message %s", messageID)
	}
	f.println(fmt.Sprintf("[%s edited]\n%s", shortID(messageID), RenderEmbed(embed)))
	return nil
}

// DeleteMessage forgets a message.
func (f *Frontend) DeleteMessage(_ context.Context, _ snowflake.ID, messageID string) error {
	f.mutex.Lock()
	_, ok := f.messages[messageID]
	delete(f.messages, messageID)
	f.mutex.Unlock()
	if ok {
		f.logger.Debug("Console message deleted", zap.String("message", messageID))
	}
	return nil
}

// AddReactions prints the reactions available on a message.
func (f *Frontend) AddReactions(_ context.Context, _ snowflake.ID, messageID string, reactions ...chat.Reaction) error {
	if !f.known(messageID) {
		return fmt.Errorf("unknown message %s", messageID)
	}
	names := make([]string, len(reactions))
	for i, r := range reactions {
		names[i] = string(r)
	}
	f.println(fmt.Sprintf("[%s] reactions: %s", shortID(messageID), strings.Join(names, " ")))
	return nil
}

// RemoveReaction is a no-op: console reactions are not sticky.
func (f *Frontend) RemoveReaction(context.Context, snowflake.ID, string, chat.Reaction, snowflake.ID) error {
	return nil
}

func (f *Frontend) newMessage(channelID snowflake.ID, deleteAfter time.Duration) string {
	id := uuid.NewString()
	f.mutex.Lock()
	f.messages[id] = struct{}{}
	f.mutex.Unlock()

	if deleteAfter > 0 {
		time.AfterFunc(deleteAfter, func() {
			_ = f.DeleteMessage(context.Background(), channelID, id)
		})
	}
	return id
}

func (f *Frontend) known(messageID string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, ok := f.messages[messageID]
	return ok
}

func (f *Frontend) println(s string) {
	f.outMutex.Lock()
	defer f.outMutex.Unlock()
	if _, err := fmt.Fprintln(f.out, s); err != nil {
		f.logger.Warn("Failed to write console output", zap.Error(err))
	}
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// RenderEmbed formats an embed as plain text.
func RenderEmbed(embed *chat.Embed) string {
	var b strings.Builder
	if embed.Title != "" {
		b.WriteString("== " + embed.Title + " ==\n")
	}
	if embed.URL != "" {
		b.WriteString(embed.URL + "\n")
	}
	if embed.Description != "" {
		b.WriteString(embed.Description + "\n")
	}
	for _, field := range embed.Fields {
		name := strings.TrimSpace(strings.ReplaceAll(field.Name, "\u200b", ""))
		if name != "" {
			b.WriteString(name + ": ")
		}
		b.WriteString(field.Value + "\n")
	}
	if embed.Footer != "" {
		b.WriteString("-- " + embed.Footer + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

var _ chat.Frontend = (*Frontend)(nil)
