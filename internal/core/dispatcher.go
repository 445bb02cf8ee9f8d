package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"marmobot/internal/chat"
	"marmobot/internal/flood"
	"marmobot/internal/i18n"
)

// Command outcomes reported to Metrics.
const (
	commandOK       = "ok"
	commandRejected = "rejected"
	commandFailed   = "failed"
	commandFlooded  = "flooded"
)

const announceTimeout = 10 * time.Second

type commandHandler func(ctx context.Context, cmd *chat.Command, args []string) error

// Dispatcher turns chat commands into engine operations and reports the
// results back to the chat. It also announces playback events.
type Dispatcher struct {
	config    *Config
	frontend  chat.Frontend
	engine    *Engine
	resolver  *SongResolver
	pager     *QueuePager
	floodgate *flood.Floodgate
	localizer *i18n.Localizer
	metrics   Metrics
	logger    *zap.Logger

	handlers map[string]commandHandler

	announceMu      sync.RWMutex
	announceChannel snowflake.ID
}

// NewDispatcher creates a dispatcher. floodgate and metrics may be nil.
func NewDispatcher(
	config *Config,
	frontend chat.Frontend,
	engine *Engine,
	resolver *SongResolver,
	floodgate *flood.Floodgate,
	metrics Metrics,
	logger *zap.Logger,
) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	localizer := i18n.NewLocalizer(config.App.Language)

	d := &Dispatcher{
		config:          config,
		frontend:        frontend,
		engine:          engine,
		resolver:        resolver,
		pager:           NewQueuePager(frontend, localizer, config.Queue.PageTimeout, logger),
		floodgate:       floodgate,
		localizer:       localizer,
		metrics:         metrics,
		logger:          logger,
		announceChannel: config.Discord.CommandChannelID,
	}

	d.handlers = map[string]commandHandler{
		CmdPlay:       d.handlePlay,
		CmdPlayNext:   d.handlePlayNext,
		CmdQueue:      d.handleQueue,
		CmdSkip:       d.handleSkip,
		CmdShuffle:    d.handleShuffle,
		CmdNowPlaying: d.handleNowPlaying,
		CmdJoin:       d.handleJoin,
		CmdPause:      d.handlePause,
		CmdResume:     d.handleResume,
		CmdMove:       d.handleMove,
		CmdDisconnect: d.handleDisconnect,
		CmdHelp:       d.handleHelp,
	}

	engine.SetPlaybackListener(d)
	return d
}

// Start connects the frontend and processes commands until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting command dispatcher",
		zap.String("prefix", d.config.Discord.CommandPrefix),
		zap.String("language", d.config.App.Language))

	if err := d.frontend.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat frontend: %w", err)
	}

	return d.frontend.Listen(ctx,
		func(cmd *chat.Command) {
			go d.HandleCommand(ctx, cmd)
		},
		d.handleReaction,
	)
}

func (d *Dispatcher) handleReaction(ev *chat.ReactionEvent) {
	d.pager.HandleReaction(ev)
}

// HandleCommand runs one chat command to completion.
func (d *Dispatcher) HandleCommand(ctx context.Context, cmd *chat.Command) {
	parsed, ok := ParseCommand(d.config.Discord.CommandPrefix, cmd.Text)
	if !ok {
		return
	}

	d.logger.Debug("Received command",
		zap.String("command", parsed.Name),
		zap.Strings("args", parsed.Args),
		zap.String("author", cmd.AuthorName),
		zap.Stringer("channel", cmd.ChannelID))

	if !parsed.Known {
		d.metrics.RecordCommand(commandUnknown, commandRejected)
		return
	}

	if d.floodgate != nil && !d.floodgate.Allow(cmd.GuildID, cmd.AuthorID) {
		d.logger.Info("Dropping flooded command",
			zap.String("command", parsed.Name),
			zap.Stringer("author", cmd.AuthorID))
		d.metrics.RecordCommand(parsed.Name, commandFlooded)
		return
	}

	if !d.checkChannel(ctx, cmd) {
		d.metrics.RecordCommand(parsed.Name, commandRejected)
		return
	}

	// help only requires the command channel.
	if parsed.Name != CmdHelp {
		if !d.checkVoice(ctx, cmd) || !d.checkBotChannel(ctx, cmd, parsed.Name) {
			d.metrics.RecordCommand(parsed.Name, commandRejected)
			return
		}
	}

	d.rememberChannel(cmd.ChannelID)

	err := d.handlers[parsed.Name](ctx, cmd, parsed.Args)
	switch {
	case err == nil:
		d.metrics.RecordCommand(parsed.Name, commandOK)
	case IsUserError(err):
		d.metrics.RecordCommand(parsed.Name, commandRejected)
		d.reply(ctx, cmd.ChannelID, d.errorMessage(err))
	default:
		d.metrics.RecordCommand(parsed.Name, commandFailed)
		d.logger.Error("Command failed",
			zap.String("command", parsed.Name),
			zap.String("author", cmd.AuthorName),
			zap.Error(err))
		d.reply(ctx, cmd.ChannelID, d.localizer.T("error.generic"))
	}
}

func (d *Dispatcher) checkChannel(ctx context.Context, cmd *chat.Command) bool {
	allowed := d.config.Discord.CommandChannelID
	if allowed != 0 && cmd.ChannelID != allowed {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("error.wrong_channel"))
		return false
	}
	return true
}

func (d *Dispatcher) checkVoice(ctx context.Context, cmd *chat.Command) bool {
	if cmd.VoiceChannelID == nil {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("error.not_in_voice"))
		return false
	}
	return true
}

// checkBotChannel rejects commands from users outside the bot's voice channel
// while it plays, and most commands while the bot is not connected.
func (d *Dispatcher) checkBotChannel(ctx context.Context, cmd *chat.Command, name string) bool {
	status, err := d.engine.Status(ctx)
	if err != nil {
		d.logger.Warn("Failed to read session status", zap.Error(err))
		return false
	}

	playing := status.State == StateResolving || status.State == StateStreaming
	if playing && status.Connected && status.ChannelID != *cmd.VoiceChannelID && name != CmdJoin {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("error.not_same_channel", d.config.Discord.BotName))
		return false
	}

	if !status.Connected && !worksDisconnected(name) {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("error.bot_not_connected", d.config.Discord.BotName))
		return false
	}
	return true
}

func (d *Dispatcher) handlePlay(ctx context.Context, cmd *chat.Command, args []string) error {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("play.usage", d.config.Discord.CommandPrefix))
		return nil
	}

	if d.resolver.IsPlaylist(query) {
		return d.playPlaylist(ctx, cmd, query)
	}

	track, err := d.resolver.Resolve(ctx, query, cmd.AuthorName)
	if err != nil {
		return err
	}

	position, err := d.engine.Enqueue(ctx, track, *cmd.VoiceChannelID, cmd.AuthorID)
	if err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("play.added", track.Title, position))
	return nil
}

// playPlaylist queues tracks as they are expanded so playback can start with
// the first one.
func (d *Dispatcher) playPlaylist(ctx context.Context, cmd *chat.Command, url string) error {
	d.reply(ctx, cmd.ChannelID, d.localizer.T("play.processing_playlist"))

	it := d.resolver.ResolvePlaylist(url, cmd.AuthorName)
	added := 0
	for it.Next(ctx) {
		if _, err := d.engine.Enqueue(ctx, it.Track(), *cmd.VoiceChannelID, cmd.AuthorID); err != nil {
			return err
		}
		added++
	}

	if err := it.Err(); err != nil {
		if added == 0 {
			return err
		}
		d.logger.Warn("Playlist expansion stopped early",
			zap.String("playlist", url),
			zap.Int("added", added),
			zap.Error(err))
	}
	if added == 0 {
		return fmt.Errorf("%w: %d items could not be resolved", ErrPlaylistEmpty, it.Skipped())
	}

	d.logger.Info("Playlist queued",
		zap.String("playlist", url),
		zap.Int("added", added),
		zap.Int("skipped", it.Skipped()))
	d.reply(ctx, cmd.ChannelID, d.localizer.T("play.playlist_added", added))
	return nil
}

func (d *Dispatcher) handlePlayNext(ctx context.Context, cmd *chat.Command, args []string) error {
	query := strings.Join(args, " ")
	if d.resolver.IsPlaylist(query) {
		return ErrPlaylistInsert
	}

	length, err := d.engine.QueueLength(ctx)
	if err != nil {
		return err
	}
	if length == 0 {
		return d.handlePlay(ctx, cmd, args)
	}

	track, err := d.resolver.Resolve(ctx, query, cmd.AuthorName)
	if err != nil {
		return err
	}

	err = d.engine.InsertNext(ctx, track, *cmd.VoiceChannelID, cmd.AuthorID)
	if errors.Is(err, ErrNotSupported) {
		// The queue drained while resolving.
		position, enqErr := d.engine.Enqueue(ctx, track, *cmd.VoiceChannelID, cmd.AuthorID)
		if enqErr != nil {
			return enqErr
		}
		d.reply(ctx, cmd.ChannelID, d.localizer.T("play.added", track.Title, position))
		return nil
	}
	if err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("playnext.added", track.Title))
	return nil
}

func (d *Dispatcher) handleQueue(ctx context.Context, cmd *chat.Command, _ []string) error {
	entries, err := d.engine.HydratedSnapshot(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("queue.empty"))
		return nil
	}
	pages := BuildPages(entries, d.config.Queue.PageCharBudget)
	return d.pager.Show(ctx, cmd.ChannelID, cmd.AuthorID, pages)
}

func (d *Dispatcher) handleSkip(ctx context.Context, cmd *chat.Command, _ []string) error {
	if err := d.engine.Skip(ctx); err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("skip.done"))
	return nil
}

func (d *Dispatcher) handleShuffle(ctx context.Context, cmd *chat.Command, _ []string) error {
	if err := d.engine.Shuffle(ctx); err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("shuffle.done"))
	return nil
}

func (d *Dispatcher) handleNowPlaying(ctx context.Context, cmd *chat.Command, _ []string) error {
	entry, ok, err := d.engine.NowPlaying(ctx)
	if err != nil {
		return err
	}
	if !ok {
		d.reply(ctx, cmd.ChannelID, d.localizer.T("nowplaying.none"))
		return nil
	}
	_, err = d.frontend.SendEmbed(ctx, cmd.ChannelID, d.nowPlayingEmbed(entry), d.config.Queue.ReplyDeleteAfter)
	return err
}

func (d *Dispatcher) handleJoin(ctx context.Context, cmd *chat.Command, _ []string) error {
	if err := d.engine.Join(ctx, *cmd.VoiceChannelID); err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("join.done", d.config.Discord.BotName))
	return nil
}

func (d *Dispatcher) handlePause(ctx context.Context, cmd *chat.Command, _ []string) error {
	if err := d.engine.Pause(ctx); err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("pause.done", d.config.Discord.BotName))
	return nil
}

func (d *Dispatcher) handleResume(ctx context.Context, cmd *chat.Command, _ []string) error {
	if err := d.engine.Resume(ctx); err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("resume.done", d.config.Discord.BotName))
	return nil
}

func (d *Dispatcher) handleMove(ctx context.Context, cmd *chat.Command, args []string) error {
	from, to, err := ParseMoveArgs(args)
	if err != nil {
		return err
	}

	// Read the title first so the reply names the moved track.
	snapshot, err := d.engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := d.engine.Move(ctx, from, to); err != nil {
		return err
	}

	title := ""
	if from <= len(snapshot) {
		title = snapshot[from-1].Track.Title
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("move.done", title, to))
	return nil
}

func (d *Dispatcher) handleDisconnect(ctx context.Context, cmd *chat.Command, _ []string) error {
	if err := d.engine.Disconnect(ctx); err != nil {
		return err
	}
	d.reply(ctx, cmd.ChannelID, d.localizer.T("disconnect.done", d.config.Discord.BotName))
	return nil
}

func (d *Dispatcher) handleHelp(ctx context.Context, cmd *chat.Command, _ []string) error {
	helpURL := d.config.App.HelpURL
	if helpURL == "" {
		helpURL = DefaultHelpURL
	}
	_, err := d.frontend.SendEmbed(ctx, cmd.ChannelID, &chat.Embed{
		Title: d.localizer.T("help.title"),
		URL:   helpURL,
	}, d.config.Queue.ReplyDeleteAfter)
	return err
}

// errorMessage maps a user-facing error to a localized reply.
func (d *Dispatcher) errorMessage(err error) string {
	bot := d.config.Discord.BotName
	switch {
	case errors.Is(err, ErrMovePosition):
		return d.localizer.T("error.move_position")
	case errors.Is(err, ErrMoveRange):
		return d.localizer.T("error.move_range")
	case errors.Is(err, ErrMoveArgs):
		return d.localizer.T("error.move_args")
	case errors.Is(err, ErrPlaylistInsert):
		return d.localizer.T("error.playnext_playlist")
	case errors.Is(err, ErrPlaylistUnavailable):
		return d.localizer.T("error.playlist_unavailable")
	case errors.Is(err, ErrPlaylistEmpty):
		return d.localizer.T("error.playlist_empty")
	case errors.Is(err, ErrUnsupportedMedia), errors.Is(err, ErrResolution):
		return d.localizer.T("error.resolve_failed")
	case errors.Is(err, ErrEmptyQueue):
		return d.localizer.T("queue.empty")
	case errors.Is(err, ErrNotPlaying):
		return d.localizer.T("error.not_playing", bot)
	case errors.Is(err, ErrNotPaused):
		return d.localizer.T("error.not_paused", bot)
	case errors.Is(err, ErrNotConnected):
		return d.localizer.T("error.bot_not_connected", bot)
	case errors.Is(err, ErrConnect):
		return d.localizer.T("error.connect_failed", bot)
	default:
		return d.localizer.T("error.generic")
	}
}

func (d *Dispatcher) nowPlayingEmbed(entry QueueEntry) *chat.Embed {
	t := entry.Track
	return &chat.Embed{
		ThumbnailURL: t.ThumbnailURL,
		Fields: []chat.EmbedField{
			{Name: d.localizer.T("nowplaying.current"), Value: fmt.Sprintf("[%s](%s)", t.Title, t.DisplayURL), Inline: true},
			{Name: d.localizer.T("nowplaying.duration"), Value: FormatDuration(t.Duration), Inline: true},
			{Name: d.localizer.T("nowplaying.added_by"), Value: t.Author, Inline: true},
		},
	}
}

func (d *Dispatcher) reply(ctx context.Context, channelID snowflake.ID, text string) {
	if _, err := d.frontend.SendText(ctx, channelID, text, d.config.Queue.ReplyDeleteAfter); err != nil {
		d.logger.Warn("Failed to send reply",
			zap.Stringer("channel", channelID),
			zap.Error(err))
	}
}

func (d *Dispatcher) rememberChannel(channelID snowflake.ID) {
	if d.config.Discord.CommandChannelID != 0 {
		return
	}
	d.announceMu.Lock()
	d.announceChannel = channelID
	d.announceMu.Unlock()
}

func (d *Dispatcher) announceTarget() (snowflake.ID, bool) {
	d.announceMu.RLock()
	defer d.announceMu.RUnlock()
	return d.announceChannel, d.announceChannel != 0
}

// announce sends off the engine loop; listener callbacks must not block it.
func (d *Dispatcher) announce(send func(ctx context.Context, channelID snowflake.ID) error) {
	channelID, ok := d.announceTarget()
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
		defer cancel()
		if err := send(ctx, channelID); err != nil {
			d.logger.Warn("Failed to send announcement", zap.Error(err))
		}
	}()
}

// OnTrackStarted announces the new track.
func (d *Dispatcher) OnTrackStarted(entry QueueEntry) {
	if !d.config.Playback.AnnounceNowPlaying {
		return
	}
	embed := d.nowPlayingEmbed(entry)
	d.announce(func(ctx context.Context, channelID snowflake.ID) error {
		_, err := d.frontend.SendEmbed(ctx, channelID, embed, d.config.Queue.ReplyDeleteAfter)
		return err
	})
}

// OnTrackFailed reports a track dropped before it could play.
func (d *Dispatcher) OnTrackFailed(entry QueueEntry, _ error) {
	text := d.localizer.T("error.track_failed", entry.Track.DisplayURL)
	if entry.Track.Title != "" {
		text = d.localizer.T("error.track_failed", entry.Track.Title)
	}
	d.announce(func(ctx context.Context, channelID snowflake.ID) error {
		_, err := d.frontend.SendText(ctx, channelID, text, d.config.Queue.ReplyDeleteAfter)
		return err
	})
}

// OnConnectFailed reports that the bot could not reach a voice channel.
func (d *Dispatcher) OnConnectFailed(_ snowflake.ID, _ error) {
	text := d.localizer.T("error.connect_failed", d.config.Discord.BotName)
	d.announce(func(ctx context.Context, channelID snowflake.ID) error {
		_, err := d.frontend.SendText(ctx, channelID, text, d.config.Queue.ReplyDeleteAfter)
		return err
	})
}
