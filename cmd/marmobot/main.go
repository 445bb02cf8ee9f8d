// Package main provides the MarmoBot CLI application entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/disgoorg/snowflake/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"marmobot/internal/chat/console"
	"marmobot/internal/core"
	"marmobot/internal/flood"
	httpserver "marmobot/internal/http"
	"marmobot/internal/i18n"
	"marmobot/internal/store"
	"marmobot/internal/voice/dryrun"
	"marmobot/internal/youtube"
)

const (
	defaultServerHost    = "0.0.0.0"
	defaultConsoleUserID = 1000
	defaultConsoleVoice  = 2000
	defaultConsoleText   = 3000
	envPrefix            = "MARMOBOT"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "marmobot",
	Short: "MarmoBot - chat-triggered music queue",
	Long: `MarmoBot resolves songs and playlists requested in chat, keeps one ordered queue
and streams it into a voice channel, advancing automatically when a track ends.`,
	RunE: runMarmoBot,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-file", "", "optional log file, rotated by size")
	flags.Int("log-max-size-mb", defaults.Log.MaxSizeMB, "Maximum log file size before rotation")
	flags.Int("log-max-backups", defaults.Log.MaxBackups, "Rotated log files to keep")
	flags.Int("log-max-age-days", defaults.Log.MaxAgeDays, "Days to keep rotated log files")

	flags.Uint64("guild-id", 0, "Guild the bot serves (0 accepts any)")
	flags.Uint64("command-channel-id", 0, "Text channel accepting commands (0 accepts any)")
	flags.Uint64("default-voice-channel-id", 0, "Voice channel the console user starts in")
	flags.String("command-prefix", defaults.Discord.CommandPrefix, "Command prefix")
	flags.String("bot-name", defaults.Discord.BotName, "Bot display name")

	flags.Int("playlist-page-size", defaults.Resolver.PlaylistPageSize, "Playlist entries fetched per page")
	flags.Int("max-playlist-items", defaults.Resolver.MaxPlaylistItems, "Maximum tracks taken from one playlist")
	flags.Duration("source-ttl", defaults.Resolver.SourceTTL, "How long a resolved stream URL stays valid")
	flags.Duration("resolve-timeout", defaults.Resolver.RequestTimeout, "Timeout for a single provider request")
	flags.String("ytdlp-proxy", "", "Proxy passed to yt-dlp")

	flags.Int("connect-attempts", defaults.Connection.MaxAttempts, "Voice connection attempts before giving up")
	flags.Duration("connect-retry-delay", defaults.Connection.RetryDelay, "Delay between voice connection attempts")

	flags.Bool("announce-now-playing", defaults.Playback.AnnounceNowPlaying, "Announce each track as it starts")
	flags.Duration("dry-run-track-length", defaults.Playback.DryRunTrackLength,
		"Simulated playback length of each track")

	flags.Int("page-char-budget", defaults.Queue.PageCharBudget, "Characters per queue page")
	flags.Duration("page-timeout", defaults.Queue.PageTimeout, "How long a queue view accepts reactions")
	flags.Duration("reply-delete-after", defaults.Queue.ReplyDeleteAfter, "Delay before informational replies are deleted")

	flags.String("store-backend", defaults.Store.Backend, "Metadata store backend (sqlite, redis)")
	flags.String("sqlite-path", defaults.Store.SQLitePath, "SQLite database path")
	flags.String("redis-addr", defaults.Store.RedisAddr, "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("redis-key-prefix", defaults.Store.RedisKeyPrefix, "Redis key prefix")
	flags.Int("cache-size", defaults.Store.CacheSize, "In-memory metadata cache entries")
	flags.Int("bloom-capacity", defaults.Store.BloomCapacity, "Expected number of known songs")
	flags.Float64("bloom-false-positive", defaults.Store.BloomFalsePositive, "Known-song filter false positive rate")

	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")

	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Bot language (%s)", supportedLangs))
	flags.Int("flood-limit-per-minute", core.DefaultFloodLimitPerMinute, "Maximum commands per user per minute")
	flags.String("help-url", defaults.App.HelpURL, "Link sent by the help command")

	flags.Uint64("console-user-id", defaultConsoleUserID, "User id of the console operator")
	flags.String("console-user-name", "operator", "Display name of the console operator")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(&config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureDiscord(cfg)
	configureResolver(cfg)
	configureConnection(cfg)
	configurePlayback(cfg)
	configureQueue(cfg)
	configureStore(cfg)
	configureServer(cfg)
	configureLog(cfg)
	configureApp(cfg)

	return cfg
}

func configureDiscord(cfg *core.Config) {
	cfg.Discord.GuildID = snowflake.ID(viper.GetUint64("guild-id"))
	cfg.Discord.CommandChannelID = snowflake.ID(viper.GetUint64("command-channel-id"))
	cfg.Discord.DefaultVoiceChannel = snowflake.ID(viper.GetUint64("default-voice-channel-id"))
	cfg.Discord.CommandPrefix = viper.GetString("command-prefix")
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = core.DefaultCommandPrefix
	}
	cfg.Discord.BotName = viper.GetString("bot-name")
}

func configureResolver(cfg *core.Config) {
	cfg.Resolver.PlaylistPageSize = viper.GetInt("playlist-page-size")
	cfg.Resolver.MaxPlaylistItems = viper.GetInt("max-playlist-items")
	cfg.Resolver.SourceTTL = viper.GetDuration("source-ttl")
	cfg.Resolver.RequestTimeout = viper.GetDuration("resolve-timeout")
}

func configureConnection(cfg *core.Config) {
	cfg.Connection.MaxAttempts = viper.GetInt("connect-attempts")
	cfg.Connection.RetryDelay = viper.GetDuration("connect-retry-delay")
}

func configurePlayback(cfg *core.Config) {
	cfg.Playback.AnnounceNowPlaying = viper.GetBool("announce-now-playing")
	cfg.Playback.DryRunTrackLength = viper.GetDuration("dry-run-track-length")
}

func configureQueue(cfg *core.Config) {
	cfg.Queue.PageCharBudget = viper.GetInt("page-char-budget")
	cfg.Queue.PageTimeout = viper.GetDuration("page-timeout")
	cfg.Queue.ReplyDeleteAfter = viper.GetDuration("reply-delete-after")
}

func configureStore(cfg *core.Config) {
	cfg.Store.Backend = strings.ToLower(viper.GetString("store-backend"))
	cfg.Store.SQLitePath = viper.GetString("sqlite-path")
	cfg.Store.RedisAddr = viper.GetString("redis-addr")
	cfg.Store.RedisPassword = viper.GetString("redis-password")
	cfg.Store.RedisDB = viper.GetInt("redis-db")
	cfg.Store.RedisKeyPrefix = viper.GetString("redis-key-prefix")
	cfg.Store.CacheSize = viper.GetInt("cache-size")
	cfg.Store.BloomCapacity = viper.GetInt("bloom-capacity")
	cfg.Store.BloomFalsePositive = viper.GetFloat64("bloom-false-positive")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
}

func configureLog(cfg *core.Config) {
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.File = viper.GetString("log-file")
	cfg.Log.MaxSizeMB = viper.GetInt("log-max-size-mb")
	cfg.Log.MaxBackups = viper.GetInt("log-max-backups")
	cfg.Log.MaxAgeDays = viper.GetInt("log-max-age-days")
}

func configureApp(cfg *core.Config) {
	cfg.App.Language = viper.GetString("language")
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}

	supportedLanguages := i18n.GetSupportedLanguages()
	if !slices.Contains(supportedLanguages, cfg.App.Language) {
		fmt.Fprintf(os.Stderr, "Warning: Unsupported language '%s', falling back to '%s'. Supported languages: %s\n",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(supportedLanguages, ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}

	cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")
	if cfg.App.FloodLimitPerMinute <= 0 {
		cfg.App.FloodLimitPerMinute = core.DefaultFloodLimitPerMinute
	}

	cfg.App.HelpURL = viper.GetString("help-url")
	if cfg.App.HelpURL == "" {
		cfg.App.HelpURL = core.DefaultHelpURL
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildLogger writes JSON logs to stderr, leaving stdout to the console
// frontend. A configured log file gets a rotated copy.
func buildLogger(cfg *core.LogConfig) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	stderrCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		level,
	)

	logCore := stderrCore
	if cfg.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level)
		logCore = zapcore.NewTee(stderrCore, fileCore)
	}

	return zap.New(logCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func runMarmoBot(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting MarmoBot",
		zap.String("version", "1.0.0"),
		zap.String("store_backend", config.Store.Backend),
		zap.String("language", config.App.Language),
		zap.Stringer("command_channel", config.Discord.CommandChannelID))

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}

	return runServices(ctx, svcs)
}

type services struct {
	cache      *store.MetadataCache
	floodgate  *flood.Floodgate
	httpServer *httpserver.Server
	engine     *core.Engine
	dispatcher *core.Dispatcher
}

// engineStatus lets the HTTP server be built before the engine it reports on,
// since the engine records its metrics through that server.
type engineStatus struct {
	engine *core.Engine
}

func (s *engineStatus) Status(ctx context.Context) (core.SessionStatus, error) {
	if s.engine == nil {
		return core.SessionStatus{}, core.ErrEngineStopped
	}
	return s.engine.Status(ctx)
}

func initializeServices(ctx context.Context) (*services, error) {
	cache, err := createMetadataCache(ctx)
	if err != nil {
		return nil, err
	}

	var providerOpts []youtube.Option
	if proxy := viper.GetString("ytdlp-proxy"); proxy != "" {
		providerOpts = append(providerOpts, youtube.WithProxy(proxy))
	}
	provider := youtube.NewProvider(logger.Named("youtube"), providerOpts...)

	status := &engineStatus{}
	httpServer := httpserver.NewServer(&config.Server, status, logger.Named("http"))

	resolver := core.NewSongResolver(&config.Resolver, provider, cache, httpServer, logger.Named("resolver"))
	transport := dryrun.New(config.Playback.DryRunTrackLength, logger.Named("voice"))
	engine := core.NewEngine(config, resolver, transport, logger.Named("engine"), core.WithMetrics(httpServer))
	status.engine = engine

	frontend := console.NewFrontend(consoleConfig(config), os.Stdin, os.Stdout, logger.Named("chat"))
	floodgate := flood.New(config.App.FloodLimitPerMinute)
	dispatcher := core.NewDispatcher(config, frontend, engine, resolver, floodgate, httpServer,
		logger.Named("dispatcher"))

	return &services{
		cache:      cache,
		floodgate:  floodgate,
		httpServer: httpServer,
		engine:     engine,
		dispatcher: dispatcher,
	}, nil
}

func createMetadataCache(ctx context.Context) (*store.MetadataCache, error) {
	storeLogger := logger.Named("store")

	var backend store.Backend
	switch config.Store.Backend {
	case core.StoreBackendRedis:
		redisBackend, err := store.NewRedisBackend(ctx, &config.Store, storeLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis store: %w", err)
		}
		backend = redisBackend
	default:
		sqliteBackend, err := store.NewSQLiteBackend(config.Store.SQLitePath, storeLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		backend = sqliteBackend
	}

	cache, err := store.NewMetadataCache(backend, &config.Store, storeLogger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	if err := cache.Load(ctx); err != nil {
		storeLogger.Warn("Failed to warm metadata filter", zap.Error(err))
	}

	return cache, nil
}

func consoleConfig(cfg *core.Config) *console.Config {
	channelID := cfg.Discord.CommandChannelID
	if channelID == 0 {
		channelID = defaultConsoleText
	}
	voiceID := cfg.Discord.DefaultVoiceChannel
	if voiceID == 0 {
		voiceID = defaultConsoleVoice
	}

	return &console.Config{
		GuildID:        cfg.Discord.GuildID,
		ChannelID:      channelID,
		UserID:         snowflake.ID(viper.GetUint64("console-user-id")),
		UserName:       viper.GetString("console-user-name"),
		VoiceChannelID: voiceID,
	}
}

func runServices(ctx context.Context, svcs *services) error {
	defer svcs.floodgate.Stop()
	defer func() {
		if err := svcs.cache.Close(); err != nil {
			logger.Debug("Failed to close metadata store", zap.Error(err))
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.engine.Run(gCtx)
	})

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.dispatcher.Start(gCtx)
	})

	logger.Info("MarmoBot started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("MarmoBot stopped with error", zap.Error(err))
		return err
	}

	logger.Info("MarmoBot stopped gracefully")
	return nil
}

func validateConfig(cfg *core.Config) error {
	if err := validateStoreConfig(&cfg.Store); err != nil {
		return err
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", cfg.Server.Port)
	}

	if cfg.Resolver.PlaylistPageSize <= 0 {
		return fmt.Errorf("playlist page size must be positive")
	}

	if cfg.Resolver.MaxPlaylistItems <= 0 {
		return fmt.Errorf("max playlist items must be positive")
	}

	if cfg.Connection.MaxAttempts <= 0 {
		return fmt.Errorf("connect attempts must be positive")
	}

	if cfg.Queue.PageCharBudget <= 0 {
		return fmt.Errorf("page char budget must be positive")
	}

	if cfg.Playback.DryRunTrackLength <= 0 {
		return fmt.Errorf("dry-run track length must be positive")
	}

	return nil
}

func validateStoreConfig(cfg *core.StoreConfig) error {
	switch cfg.Backend {
	case core.StoreBackendSQLite:
		if cfg.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite store")
		}
	case core.StoreBackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q (expected %s or %s)",
			cfg.Backend, core.StoreBackendSQLite, core.StoreBackendRedis)
	}

	if cfg.BloomFalsePositive <= 0 || cfg.BloomFalsePositive >= 1 {
		return fmt.Errorf("bloom false positive rate must be between 0 and 1")
	}

	return nil
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

// envSection groups flags under one heading of the generated file.
type envSection struct {
	title string
	flags []string
}

var envSections = []envSection{
	{"Discord", []string{"guild-id", "command-channel-id", "default-voice-channel-id", "command-prefix", "bot-name"}},
	{"Resolver", []string{"playlist-page-size", "max-playlist-items", "source-ttl", "resolve-timeout", "ytdlp-proxy"}},
	{"Voice Connection", []string{"connect-attempts", "connect-retry-delay"}},
	{"Playback", []string{"announce-now-playing", "dry-run-track-length"}},
	{"Queue View", []string{"page-char-budget", "page-timeout", "reply-delete-after"}},
	{"Metadata Store", []string{
		"store-backend", "sqlite-path", "redis-addr", "redis-password", "redis-db",
		"redis-key-prefix", "cache-size", "bloom-capacity", "bloom-false-positive",
	}},
	{"Application", []string{"language", "flood-limit-per-minute", "help-url"}},
	{"Console", []string{"console-user-id", "console-user-name"}},
	{"Server", []string{"server-host", "server-port"}},
	{"Logging", []string{"log-level", "log-file", "log-max-size-mb", "log-max-backups", "log-max-age-days"}},
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# MarmoBot Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		generateSection(&content, cmd, section)
	}

	return content.String()
}

func generateSection(content *strings.Builder, cmd *cobra.Command, section envSection) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", section.title)
	content.WriteString("# -----------------------------------------------------------------------------\n")

	for _, name := range section.flags {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(content, "# %s (default: %s)\n", f.Usage, formatDefault(f.DefValue))
		fmt.Fprintf(content, "%s=%s\n", flagToEnvVar(name), f.DefValue)
	}
	content.WriteString("\n")
}

func formatDefault(value string) string {
	if value == "" {
		return `""`
	}
	return value
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
