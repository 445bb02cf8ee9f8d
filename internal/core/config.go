package core

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Configuration defaults.
const (
	DefaultServerPort            = 8080
	DefaultPlaylistPageSize      = 50
	DefaultMaxPlaylistItems      = 500
	DefaultSourceTTL             = 5 * time.Hour
	DefaultResolveTimeout        = 45 * time.Second
	DefaultConnectAttempts       = 3
	DefaultConnectRetryDelay     = 2 * time.Second
	DefaultPageCharBudget        = 1024
	DefaultPageTimeout           = 60 * time.Second
	DefaultReplyDeleteAfter      = 60 * time.Second
	DefaultFloodLimitPerMinute   = 10
	DefaultMetadataCacheSize     = 4096
	DefaultMetadataBloomCapacity = 100000
	DefaultBloomFalsePositive    = 0.001
	DefaultCommandPrefix         = "!"
	DefaultHelpURL               = "https://github.com/marmobot/marmobot#commands"
	DefaultSQLitePath            = "./marmobot.db"
	DefaultRedisKeyPrefix        = "marmobot:song:"
)

// Store backends.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
)

type Config struct {
	Discord    DiscordConfig
	Resolver   ResolverConfig
	Connection ConnectionConfig
	Playback   PlaybackConfig
	Queue      QueueConfig
	Store      StoreConfig
	Server     ServerConfig
	Log        LogConfig
	App        AppConfig
}

// DiscordConfig identifies where commands are accepted. A zero ID disables the check.
type DiscordConfig struct {
	GuildID             snowflake.ID
	CommandChannelID    snowflake.ID
	DefaultVoiceChannel snowflake.ID
	CommandPrefix       string
	BotName             string
}

type ResolverConfig struct {
	PlaylistPageSize int
	MaxPlaylistItems int
	SourceTTL        time.Duration
	RequestTimeout   time.Duration
}

type ConnectionConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type PlaybackConfig struct {
	AnnounceNowPlaying bool
	// DryRunTrackLength is how long the simulated transport plays each source.
	DryRunTrackLength time.Duration
}

type QueueConfig struct {
	PageCharBudget   int
	PageTimeout      time.Duration
	ReplyDeleteAfter time.Duration
}

type StoreConfig struct {
	Backend            string
	SQLitePath         string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisKeyPrefix     string
	CacheSize          int
	BloomCapacity      int
	BloomFalsePositive float64
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type AppConfig struct {
	Language            string
	FloodLimitPerMinute int
	HelpURL             string
}

// DefaultConfig returns a configuration filled with the Default* values.
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			CommandPrefix: DefaultCommandPrefix,
			BotName:       "MarmoBot",
		},
		Resolver: ResolverConfig{
			PlaylistPageSize: DefaultPlaylistPageSize,
			MaxPlaylistItems: DefaultMaxPlaylistItems,
			SourceTTL:        DefaultSourceTTL,
			RequestTimeout:   DefaultResolveTimeout,
		},
		Connection: ConnectionConfig{
			MaxAttempts: DefaultConnectAttempts,
			RetryDelay:  DefaultConnectRetryDelay,
		},
		Playback: PlaybackConfig{
			AnnounceNowPlaying: true,
			DryRunTrackLength:  3 * time.Minute,
		},
		Queue: QueueConfig{
			PageCharBudget:   DefaultPageCharBudget,
			PageTimeout:      DefaultPageTimeout,
			ReplyDeleteAfter: DefaultReplyDeleteAfter,
		},
		Store: StoreConfig{
			Backend:            StoreBackendSQLite,
			SQLitePath:         DefaultSQLitePath,
			RedisAddr:          "localhost:6379",
			RedisKeyPrefix:     DefaultRedisKeyPrefix,
			CacheSize:          DefaultMetadataCacheSize,
			BloomCapacity:      DefaultMetadataBloomCapacity,
			BloomFalsePositive: DefaultBloomFalsePositive,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		App: AppConfig{
			Language:            "en",
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
			HelpURL:             DefaultHelpURL,
		},
	}
}
