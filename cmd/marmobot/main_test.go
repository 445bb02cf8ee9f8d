package main

import (
	"strings"
	"testing"

	"marmobot/internal/core"
)

func TestFlagToEnvVar(t *testing.T) {
	tests := map[string]string{
		"log-level":            "MARMOBOT_LOG_LEVEL",
		"command-channel-id":   "MARMOBOT_COMMAND_CHANNEL_ID",
		"bloom-false-positive": "MARMOBOT_BLOOM_FALSE_POSITIVE",
	}

	for flag, want := range tests {
		if got := flagToEnvVar(flag); got != want {
			t.Errorf("flagToEnvVar(%q) = %q, want %q", flag, got, want)
		}
	}
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg := buildConfig()

	if cfg.Store.Backend != core.StoreBackendSQLite {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, core.StoreBackendSQLite)
	}
	if cfg.Discord.CommandPrefix != core.DefaultCommandPrefix {
		t.Errorf("CommandPrefix = %q, want %q", cfg.Discord.CommandPrefix, core.DefaultCommandPrefix)
	}
	if cfg.Resolver.PlaylistPageSize != core.DefaultPlaylistPageSize {
		t.Errorf("PlaylistPageSize = %d, want %d", cfg.Resolver.PlaylistPageSize, core.DefaultPlaylistPageSize)
	}
	if cfg.App.Language != "en" {
		t.Errorf("Language = %q, want en", cfg.App.Language)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("validateConfig(defaults) = %v, want nil", err)
	}
}

func TestBuildConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MARMOBOT_STORE_BACKEND", "REDIS")
	t.Setenv("MARMOBOT_COMMAND_CHANNEL_ID", "42")
	t.Setenv("MARMOBOT_LANGUAGE", "xx")
	t.Setenv("MARMOBOT_FLOOD_LIMIT_PER_MINUTE", "0")
	initConfig()

	cfg := buildConfig()
	if cfg.Store.Backend != core.StoreBackendRedis {
		t.Errorf("Store.Backend = %q, want redis", cfg.Store.Backend)
	}
	if cfg.Discord.CommandChannelID != 42 {
		t.Errorf("CommandChannelID = %d, want 42", cfg.Discord.CommandChannelID)
	}
	if cfg.App.Language != "en" {
		t.Errorf("unsupported language should fall back to en, got %q", cfg.App.Language)
	}
	if cfg.App.FloodLimitPerMinute != core.DefaultFloodLimitPerMinute {
		t.Errorf("FloodLimitPerMinute = %d, want default", cfg.App.FloodLimitPerMinute)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*core.Config)
		want   string
	}{
		{"unknown backend", func(c *core.Config) { c.Store.Backend = "mongo" }, "unknown store backend"},
		{"missing sqlite path", func(c *core.Config) { c.Store.SQLitePath = "" }, "sqlite path"},
		{"missing redis addr", func(c *core.Config) {
			c.Store.Backend = core.StoreBackendRedis
			c.Store.RedisAddr = ""
		}, "redis address"},
		{"bad bloom rate", func(c *core.Config) { c.Store.BloomFalsePositive = 1 }, "false positive"},
		{"bad port", func(c *core.Config) { c.Server.Port = 70000 }, "out of range"},
		{"zero page size", func(c *core.Config) { c.Resolver.PlaylistPageSize = 0 }, "page size"},
		{"zero attempts", func(c *core.Config) { c.Connection.MaxAttempts = 0 }, "connect attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.modify(cfg)

			err := validateConfig(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validateConfig() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestConsoleConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	got := consoleConfig(cfg)
	if got.ChannelID != defaultConsoleText || got.VoiceChannelID != defaultConsoleVoice {
		t.Errorf("consoleConfig() channels = %d/%d, want defaults", got.ChannelID, got.VoiceChannelID)
	}

	cfg.Discord.CommandChannelID = 7
	cfg.Discord.DefaultVoiceChannel = 8
	got = consoleConfig(cfg)
	if got.ChannelID != 7 || got.VoiceChannelID != 8 {
		t.Errorf("consoleConfig() channels = %d/%d, want 7/8", got.ChannelID, got.VoiceChannelID)
	}
}

func TestGenerateEnvExampleContent(t *testing.T) {
	content := generateEnvExampleContent(rootCmd)

	for _, want := range []string{
		"# MarmoBot Configuration",
		"# Metadata Store",
		"MARMOBOT_STORE_BACKEND=sqlite",
		"MARMOBOT_SERVER_PORT=8080",
		"MARMOBOT_REDIS_PASSWORD=",
		`(default: "")`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("env example missing %q", want)
		}
	}

	for _, section := range envSections {
		for _, name := range section.flags {
			if rootCmd.PersistentFlags().Lookup(name) == nil {
				t.Errorf("section %q lists unknown flag %q", section.title, name)
			}
		}
	}
}
