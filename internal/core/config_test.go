package core

import (
	"testing"

	"marmobot/internal/i18n"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.App.Language != i18n.DefaultLanguage {
		t.Errorf("Expected default language to be %s, got %s", i18n.DefaultLanguage, config.App.Language)
	}

	if config.Resolver.PlaylistPageSize != DefaultPlaylistPageSize {
		t.Errorf("Expected playlist page size %d, got %d", DefaultPlaylistPageSize, config.Resolver.PlaylistPageSize)
	}

	if config.Connection.MaxAttempts != DefaultConnectAttempts {
		t.Errorf("Expected %d connect attempts, got %d", DefaultConnectAttempts, config.Connection.MaxAttempts)
	}

	if config.Queue.PageCharBudget != DefaultPageCharBudget {
		t.Errorf("Expected page budget %d, got %d", DefaultPageCharBudget, config.Queue.PageCharBudget)
	}

	if config.Store.Backend != StoreBackendSQLite {
		t.Errorf("Expected store backend %q, got %q", StoreBackendSQLite, config.Store.Backend)
	}

	if config.Discord.CommandPrefix != DefaultCommandPrefix {
		t.Errorf("Expected command prefix %q, got %q", DefaultCommandPrefix, config.Discord.CommandPrefix)
	}
}

func TestLanguageConfiguration(t *testing.T) {
	config := DefaultConfig()

	for _, lang := range i18n.GetSupportedLanguages() {
		config.App.Language = lang
		localizer := i18n.NewLocalizer(config.App.Language)

		for _, key := range []string{"error.generic", "queue.empty", "help.title"} {
			if message := localizer.T(key); message == "" || message == key {
				t.Errorf("Missing message for key %q in language %s", key, lang)
			}
		}
	}
}

func TestConfigConstants(t *testing.T) {
	if DefaultPlaylistPageSize > 50 {
		t.Error("Playlist pages are limited to 50 items")
	}

	if DefaultMaxPlaylistItems < DefaultPlaylistPageSize {
		t.Error("Max playlist items should cover at least one page")
	}

	if DefaultPageCharBudget > 1024 {
		t.Error("Queue pages must fit in a 1024 character embed field")
	}

	if DefaultConnectAttempts < 1 {
		t.Error("At least one connect attempt is required")
	}

	if DefaultBloomFalsePositive <= 0 || DefaultBloomFalsePositive >= 1 {
		t.Error("Bloom false positive rate must be in (0, 1)")
	}
}
