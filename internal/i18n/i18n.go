// Package i18n holds the localized text of every chat reply.
package i18n

import (
	"fmt"
)

const (
	// DefaultLanguage is used for unknown languages and missing keys.
	DefaultLanguage = "en"
	SpanishLanguage = "es"
)

var catalogs = map[string]map[string]string{
	DefaultLanguage: englishMessages,
	SpanishLanguage: spanishMessages,
}

// Localizer formats message keys for one language.
type Localizer struct {
	language string
	messages map[string]string
}

// NewLocalizer returns a localizer for language, falling back to English.
func NewLocalizer(language string) *Localizer {
	return &Localizer{
		language: language,
		messages: getMessages(language),
	}
}

// Language reports the language the localizer was created for.
func (l *Localizer) Language() string {
	return l.language
}

// T formats key with args. Keys missing from the language fall back to
// English, and unknown keys are returned as is.
func (l *Localizer) T(key string, args ...any) string {
	message, ok := l.messages[key]
	if !ok {
		message, ok = englishMessages[key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

// GetSupportedLanguages lists the language codes accepted by the --language flag.
func GetSupportedLanguages() []string {
	return []string{DefaultLanguage, SpanishLanguage}
}

func getMessages(language string) map[string]string {
	if messages, ok := catalogs[language]; ok {
		return messages
	}
	return englishMessages
}
