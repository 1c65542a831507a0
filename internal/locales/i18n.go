package locales

import (
	"embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init loads every embedded message file and sets the default language.
// An unparsable code falls back to English.
func Init(defaultLangCode string) error {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Warn().Err(err).Str("code", defaultLangCode).Msg("failed to parse default language, falling back to English")
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		return errors.Wrap(err, "failed to read embedded locales")
	}
	loaded := 0
	for _, f := range entries {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, f.Name()); err != nil {
			log.Warn().Err(err).Str("file", f.Name()).Msg("failed to load message file")
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return errors.New("no message files loaded")
	}

	mu.Lock()
	bundle, defaultLanguage = b, tag
	mu.Unlock()
	log.Debug().Int("files", loaded).Str("default", tag.String()).Msg("i18n bundle initialized")
	return nil
}

// GetDefaultLanguageTag returns the configured default language tag.
func GetDefaultLanguageTag() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences
// ("en", "ru" or an Accept-Language style list). Init must have been called.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		panic("locales: NewLocalizer called before Init")
	}
	return i18n.NewLocalizer(bundle, langPrefs...)
}

// GetMessage formats msgID with templateData. It falls back to English and
// finally to the message ID itself, so callers always get something to show.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]any, pluralCount *int) string {
	cfg := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	if pluralCount != nil {
		cfg.PluralCount = *pluralCount
	}

	msg, err := localizer.Localize(cfg)
	if err == nil {
		return msg
	}
	log.Error().Err(err).Str("message_id", msgID).Msg("failed to localize message, trying English")

	msg, err = NewLocalizer(language.English.String()).Localize(cfg)
	if err == nil {
		return msg
	}
	return msgID
}
