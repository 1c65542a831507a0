package locales

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMessage(t *testing.T) {
	require.NoError(t, Init("en"))

	en := NewLocalizer("en")
	assert.Equal(t,
		"Successfully submitted suggestion **#7**.",
		GetMessage(en, MsgSubmitted, map[string]any{"ID": 7}, nil))

	ru := NewLocalizer("ru")
	assert.Equal(t, "Да", GetMessage(ru, LabelConfirm, nil, nil))

	// There is no German file, so the bundle's English text comes back.
	de := NewLocalizer("de")
	assert.Equal(t,
		"Successfully reset the whole suggestion configuration.",
		GetMessage(de, MsgResetAllDone, nil, nil))

	assert.Equal(t, "NoSuchMessage", GetMessage(en, "NoSuchMessage", nil, nil))
}

func TestInitBadLanguageFallsBackToEnglish(t *testing.T) {
	require.NoError(t, Init("not a language!"))
	assert.Equal(t, "en", GetDefaultLanguageTag().String())
}

func TestTranslationsAreComplete(t *testing.T) {
	read := func(name string) map[string]string {
		raw, err := localeFS.ReadFile(name)
		require.NoError(t, err)
		var m map[string]string
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	}
	en, ru := read("en.json"), read("ru.json")
	for id := range en {
		assert.Contains(t, ru, id)
	}
	assert.Len(t, ru, len(en))
}
