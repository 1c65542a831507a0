package suggestions

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"suggestbot/internal/database/models"
	"suggestbot/internal/locales"
	"suggestbot/pkg/chatapi"
)

// SetChannel sets or, with an empty channelID, clears one of the guild's channels.
// The bot must be able to post in a channel before it is accepted.
func (m *Manager) SetChannel(ctx context.Context, guildID string, kind ChannelKind, channelID string) (string, error) {
	var mention string
	if channelID != "" {
		ch, err := m.transport.ResolveChannel(ctx, guildID, channelID)
		if err != nil {
			return "", errors.Wrap(ErrChannelMissing, err.Error())
		}
		if !ch.CanSend {
			return "", ErrCannotSend
		}
		mention = ch.Name
		if mention == "" {
			mention = ch.ID
		}
	}

	var field func(*models.Settings) **string
	var setMsg, clearMsg string
	switch kind {
	case SuggestChannel:
		field = func(s *models.Settings) **string { return &s.SuggestChannel }
		setMsg, clearMsg = locales.MsgSuggestChannelSet, locales.MsgSuggestChannelCleared
	case RejectChannel:
		field = func(s *models.Settings) **string { return &s.RejectChannel }
		setMsg, clearMsg = locales.MsgRejectChannelSet, locales.MsgRejectChannelCleared
	case ApproveChannel:
		field = func(s *models.Settings) **string { return &s.ApproveChannel }
		setMsg, clearMsg = locales.MsgApproveChannelSet, locales.MsgApproveChannelCleared
	default:
		return "", errors.Errorf("unknown channel kind %q", kind)
	}

	_, err := m.store.UpdateSettings(ctx, guildID, func(s *models.Settings) error {
		if channelID == "" {
			*field(s) = nil
		} else {
			*field(s) = models.Ptr(channelID)
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "update settings")
	}
	if channelID == "" {
		return m.Text(clearMsg, nil), nil
	}
	return m.Text(setMsg, map[string]any{"Channel": mention}), nil
}

var customEmoji = regexp.MustCompile(`^<a?:\w{2,32}:\d{15,21}>$`)

// validEmoji accepts platform custom emoji and short unicode emoji sequences.
func validEmoji(s string) bool {
	if customEmoji.MatchString(s) {
		return true
	}
	if s == "" || utf8.RuneCountInString(s) > 10 {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return false
		}
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r >= 0x2000 || strings.ContainsRune(s, '⃣')
}

// SetEmoji sets or, with an empty emoji, resets the emoji of a vote button.
func (m *Manager) SetEmoji(ctx context.Context, guildID string, dir Direction, emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji != "" && !validEmoji(emoji) {
		return "", ErrInvalidEmoji
	}
	st, err := m.store.UpdateSettings(ctx, guildID, func(s *models.Settings) error {
		var v *string
		if emoji != "" {
			v = models.Ptr(emoji)
		}
		if dir == Down {
			s.DownvoteEmoji = v
		} else {
			s.UpvoteEmoji = v
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "update settings")
	}
	eff := st.Apply(m.defaults)

	switch {
	case dir == Down && emoji == "":
		return m.Text(locales.MsgDownvoteEmojiReset, map[string]any{"Emoji": eff.DownvoteEmoji}), nil
	case dir == Down:
		return m.Text(locales.MsgDownvoteEmojiSet, map[string]any{"Emoji": eff.DownvoteEmoji}), nil
	case emoji == "":
		return m.Text(locales.MsgUpvoteEmojiReset, map[string]any{"Emoji": eff.UpvoteEmoji}), nil
	}
	return m.Text(locales.MsgUpvoteEmojiSet, map[string]any{"Emoji": eff.UpvoteEmoji}), nil
}

// SetButtonStyle sets or, with an empty style, resets the colour of a vote button.
func (m *Manager) SetButtonStyle(ctx context.Context, guildID string, dir Direction, style string) (string, error) {
	var v *chatapi.ButtonStyle
	if strings.TrimSpace(style) != "" {
		parsed, ok := chatapi.ParseButtonStyle(style)
		if !ok {
			return "", ErrInvalidStyle
		}
		v = &parsed
	}
	st, err := m.store.UpdateSettings(ctx, guildID, func(s *models.Settings) error {
		if dir == Down {
			s.DownButtonStyle = v
		} else {
			s.UpButtonStyle = v
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "update settings")
	}
	eff := st.Apply(m.defaults)

	switch {
	case dir == Down && v == nil:
		return m.Text(locales.MsgDownStyleReset, map[string]any{"Style": eff.DownButtonStyle}), nil
	case dir == Down:
		return m.Text(locales.MsgDownStyleSet, map[string]any{"Style": eff.DownButtonStyle}), nil
	case v == nil:
		return m.Text(locales.MsgUpStyleReset, map[string]any{"Style": eff.UpButtonStyle}), nil
	}
	return m.Text(locales.MsgUpStyleSet, map[string]any{"Style": eff.UpButtonStyle}), nil
}

// ToggleAutoDelete flips whether invoking commands are deleted and returns the new value.
func (m *Manager) ToggleAutoDelete(ctx context.Context, guildID string) (bool, string, error) {
	var enabled bool
	_, err := m.store.UpdateSettings(ctx, guildID, func(s *models.Settings) error {
		current := s.Apply(m.defaults).AutoDelete
		enabled = !current
		s.AutoDelete = models.Ptr(enabled)
		return nil
	})
	if err != nil {
		return false, "", errors.Wrap(err, "update settings")
	}
	if enabled {
		return true, m.Text(locales.MsgAutoDeleteOn, nil), nil
	}
	return false, m.Text(locales.MsgAutoDeleteOff, nil), nil
}

// SettingsCard renders the guild's effective settings.
func (m *Manager) SettingsCard(ctx context.Context, guildID, guildName string) (chatapi.Card, error) {
	eff, err := m.Effective(ctx, guildID)
	if err != nil {
		return chatapi.Card{}, err
	}
	name := func(id string) string {
		ch, err := m.transport.ResolveChannel(ctx, guildID, id)
		if err != nil {
			return id + " (missing)"
		}
		if ch.Name == "" {
			return ch.ID
		}
		return ch.Name
	}
	return RenderSettings(guildName, eff, name, m.now()), nil
}

// CleanupInvocation deletes the message that invoked a command when the
// guild has autodelete on. It runs in the background and never fails the command.
func (m *Manager) CleanupInvocation(ctx context.Context, guildID string, invocation chatapi.MessageHandle) {
	if invocation.IsZero() {
		return
	}
	eff, err := m.Effective(ctx, guildID)
	if err != nil || !eff.AutoDelete {
		return
	}
	m.background(ctx, "autodelete", guildID, 0, func(ctx context.Context) error {
		return m.transport.DeleteMessage(ctx, invocation)
	})
}
