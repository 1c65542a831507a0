package models

import (
	"suggestbot/pkg/chatapi"
)

// Settings holds the per-guild configuration. Every field is optional:
// nil means "use the default", so clearing a setting resets it.
type Settings struct {
	GuildID         string               `bson:"_id" json:"guild_id"`
	SuggestChannel  *string              `bson:"suggest_channel,omitempty" json:"suggest_channel,omitempty"`
	RejectChannel   *string              `bson:"reject_channel,omitempty" json:"reject_channel,omitempty"`
	ApproveChannel  *string              `bson:"approve_channel,omitempty" json:"approve_channel,omitempty"`
	UpvoteEmoji     *string              `bson:"upvote_emoji,omitempty" json:"upvote_emoji,omitempty"`
	DownvoteEmoji   *string              `bson:"downvote_emoji,omitempty" json:"downvote_emoji,omitempty"`
	UpButtonStyle   *chatapi.ButtonStyle `bson:"up_button_style,omitempty" json:"up_button_style,omitempty"`
	DownButtonStyle *chatapi.ButtonStyle `bson:"down_button_style,omitempty" json:"down_button_style,omitempty"`
	AutoDelete      *bool                `bson:"auto_delete,omitempty" json:"auto_delete,omitempty"`
	Version         int64                `bson:"version" json:"version"`
}

// Defaults are the values used for unset settings. They can be overridden from a TOML file.
type Defaults struct {
	UpvoteEmoji     string              `toml:"upvote_emoji"`
	DownvoteEmoji   string              `toml:"downvote_emoji"`
	UpButtonStyle   chatapi.ButtonStyle `toml:"up_button_style"`
	DownButtonStyle chatapi.ButtonStyle `toml:"down_button_style"`
	AutoDelete      bool                `toml:"auto_delete"`
	EmbedColor      int                 `toml:"embed_color"`
}

// BuiltinDefaults returns the defaults used when no defaults file is configured.
func BuiltinDefaults() Defaults {
	return Defaults{
		UpvoteEmoji:     "⬆️",
		DownvoteEmoji:   "⬇️",
		UpButtonStyle:   chatapi.StyleBlurple,
		DownButtonStyle: chatapi.StyleBlurple,
		AutoDelete:      true,
		EmbedColor:      0x5865F2,
	}
}

// Effective is Settings with every default applied.
type Effective struct {
	GuildID         string
	SuggestChannel  string
	RejectChannel   string
	ApproveChannel  string
	UpvoteEmoji     string
	DownvoteEmoji   string
	UpButtonStyle   chatapi.ButtonStyle
	DownButtonStyle chatapi.ButtonStyle
	AutoDelete      bool
	EmbedColor      int
}

// Apply resolves s against d.
func (s Settings) Apply(d Defaults) Effective {
	e := Effective{
		GuildID:         s.GuildID,
		SuggestChannel:  Deref(s.SuggestChannel),
		RejectChannel:   Deref(s.RejectChannel),
		ApproveChannel:  Deref(s.ApproveChannel),
		UpvoteEmoji:     d.UpvoteEmoji,
		DownvoteEmoji:   d.DownvoteEmoji,
		UpButtonStyle:   d.UpButtonStyle,
		DownButtonStyle: d.DownButtonStyle,
		AutoDelete:      d.AutoDelete,
		EmbedColor:      d.EmbedColor,
	}
	if s.UpvoteEmoji != nil {
		e.UpvoteEmoji = *s.UpvoteEmoji
	}
	if s.DownvoteEmoji != nil {
		e.DownvoteEmoji = *s.DownvoteEmoji
	}
	if s.UpButtonStyle != nil {
		e.UpButtonStyle = *s.UpButtonStyle
	}
	if s.DownButtonStyle != nil {
		e.DownButtonStyle = *s.DownButtonStyle
	}
	if s.AutoDelete != nil {
		e.AutoDelete = *s.AutoDelete
	}
	return e
}

// ReviewChannel returns the channel that receives copies of cards resolved with status,
// or "" when none is configured.
func (e Effective) ReviewChannel(status SuggestionStatus) string {
	switch status {
	case StatusApproved:
		return e.ApproveChannel
	case StatusRejected:
		return e.RejectChannel
	}
	return ""
}
