package chatapi

import (
	"strings"
	"time"
)

// MessageHandle locates a posted message.
type MessageHandle struct {
	ChannelID string `bson:"channel_id" json:"channel_id"`
	MessageID string `bson:"message_id" json:"message_id"`
}

// IsZero reports whether the handle points nowhere.
func (h MessageHandle) IsZero() bool {
	return h.ChannelID == "" || h.MessageID == ""
}

// ButtonStyle is the platform-neutral colour of a button.
type ButtonStyle string

const (
	StyleBlurple ButtonStyle = "blurple"
	StyleGreen   ButtonStyle = "green"
	StyleRed     ButtonStyle = "red"
	StyleGrey    ButtonStyle = "grey"
)

// ParseButtonStyle accepts the style names users type, including "gray".
func ParseButtonStyle(s string) (ButtonStyle, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blurple", "blue", "primary":
		return StyleBlurple, true
	case "green", "success":
		return StyleGreen, true
	case "red", "danger":
		return StyleRed, true
	case "grey", "gray", "secondary":
		return StyleGrey, true
	}
	return "", false
}

// Embed colours used for resolved cards.
const (
	ColorApproved = 0x2ECC71
	ColorRejected = 0xE74C3C
)

// Card is an inert description of a message with an embed and buttons.
// Adapters translate it to their platform's message format.
type Card struct {
	Title       string
	Description string
	Color       int
	Author      Author
	Fields      []Field
	Buttons     []Button
	Timestamp   time.Time
}

// Author is the author block shown at the top of a card.
type Author struct {
	Name    string
	IconURL string
}

// Field is a named value shown below the card body.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Button is either an interactive control (ID set) or a link (URL set).
type Button struct {
	ID       string
	Label    string
	Emoji    string
	Style    ButtonStyle
	Disabled bool
	URL      string
}

// IsLink reports whether the button opens a URL instead of dispatching a control.
func (b Button) IsLink() bool {
	return b.URL != ""
}
