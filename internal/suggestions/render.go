package suggestions

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"suggestbot/internal/database/models"
	"suggestbot/pkg/chatapi"
)

const (
	// UnknownUser stands in for suggesters and reviewers that are gone.
	UnknownUser = "[Unknown or Deleted User]"
	// JumpLabel is the label of link buttons that lead to the posted card.
	JumpLabel = "Jump To Suggestion"
)

// Identities are the resolved users a card mentions. Nil means unresolvable.
type Identities struct {
	Suggester *chatapi.UserIdentity
	Reviewer  *chatapi.UserIdentity
}

// RenderCard describes how rec looks under eff. It has no side effects and
// returns equal cards for equal inputs.
func RenderCard(rec models.Suggestion, eff models.Effective, who Identities) chatapi.Card {
	card := chatapi.Card{
		Title:       fmt.Sprintf("Suggestion #%d", rec.ID),
		Description: rec.Text,
		Color:       eff.EmbedColor,
		Author:      chatapi.Author{Name: UnknownUser},
		Timestamp:   rec.SubmittedAt,
	}
	if who.Suggester != nil {
		card.Author = chatapi.Author{Name: who.Suggester.Display(), IconURL: who.Suggester.AvatarURL}
	}

	terminal := rec.Status.Terminal()
	if terminal {
		card.Color = chatapi.ColorRejected
		if rec.Status == models.StatusApproved {
			card.Color = chatapi.ColorApproved
		}
		reviewer := UnknownUser
		if who.Reviewer != nil {
			reviewer = who.Reviewer.Mention
			if reviewer == "" {
				reviewer = who.Reviewer.Display()
			}
		}
		card.Fields = append(card.Fields,
			chatapi.Field{Name: "Reviewer:", Value: reviewer, Inline: true},
			chatapi.Field{Name: "Status:", Value: cases.Title(language.English).String(string(rec.Status)), Inline: true},
		)
		if rec.Reason != nil {
			card.Fields = append(card.Fields, chatapi.Field{Name: "Reason:", Value: *rec.Reason})
		}
	}

	card.Buttons = []chatapi.Button{
		{
			ID:       VoteControlID(rec.GuildID, rec.ID, Up),
			Label:    strconv.Itoa(rec.UpvoteCount()),
			Emoji:    eff.UpvoteEmoji,
			Style:    eff.UpButtonStyle,
			Disabled: terminal,
		},
		{
			ID:       VoteControlID(rec.GuildID, rec.ID, Down),
			Label:    strconv.Itoa(rec.DownvoteCount()),
			Emoji:    eff.DownvoteEmoji,
			Style:    eff.DownButtonStyle,
			Disabled: terminal,
		},
	}
	return card
}

// ReadOnly returns a copy of card with every control disabled and a jump link
// appended. It is used wherever a card is shown away from its original message.
func ReadOnly(card chatapi.Card, jumpURL string) chatapi.Card {
	out := card
	out.Buttons = make([]chatapi.Button, 0, len(card.Buttons)+1)
	for _, b := range card.Buttons {
		b.Disabled = true
		out.Buttons = append(out.Buttons, b)
	}
	if jumpURL != "" {
		out.Buttons = append(out.Buttons, chatapi.Button{Label: JumpLabel, URL: jumpURL})
	}
	out.Fields = append([]chatapi.Field(nil), card.Fields...)
	return out
}

// LinkOnly returns a copy of card whose only button is the jump link.
func LinkOnly(card chatapi.Card, jumpURL string) chatapi.Card {
	out := card
	out.Buttons = nil
	if jumpURL != "" {
		out.Buttons = []chatapi.Button{{Label: JumpLabel, URL: jumpURL}}
	}
	out.Fields = append([]chatapi.Field(nil), card.Fields...)
	return out
}

// RenderSettings describes a guild's effective settings. channelName turns
// a configured channel id into its display form.
func RenderSettings(guildName string, eff models.Effective, channelName func(id string) string, now time.Time) chatapi.Card {
	channel := func(id string) string {
		if id == "" {
			return "None"
		}
		return channelName(id)
	}
	return chatapi.Card{
		Title: guildName + "'s current suggestion settings",
		Color: eff.EmbedColor,
		Fields: []chatapi.Field{
			{Name: "Auto delete commands", Value: strconv.FormatBool(eff.AutoDelete), Inline: true},
			{Name: "Upvote emoji", Value: eff.UpvoteEmoji, Inline: true},
			{Name: "Downvote emoji", Value: eff.DownvoteEmoji, Inline: true},
			{Name: "Upvote button colour", Value: string(eff.UpButtonStyle), Inline: true},
			{Name: "Downvote button colour", Value: string(eff.DownButtonStyle), Inline: true},
			{Name: "Suggestion channel", Value: channel(eff.SuggestChannel)},
			{Name: "Rejection channel", Value: channel(eff.RejectChannel)},
			{Name: "Approved channel", Value: channel(eff.ApproveChannel)},
		},
		Timestamp: now,
	}
}
