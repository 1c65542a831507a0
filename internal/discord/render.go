package discord

import (
	"regexp"
	"time"

	"github.com/bwmarrin/discordgo"

	"suggestbot/pkg/chatapi"
)

// maxButtonsPerRow is Discord's limit for one action row.
const maxButtonsPerRow = 5

// embeds translates a card to its embed. Cards without a title or body
// (e.g. the buttons-only direct message) have none.
func embeds(card chatapi.Card) []*discordgo.MessageEmbed {
	if card.Title == "" && card.Description == "" {
		return []*discordgo.MessageEmbed{}
	}
	e := &discordgo.MessageEmbed{
		Title:       card.Title,
		Description: card.Description,
		Color:       card.Color,
	}
	if card.Author.Name != "" {
		e.Author = &discordgo.MessageEmbedAuthor{Name: card.Author.Name, IconURL: card.Author.IconURL}
	}
	if !card.Timestamp.IsZero() {
		e.Timestamp = card.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range card.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return []*discordgo.MessageEmbed{e}
}

// components lays a card's buttons out in action rows.
func components(card chatapi.Card) []discordgo.MessageComponent {
	rows := []discordgo.MessageComponent{}
	var row discordgo.ActionsRow
	for _, b := range card.Buttons {
		if len(row.Components) == maxButtonsPerRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
		row.Components = append(row.Components, button(b))
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func button(b chatapi.Button) discordgo.Button {
	if b.IsLink() {
		return discordgo.Button{Label: b.Label, Style: discordgo.LinkButton, URL: b.URL, Emoji: componentEmoji(b.Emoji)}
	}
	return discordgo.Button{
		Label:    b.Label,
		Style:    buttonStyle(b.Style),
		CustomID: b.ID,
		Disabled: b.Disabled,
		Emoji:    componentEmoji(b.Emoji),
	}
}

func buttonStyle(s chatapi.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case chatapi.StyleGreen:
		return discordgo.SuccessButton
	case chatapi.StyleRed:
		return discordgo.DangerButton
	case chatapi.StyleGrey:
		return discordgo.SecondaryButton
	}
	return discordgo.PrimaryButton
}

var customEmoji = regexp.MustCompile(`^<(a?):(\w+):(\d+)>$`)

func componentEmoji(s string) *discordgo.ComponentEmoji {
	if s == "" {
		return nil
	}
	if m := customEmoji.FindStringSubmatch(s); m != nil {
		return &discordgo.ComponentEmoji{Name: m[2], ID: m[3], Animated: m[1] == "a"}
	}
	return &discordgo.ComponentEmoji{Name: s}
}

func messageSend(content string, card chatapi.Card) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    content,
		Embeds:     embeds(card),
		Components: components(card),
	}
}

func responseData(content string, card *chatapi.Card, ephemeral bool) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{Content: content}
	if card != nil {
		data.Embeds = embeds(*card)
		data.Components = components(*card)
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}
