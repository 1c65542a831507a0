package telegram

import (
	"strings"

	"suggestbot/pkg/chatapi"
)

// markdownV2Reserved are the characters Telegram MarkdownV2 requires escaping outside entities.
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!\\"

// escapeMarkdownV2 escapes characters reserved by Telegram MarkdownV2.
func escapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// markdown converts the light markup of the message bundle (**bold** and
// `code`) to MarkdownV2 and escapes everything else.
func markdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	code := false
	for i := 0; i < len(s); {
		switch {
		case s[i] == '`':
			code = !code
			b.WriteByte('`')
			i++
		case !code && strings.HasPrefix(s[i:], "**"):
			b.WriteByte('*')
			i += 2
		default:
			end := i + 1
			for end < len(s) && s[end] != '`' && !(s[end] == '*' && strings.HasPrefix(s[end:], "**")) {
				end++
			}
			if code {
				b.WriteString(strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(s[i:end]))
			} else {
				b.WriteString(escapeMarkdownV2(s[i:end]))
			}
			i = end
		}
	}
	return b.String()
}

// renderText lays a card out as a MarkdownV2 message body.
func renderText(content string, card *chatapi.Card) string {
	var parts []string
	if content != "" {
		parts = append(parts, markdown(content))
	}
	if card != nil {
		if card.Title != "" {
			parts = append(parts, "*"+escapeMarkdownV2(card.Title)+"*")
		}
		if card.Author.Name != "" {
			parts = append(parts, "_"+escapeMarkdownV2(card.Author.Name)+"_")
		}
		if card.Description != "" {
			parts = append(parts, markdown(card.Description))
		}
		for _, f := range card.Fields {
			parts = append(parts, "*"+escapeMarkdownV2(f.Name)+":* "+markdown(f.Value))
		}
	}
	return strings.Join(parts, "\n\n")
}
