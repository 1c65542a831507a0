package telegram

import (
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"suggestbot/pkg/chatapi"
)

const (
	// noopData marks disabled buttons. Telegram has no disabled state.
	noopData = "noop"
	// maxButtonsPerRow keeps rows readable on phones.
	maxButtonsPerRow = 3
)

func buttonText(b chatapi.Button) string {
	switch {
	case b.Emoji != "" && b.Label != "":
		return b.Emoji + " " + b.Label
	case b.Emoji != "":
		return b.Emoji
	}
	return b.Label
}

// keyboard builds the inline keyboard of a card, or nil when it has no buttons.
func keyboard(card *chatapi.Card) *telego.InlineKeyboardMarkup {
	if card == nil || len(card.Buttons) == 0 {
		return nil
	}
	var rows [][]telego.InlineKeyboardButton
	var row []telego.InlineKeyboardButton
	for _, b := range card.Buttons {
		if len(row) == maxButtonsPerRow {
			rows = append(rows, tu.InlineKeyboardRow(row...))
			row = nil
		}
		btn := tu.InlineKeyboardButton(buttonText(b))
		switch {
		case b.IsLink():
			btn = btn.WithURL(b.URL)
		case b.Disabled:
			btn = btn.WithCallbackData(noopData)
		default:
			btn = btn.WithCallbackData(b.ID)
		}
		row = append(row, btn)
	}
	rows = append(rows, tu.InlineKeyboardRow(row...))
	return tu.InlineKeyboard(rows...)
}
