package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/pkg/errors"

	"suggestbot/pkg/chatapi"
	"suggestbot/pkg/telegoapi"
)

// Transport implements chatapi.Transport over the Telegram Bot API.
// Guilds and channels are both chats; ids are decimal chat ids.
type Transport struct {
	bot   telegoapi.BotAPI
	botID int64
}

// NewTransport creates a Transport acting as the bot user botID.
func NewTransport(bot telegoapi.BotAPI, botID int64) *Transport {
	return &Transport{bot: bot, botID: botID}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, errors.Wrapf(err, "invalid chat id %q", s)
}

func parseHandle(h chatapi.MessageHandle) (int64, int, error) {
	chatID, err := parseID(h.ChannelID)
	if err != nil {
		return 0, 0, err
	}
	msgID, err := strconv.Atoi(h.MessageID)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "invalid message id %q", h.MessageID)
	}
	return chatID, msgID, nil
}

// classify maps Bot API failures to the chatapi sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.ErrorCode == http.StatusForbidden:
			return errors.Wrap(chatapi.ErrForbidden, err.Error())
		case strings.Contains(apiErr.Description, "not found"):
			return errors.Wrap(chatapi.ErrNotFound, err.Error())
		}
	}
	return err
}

func handle(msg *telego.Message) chatapi.MessageHandle {
	return chatapi.MessageHandle{
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.MessageID),
	}
}

func (t *Transport) send(ctx context.Context, chatID int64, content string, card *chatapi.Card) (*telego.Message, error) {
	params := tu.Message(tu.ID(chatID), renderText(content, card)).
		WithParseMode(telego.ModeMarkdownV2).
		WithLinkPreviewOptions(&telego.LinkPreviewOptions{IsDisabled: true})
	if kb := keyboard(card); kb != nil {
		params = params.WithReplyMarkup(kb)
	}
	return t.bot.SendMessage(ctx, params)
}

func (t *Transport) PostCard(ctx context.Context, channelID string, card chatapi.Card) (chatapi.MessageHandle, error) {
	chatID, err := parseID(channelID)
	if err != nil {
		return chatapi.MessageHandle{}, err
	}
	msg, err := t.send(ctx, chatID, "", &card)
	if err != nil {
		return chatapi.MessageHandle{}, classify(err)
	}
	return handle(msg), nil
}

func (t *Transport) EditCard(ctx context.Context, h chatapi.MessageHandle, card chatapi.Card) error {
	chatID, msgID, err := parseHandle(h)
	if err != nil {
		return errors.Wrap(chatapi.ErrNotFound, err.Error())
	}
	_, err = t.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:             tu.ID(chatID),
		MessageID:          msgID,
		Text:               renderText("", &card),
		ParseMode:          telego.ModeMarkdownV2,
		ReplyMarkup:        keyboard(&card),
		LinkPreviewOptions: &telego.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return classify(err)
}

// FetchCard cannot look messages up: the Bot API has no such method.
// Well-formed handles are assumed to exist and a later edit reports otherwise.
func (t *Transport) FetchCard(ctx context.Context, h chatapi.MessageHandle) error {
	if _, _, err := parseHandle(h); err != nil {
		return errors.Wrap(chatapi.ErrNotFound, err.Error())
	}
	return nil
}

func (t *Transport) DeleteMessage(ctx context.Context, h chatapi.MessageHandle) error {
	chatID, msgID, err := parseHandle(h)
	if err != nil {
		return err
	}
	return classify(t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(chatID), MessageID: msgID}))
}

// SendDirect writes to the private chat with userID. It fails until the
// user has started the bot.
func (t *Transport) SendDirect(ctx context.Context, userID string, msg chatapi.DirectMessage) error {
	uid, err := parseID(userID)
	if err != nil {
		return errors.Wrap(chatapi.ErrDeliveryFailed, err.Error())
	}
	if _, err := t.send(ctx, uid, msg.Content, msg.Card); err != nil {
		return errors.Wrap(chatapi.ErrDeliveryFailed, err.Error())
	}
	return nil
}

func (t *Transport) member(ctx context.Context, chatID, userID int64) (telego.ChatMember, error) {
	return t.bot.GetChatMember(ctx, &telego.GetChatMemberParams{ChatID: tu.ID(chatID), UserID: userID})
}

func (t *Transport) ResolveUser(ctx context.Context, guildID, userID string) (chatapi.UserIdentity, error) {
	chatID, err := parseID(guildID)
	if err != nil {
		return chatapi.UserIdentity{}, errors.Wrap(chatapi.ErrUnresolvable, err.Error())
	}
	uid, err := parseID(userID)
	if err != nil {
		return chatapi.UserIdentity{}, errors.Wrap(chatapi.ErrUnresolvable, err.Error())
	}
	m, err := t.member(ctx, chatID, uid)
	if err != nil {
		return chatapi.UserIdentity{}, errors.Wrap(chatapi.ErrUnresolvable, err.Error())
	}
	switch m.MemberStatus() {
	case telego.MemberStatusLeft, telego.MemberStatusBanned:
		return chatapi.UserIdentity{}, errors.Wrapf(chatapi.ErrUnresolvable, "user %d left chat %d", uid, chatID)
	}
	return identity(m.MemberUser()), nil
}

func identity(u telego.User) chatapi.UserIdentity {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	mention := name
	if u.Username != "" {
		mention = "@" + u.Username
	}
	if name == "" {
		name = mention
	}
	return chatapi.UserIdentity{
		ID:      strconv.FormatInt(u.ID, 10),
		Name:    name,
		Mention: mention,
	}
}

// ResolveChannel accepts any chat the bot can see. Telegram has no guild
// hierarchy, so guildID only scopes the error message.
func (t *Transport) ResolveChannel(ctx context.Context, guildID, channelID string) (chatapi.Channel, error) {
	chatID, err := parseID(channelID)
	if err != nil {
		return chatapi.Channel{}, errors.Wrap(chatapi.ErrMissing, err.Error())
	}
	chat, err := t.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return chatapi.Channel{}, errors.Wrapf(chatapi.ErrMissing, "chat %s for %s: %v", channelID, guildID, err)
	}
	ch := chatapi.Channel{ID: channelID, GuildID: guildID, Name: chat.Title}
	if chat.Username != "" {
		ch.Name = "@" + chat.Username
	}
	m, err := t.member(ctx, chatID, t.botID)
	if err != nil {
		return ch, nil
	}
	ch.CanSend = canSend(chat.Type, m)
	return ch, nil
}

func canSend(chatType string, m telego.ChatMember) bool {
	switch m := m.(type) {
	case *telego.ChatMemberOwner:
		return true
	case *telego.ChatMemberAdministrator:
		return chatType != telego.ChatTypeChannel || m.CanPostMessages
	case *telego.ChatMemberMember:
		return chatType != telego.ChatTypeChannel
	case *telego.ChatMemberRestricted:
		return m.IsMember && m.CanSendMessages
	}
	return false
}

// JumpURL links into supergroups and channels. Basic groups have no message links.
func (t *Transport) JumpURL(guildID string, h chatapi.MessageHandle) string {
	if h.IsZero() {
		return ""
	}
	internal, ok := strings.CutPrefix(h.ChannelID, "-100")
	if !ok {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%s/%s", internal, h.MessageID)
}

var _ chatapi.Transport = (*Transport)(nil)
