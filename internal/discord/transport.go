package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"suggestbot/pkg/chatapi"
)

// sendPermissions are required to post suggestion cards in a channel.
const sendPermissions = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks

// Transport implements chatapi.Transport over the Discord REST API.
type Transport struct {
	s     Session
	botID string
}

// NewTransport creates a Transport acting as the bot user botID.
func NewTransport(s Session, botID string) *Transport {
	return &Transport{s: s, botID: botID}
}

// classify maps REST failures to the chatapi sentinels.
func classify(err error, fallback error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return errors.Wrap(chatapi.ErrNotFound, err.Error())
		case http.StatusForbidden:
			return errors.Wrap(chatapi.ErrForbidden, err.Error())
		}
	}
	if fallback != nil {
		return errors.Wrap(fallback, err.Error())
	}
	return err
}

func (t *Transport) PostCard(ctx context.Context, channelID string, card chatapi.Card) (chatapi.MessageHandle, error) {
	msg, err := t.s.ChannelMessageSendComplex(channelID, messageSend("", card), discordgo.WithContext(ctx))
	if err != nil {
		return chatapi.MessageHandle{}, classify(err, nil)
	}
	return chatapi.MessageHandle{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

func (t *Transport) EditCard(ctx context.Context, h chatapi.MessageHandle, card chatapi.Card) error {
	e := embeds(card)
	c := components(card)
	_, err := t.s.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         h.MessageID,
		Channel:    h.ChannelID,
		Embeds:     &e,
		Components: &c,
	}, discordgo.WithContext(ctx))
	return classify(err, nil)
}

func (t *Transport) FetchCard(ctx context.Context, h chatapi.MessageHandle) error {
	_, err := t.s.ChannelMessage(h.ChannelID, h.MessageID, discordgo.WithContext(ctx))
	return classify(err, chatapi.ErrNotFound)
}

func (t *Transport) DeleteMessage(ctx context.Context, h chatapi.MessageHandle) error {
	return classify(t.s.ChannelMessageDelete(h.ChannelID, h.MessageID, discordgo.WithContext(ctx)), nil)
}

func (t *Transport) SendDirect(ctx context.Context, userID string, msg chatapi.DirectMessage) error {
	dm, err := t.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(chatapi.ErrDeliveryFailed, err.Error())
	}
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.Card != nil {
		send = messageSend(msg.Content, *msg.Card)
	}
	if _, err := t.s.ChannelMessageSendComplex(dm.ID, send, discordgo.WithContext(ctx)); err != nil {
		return errors.Wrap(chatapi.ErrDeliveryFailed, err.Error())
	}
	return nil
}

func (t *Transport) ResolveUser(ctx context.Context, guildID, userID string) (chatapi.UserIdentity, error) {
	m, err := t.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil || m.User == nil {
		return chatapi.UserIdentity{}, errors.Wrapf(chatapi.ErrUnresolvable, "member %s of guild %s", userID, guildID)
	}
	return identity(m.User), nil
}

func identity(u *discordgo.User) chatapi.UserIdentity {
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return chatapi.UserIdentity{
		ID:        u.ID,
		Name:      name,
		AvatarURL: u.AvatarURL(""),
		Mention:   u.Mention(),
	}
}

func (t *Transport) ResolveChannel(ctx context.Context, guildID, channelID string) (chatapi.Channel, error) {
	ch, err := t.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil || ch.GuildID != guildID {
		return chatapi.Channel{}, errors.Wrapf(chatapi.ErrMissing, "channel %s of guild %s", channelID, guildID)
	}
	perms, err := t.s.UserChannelPermissions(t.botID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return chatapi.Channel{}, classify(err, chatapi.ErrForbidden)
	}
	return chatapi.Channel{
		ID:      ch.ID,
		GuildID: ch.GuildID,
		Name:    ch.Mention(),
		CanSend: perms&sendPermissions == sendPermissions || perms&discordgo.PermissionAdministrator != 0,
	}, nil
}

func (t *Transport) JumpURL(guildID string, h chatapi.MessageHandle) string {
	if h.IsZero() {
		return ""
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, h.ChannelID, h.MessageID)
}

var _ chatapi.Transport = (*Transport)(nil)
