package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/mymmrac/telego"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"suggestbot/pkg/telegoapi"
)

// Checker decides who may review suggestions and change a guild's settings.
type Checker interface {
	IsAdmin(ctx context.Context, guildID, userID string) (bool, error)
}

// Owners are bot owners. They pass every check.
type Owners struct {
	ids  mapset.Set[string]
	next Checker
}

// WithOwners wraps next so that the given user ids are always admins.
func WithOwners(next Checker, ids ...string) *Owners {
	return &Owners{ids: mapset.NewSet(ids...), next: next}
}

// IsOwner reports whether userID is a bot owner.
func (o *Owners) IsOwner(userID string) bool {
	return o.ids.Contains(userID)
}

func (o *Owners) IsAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	if o.ids.Contains(userID) {
		return true, nil
	}
	if o.next == nil {
		return false, nil
	}
	return o.next.IsAdmin(ctx, guildID, userID)
}

// TelegramAdmins treats the creator and the administrators of a chat as its admins.
type TelegramAdmins struct {
	bot telegoapi.BotAPI
	log zerolog.Logger
}

// NewTelegramAdmins creates a checker backed by getChatMember.
func NewTelegramAdmins(bot telegoapi.BotAPI, logger zerolog.Logger) (*TelegramAdmins, error) {
	if bot == nil {
		return nil, errors.New("telego bot instance cannot be nil")
	}
	return &TelegramAdmins{bot: bot, log: logger}, nil
}

// IsAdmin checks if a user is an administrator or creator of the chat guildID.
func (ta *TelegramAdmins) IsAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	chatID, err := strconv.ParseInt(guildID, 10, 64)
	if err != nil {
		return false, errors.Wrapf(err, "invalid chat id %q", guildID)
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return false, errors.Wrapf(err, "invalid user id %q", userID)
	}

	member, err := ta.bot.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: telego.ChatID{ID: chatID},
		UserID: uid,
	})
	if err != nil {
		// A user not found in the chat is simply not an admin.
		if strings.Contains(strings.ToLower(err.Error()), "user not found") {
			return false, nil
		}
		ta.log.Warn().Err(err).Int64("chat", chatID).Int64("user", uid).Msg("failed to check chat member, assuming non-admin")
		return false, errors.Wrap(err, "failed to get chat member info")
	}

	status := member.MemberStatus()
	return status == telego.MemberStatusCreator || status == telego.MemberStatusAdministrator, nil
}

// DiscordCanManage reports whether a member's resolved permissions allow
// managing the guild.
func DiscordCanManage(perms int64) bool {
	return perms&(discordgo.PermissionManageServer|discordgo.PermissionAdministrator) != 0
}
