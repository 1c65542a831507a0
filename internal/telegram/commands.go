package telegram

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/mymmrac/telego"
	"github.com/pkg/errors"

	"suggestbot/internal/database/models"
	"suggestbot/internal/locales"
	"suggestbot/internal/suggestions"
	"suggestbot/pkg/chatapi"
)

// errUsage is returned by command handlers for malformed arguments.
var errUsage = errors.New("bad command usage")

// request is a parsed command message.
type request struct {
	msg     telego.Message
	guildID string
	userID  string
	args    string
}

// reply is what a command sends back. sent, when set, receives the handle of the posted reply.
type reply struct {
	content string
	card    *chatapi.Card
	sent    func(chatapi.MessageHandle)
}

// command maps a command string to its description and handler function.
type command struct {
	Command     string
	Description string
	Usage       string
	Admin       bool
	Handler     func(ctx context.Context, req request) (reply, error)
}

func (b *Bot) commandList() []command {
	return []command{
		{Command: "suggest", Description: "Suggest something", Usage: "/suggest <text>", Handler: b.cmdSuggest},
		{Command: "approve", Description: "Approve a suggestion", Usage: "/approve <id> [reason]", Admin: true, Handler: b.resolver(models.StatusApproved)},
		{Command: "reject", Description: "Reject a suggestion", Usage: "/reject <id> [reason]", Admin: true, Handler: b.resolver(models.StatusRejected)},
		{Command: "view", Description: "Show a suggestion", Usage: "/view <id>", Admin: true, Handler: b.cmdView},
		{Command: "editreason", Description: "Change the reason of a resolved suggestion", Usage: "/editreason <id> <reason>", Admin: true, Handler: b.cmdEditReason},
		{Command: "setchannel", Description: "Set or clear a suggestion channel", Usage: "/setchannel <suggest|reject|approve> [chat id|clear]", Admin: true, Handler: b.cmdSetChannel},
		{Command: "setemoji", Description: "Set or reset a vote button emoji", Usage: "/setemoji <upvote|downvote> [emoji]", Admin: true, Handler: b.cmdSetEmoji},
		{Command: "buttoncolor", Description: "Set or reset a vote button colour", Usage: "/buttoncolor <upvote|downvote> [colour]", Admin: true, Handler: b.cmdButtonColor},
		{Command: "autodelete", Description: "Toggle deleting suggestion commands", Usage: "/autodelete", Admin: true, Handler: b.cmdAutoDelete},
		{Command: "showsettings", Description: "Show the suggestion settings", Usage: "/showsettings", Admin: true, Handler: b.cmdShowSettings},
		{Command: "reset", Description: "Reset this chat's suggestions", Usage: "/reset", Admin: true, Handler: b.resetter(suggestions.ResetGuild)},
		{Command: "resetall", Description: "Reset the suggestions of every chat", Usage: "/resetall", Admin: true, Handler: b.resetter(suggestions.ResetEverything)},
		{Command: "help", Description: "List the suggestion commands", Usage: "/help", Handler: b.cmdHelp},
		{Command: "start", Description: "List the suggestion commands", Usage: "/start", Handler: b.cmdHelp},
	}
}

// parseCommand splits "/name@bot args". ok is false for commands addressed to another bot.
func parseCommand(text, botUsername string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, args = head[:i], head[i:]
	}
	name, target, addressed := strings.Cut(head, "@")
	if addressed && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(args), name != ""
}

// splitID reads a leading suggestion id.
func splitID(args string) (int64, string, error) {
	head, rest, _ := strings.Cut(args, " ")
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, "", errUsage
	}
	return id, strings.TrimSpace(rest), nil
}

func splitDirection(args string) (suggestions.Direction, string, error) {
	head, rest, _ := strings.Cut(args, " ")
	dir, ok := suggestions.ParseDirection(strings.ToLower(head))
	if !ok {
		return "", "", errUsage
	}
	return dir, strings.TrimSpace(rest), nil
}

func (b *Bot) cmdSuggest(ctx context.Context, req request) (reply, error) {
	if req.args == "" {
		return reply{}, errUsage
	}
	sub, err := b.mgr.Submit(ctx, req.guildID, req.userID, req.args)
	if err != nil {
		return reply{}, err
	}
	return reply{content: b.mgr.Text(locales.MsgSubmitted, map[string]any{"ID": sub.Suggestion.ID})}, nil
}

func (b *Bot) resolver(status models.SuggestionStatus) func(context.Context, request) (reply, error) {
	return func(ctx context.Context, req request) (reply, error) {
		id, reason, err := splitID(req.args)
		if err != nil {
			return reply{}, err
		}
		res, err := b.mgr.Resolve(ctx, suggestions.ResolveRequest{
			GuildID:    req.guildID,
			ID:         id,
			Status:     status,
			ReviewerID: req.userID,
			Reason:     reason,
		})
		if err != nil {
			return reply{}, err
		}
		return reply{content: b.mgr.ResolutionNotice(res)}, nil
	}
}

func (b *Bot) cmdView(ctx context.Context, req request) (reply, error) {
	id, _, err := splitID(req.args)
	if err != nil {
		return reply{}, err
	}
	card, err := b.mgr.View(ctx, req.guildID, id)
	if err != nil {
		return reply{}, err
	}
	return reply{card: &card}, nil
}

func (b *Bot) cmdEditReason(ctx context.Context, req request) (reply, error) {
	id, reason, err := splitID(req.args)
	if err != nil || reason == "" {
		return reply{}, errUsage
	}
	res, err := b.mgr.EditReason(ctx, req.guildID, id, req.userID, reason)
	if err != nil {
		return reply{}, err
	}
	if res.CardErr != nil {
		return reply{content: b.mgr.Text(locales.MsgCardEditFailed, nil)}, nil
	}
	return reply{content: b.mgr.Text(locales.MsgReasonEdited, map[string]any{"ID": id})}, nil
}

func (b *Bot) cmdSetChannel(ctx context.Context, req request) (reply, error) {
	head, target, _ := strings.Cut(req.args, " ")
	kind := suggestions.ChannelKind(strings.ToLower(head))
	switch kind {
	case suggestions.SuggestChannel, suggestions.RejectChannel, suggestions.ApproveChannel:
	default:
		return reply{}, errUsage
	}
	switch target = strings.TrimSpace(target); strings.ToLower(target) {
	case "":
		target = req.guildID
	case "clear", "none":
		target = ""
	}
	if target != "" && target != req.guildID {
		// Any chat the bot sees could be named; the caller must run it too.
		isAdmin, err := b.admins.IsAdmin(ctx, target, req.userID)
		if err != nil || !isAdmin {
			return reply{}, suggestions.ErrNotAuthorized
		}
	}
	msg, err := b.mgr.SetChannel(ctx, req.guildID, kind, target)
	return reply{content: msg}, err
}

func (b *Bot) cmdSetEmoji(ctx context.Context, req request) (reply, error) {
	dir, emoji, err := splitDirection(req.args)
	if err != nil {
		return reply{}, err
	}
	msg, err := b.mgr.SetEmoji(ctx, req.guildID, dir, emoji)
	return reply{content: msg}, err
}

func (b *Bot) cmdButtonColor(ctx context.Context, req request) (reply, error) {
	dir, colour, err := splitDirection(req.args)
	if err != nil {
		return reply{}, err
	}
	msg, err := b.mgr.SetButtonStyle(ctx, req.guildID, dir, colour)
	return reply{content: msg}, err
}

func (b *Bot) cmdAutoDelete(ctx context.Context, req request) (reply, error) {
	_, msg, err := b.mgr.ToggleAutoDelete(ctx, req.guildID)
	return reply{content: msg}, err
}

func (b *Bot) cmdShowSettings(ctx context.Context, req request) (reply, error) {
	name := req.msg.Chat.Title
	if name == "" {
		name = req.guildID
	}
	card, err := b.mgr.SettingsCard(ctx, req.guildID, name)
	if err != nil {
		return reply{}, err
	}
	return reply{card: &card}, nil
}

func (b *Bot) resetter(scope suggestions.ResetScope) func(context.Context, request) (reply, error) {
	return func(ctx context.Context, req request) (reply, error) {
		prompt := newPromptRef()
		card, err := b.mgr.RequestReset(req.guildID, req.userID, scope, func(final chatapi.Card) {
			h, ok := prompt.get()
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), processingTimeout)
			defer cancel()
			if err := b.tr.EditCard(ctx, h, final); err != nil {
				b.log.Warn().Err(err).Str("chat", req.guildID).Msg("failed to close expired reset prompt")
			}
		})
		if err != nil {
			return reply{}, err
		}
		return reply{card: &card, sent: prompt.set}, nil
	}
}

func (b *Bot) cmdHelp(ctx context.Context, req request) (reply, error) {
	return reply{content: b.mgr.Text(locales.MsgHelp, nil)}, nil
}

// botCommands is the command menu registered with Telegram.
func (b *Bot) botCommands() []telego.BotCommand {
	cmds := make([]telego.BotCommand, 0, len(b.commands))
	for _, c := range b.commandList() {
		if c.Command == "start" {
			continue
		}
		cmds = append(cmds, telego.BotCommand{Command: c.Command, Description: c.Description})
	}
	return cmds
}
