package discord

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"suggestbot/internal/auth"
	"suggestbot/internal/database/models"
	"suggestbot/internal/locales"
	"suggestbot/internal/suggestions"
	"suggestbot/pkg/chatapi"
)

// processingTimeout bounds the handling of one interaction.
const processingTimeout = 30 * time.Second

// Bot answers slash commands and button presses.
type Bot struct {
	session *discordgo.Session
	api     Session
	mgr     *suggestions.Manager
	owners  *auth.Owners
	log     zerolog.Logger
	wg      sync.WaitGroup
}

// NewSession creates the gateway session for token.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Discord session")
	}
	s.Identify.Intents = discordgo.IntentGuilds
	return s, nil
}

// New creates a Bot. api is usually session itself.
func New(session *discordgo.Session, api Session, mgr *suggestions.Manager, owners *auth.Owners, logger zerolog.Logger) (*Bot, error) {
	if api == nil {
		return nil, errors.New("discord session cannot be nil")
	}
	if mgr == nil {
		return nil, errors.New("suggestion manager cannot be nil")
	}
	if owners == nil {
		owners = auth.WithOwners(nil)
	}
	return &Bot{
		session: session,
		api:     api,
		mgr:     mgr,
		owners:  owners,
		log:     logger.With().Str("platform", "discord").Logger(),
	}, nil
}

// Start registers the handlers, opens the gateway and blocks until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b.session == nil {
		return errors.New("discord gateway session cannot be nil")
	}
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.Ready) {
		if err := b.registerCommands(ctx, ev.Application.ID); err != nil {
			b.log.Error().Err(err).Msg("failed to update slash commands")
			sentry.CaptureException(err)
			return
		}
		b.log.Info().Str("user", ev.User.Username).Int("guilds", len(ev.Guilds)).Msg("connected")
	})
	b.session.AddHandler(func(_ *discordgo.Session, ev *discordgo.InteractionCreate) {
		b.wg.Add(1)
		defer b.wg.Done()
		b.processInteraction(ctx, ev.Interaction)
	})
	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open Discord session")
	}
	b.log.Info().Msg("listening for interactions")

	<-ctx.Done()
	b.log.Info().Msg("context done, closing session")
	err := b.session.Close()
	b.wg.Wait()
	b.mgr.Wait()
	return errors.Wrap(err, "close Discord session")
}

func (b *Bot) registerCommands(ctx context.Context, appID string) error {
	_, err := b.api.ApplicationCommandBulkOverwrite(appID, "", Commands(), discordgo.WithContext(ctx))
	return errors.Wrap(err, "failed to update slash commands")
}

// processInteraction routes one interaction, recovering from panics in handlers.
func (b *Bot) processInteraction(ctx context.Context, i *discordgo.Interaction) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("panic recovered in processInteraction")
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()

	if i.GuildID == "" {
		b.respond(ctx, i, b.mgr.Text(locales.ErrNotAuthorized, nil), nil, true)
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	default:
		b.log.Debug().Stringer("type", i.Type).Msg("ignoring interaction")
	}
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) isAdmin(i *discordgo.Interaction) bool {
	if b.owners.IsOwner(userID(i)) {
		return true
	}
	return i.Member != nil && auth.DiscordCanManage(i.Member.Permissions)
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	logger := b.log.With().Str("command", data.Name).Str("guild", i.GuildID).Str("user", userID(i)).Logger()
	logger.Debug().Msg("executing command")

	if data.Name != cmdSuggest && !b.isAdmin(i) {
		b.respond(ctx, i, b.mgr.Text(locales.ErrNotAuthorized, nil), nil, true)
		return
	}

	switch data.Name {
	case cmdSuggest:
		b.suggest(ctx, i, options(data.Options))
	case cmdApprove:
		b.resolve(ctx, i, models.StatusApproved, options(data.Options))
	case cmdReject:
		b.resolve(ctx, i, models.StatusRejected, options(data.Options))
	case cmdSuggestionSet:
		if len(data.Options) != 1 {
			logger.Warn().Msg("suggestionset without subcommand")
			return
		}
		b.settings(ctx, i, data.Options[0])
	default:
		logger.Warn().Msg("no handler found")
	}
}

func (b *Bot) suggest(ctx context.Context, i *discordgo.Interaction, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.deferReply(ctx, i, true) {
		return
	}
	sub, err := b.mgr.Submit(ctx, i.GuildID, userID(i), stringOption(opts, optText))
	if err != nil {
		b.edit(ctx, i, b.mgr.Describe(err), nil)
		return
	}
	b.edit(ctx, i, b.mgr.Text(locales.MsgSubmitted, map[string]any{"ID": sub.Suggestion.ID}), nil)
}

func (b *Bot) resolve(ctx context.Context, i *discordgo.Interaction, status models.SuggestionStatus, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	if !b.deferReply(ctx, i, true) {
		return
	}
	res, err := b.mgr.Resolve(ctx, suggestions.ResolveRequest{
		GuildID:    i.GuildID,
		ID:         intOption(opts, optID),
		Status:     status,
		ReviewerID: userID(i),
		Reason:     stringOption(opts, optReason),
	})
	if err != nil {
		b.edit(ctx, i, b.mgr.Describe(err), nil)
		return
	}
	b.edit(ctx, i, b.mgr.ResolutionNotice(res), nil)
}

func (b *Bot) settings(ctx context.Context, i *discordgo.Interaction, sub *discordgo.ApplicationCommandInteractionDataOption) {
	opts := options(sub.Options)
	switch sub.Name {
	case subChannel:
		var channelID string
		if o, ok := opts[optChannel]; ok {
			channelID = o.Value.(string)
		}
		b.reply(ctx, i, true, func() (string, *chatapi.Card, error) {
			msg, err := b.mgr.SetChannel(ctx, i.GuildID, suggestions.ChannelKind(stringOption(opts, optType)), channelID)
			return msg, nil, err
		})
	case subEmoji:
		dir, _ := suggestions.ParseDirection(stringOption(opts, optVote))
		b.reply(ctx, i, true, func() (string, *chatapi.Card, error) {
			msg, err := b.mgr.SetEmoji(ctx, i.GuildID, dir, stringOption(opts, optEmoji))
			return msg, nil, err
		})
	case subButtonColor:
		dir, _ := suggestions.ParseDirection(stringOption(opts, optVote))
		b.reply(ctx, i, true, func() (string, *chatapi.Card, error) {
			msg, err := b.mgr.SetButtonStyle(ctx, i.GuildID, dir, stringOption(opts, optColour))
			return msg, nil, err
		})
	case subAutoDelete:
		b.reply(ctx, i, true, func() (string, *chatapi.Card, error) {
			_, msg, err := b.mgr.ToggleAutoDelete(ctx, i.GuildID)
			return msg, nil, err
		})
	case subShowSettings:
		b.reply(ctx, i, false, func() (string, *chatapi.Card, error) {
			card, err := b.mgr.SettingsCard(ctx, i.GuildID, b.guildName(ctx, i.GuildID))
			return "", &card, err
		})
	case subView:
		b.reply(ctx, i, false, func() (string, *chatapi.Card, error) {
			card, err := b.mgr.View(ctx, i.GuildID, intOption(opts, optID))
			return "", &card, err
		})
	case subEditReason:
		b.reply(ctx, i, true, func() (string, *chatapi.Card, error) {
			res, err := b.mgr.EditReason(ctx, i.GuildID, intOption(opts, optID), userID(i), stringOption(opts, optReason))
			if err != nil {
				return "", nil, err
			}
			if res.CardErr != nil {
				return b.mgr.Text(locales.MsgCardEditFailed, nil), nil, nil
			}
			return b.mgr.Text(locales.MsgReasonEdited, map[string]any{"ID": res.Suggestion.ID}), nil, nil
		})
	case subReset, subResetCog:
		scope := suggestions.ResetGuild
		if sub.Name == subResetCog {
			scope = suggestions.ResetEverything
		}
		card, err := b.mgr.RequestReset(i.GuildID, userID(i), scope, func(final chatapi.Card) {
			ctx, cancel := context.WithTimeout(context.Background(), processingTimeout)
			defer cancel()
			b.edit(ctx, i, "", &final)
		})
		if err != nil {
			b.respond(ctx, i, b.mgr.Describe(err), nil, true)
			return
		}
		b.respond(ctx, i, "", &card, true)
	default:
		b.log.Warn().Str("subcommand", sub.Name).Msg("no handler found")
	}
}

// reply defers the response, runs fn and edits the deferred response with its outcome.
func (b *Bot) reply(ctx context.Context, i *discordgo.Interaction, ephemeral bool, fn func() (string, *chatapi.Card, error)) {
	if !b.deferReply(ctx, i, ephemeral) {
		return
	}
	content, card, err := fn()
	if err != nil {
		b.edit(ctx, i, b.mgr.Describe(err), nil)
		return
	}
	b.edit(ctx, i, content, card)
}

func (b *Bot) guildName(ctx context.Context, guildID string) string {
	g, err := b.api.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		b.log.Debug().Err(err).Str("guild", guildID).Msg("failed to fetch guild")
		return guildID
	}
	return g.Name
}

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.Interaction) {
	data := i.MessageComponentData()
	ev := suggestions.ControlEvent{
		GuildID:   i.GuildID,
		UserID:    userID(i),
		ControlID: data.CustomID,
	}
	if i.Message != nil {
		ev.Message = chatapi.MessageHandle{ChannelID: i.ChannelID, MessageID: i.Message.ID}
	}
	reply, ok := b.mgr.HandleControl(ctx, ev)
	if !ok {
		b.log.Debug().Str("custom_id", data.CustomID).Msg("button not handled")
		reply = suggestions.Reply{Silent: true}
	}

	switch {
	case reply.Silent:
		b.ack(ctx, i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
	case reply.Card != nil:
		if b.ack(ctx, i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: responseData("", reply.Card, false),
		}) {
			b.mgr.Settle(ctx, ev, reply)
		}
		if reply.Notice != "" {
			_, err := b.api.FollowupMessageCreate(i, false, &discordgo.WebhookParams{
				Content: reply.Notice,
				Flags:   discordgo.MessageFlagsEphemeral,
			}, discordgo.WithContext(ctx))
			if err != nil {
				b.log.Warn().Err(err).Msg("failed to send followup")
			}
		}
	default:
		b.respond(ctx, i, reply.Notice, nil, true)
	}
}

func (b *Bot) ack(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) bool {
	if err := b.api.InteractionRespond(i, resp, discordgo.WithContext(ctx)); err != nil {
		b.log.Warn().Err(err).Str("interaction", i.ID).Msg("failed to respond to interaction")
		return false
	}
	return true
}

func (b *Bot) respond(ctx context.Context, i *discordgo.Interaction, content string, card *chatapi.Card, ephemeral bool) {
	b.ack(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: responseData(content, card, ephemeral),
	})
}

func (b *Bot) deferReply(ctx context.Context, i *discordgo.Interaction, ephemeral bool) bool {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return b.ack(ctx, i, resp)
}

func (b *Bot) edit(ctx context.Context, i *discordgo.Interaction, content string, card *chatapi.Card) {
	e := []*discordgo.MessageEmbed{}
	c := []discordgo.MessageComponent{}
	if card != nil {
		e = embeds(*card)
		c = components(*card)
	}
	_, err := b.api.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &e,
		Components: &c,
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.log.Warn().Err(err).Str("interaction", i.ID).Msg("failed to edit interaction response")
	}
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := opts[name]
	if !ok {
		return ""
	}
	s, _ := o.Value.(string)
	return s
}

// intOption reads an integer option. Interaction payloads carry numbers as float64.
func intOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	o, ok := opts[name]
	if !ok {
		return 0
	}
	switch v := o.Value.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
