package telegram

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"suggestbot/internal/auth"
	"suggestbot/internal/locales"
	"suggestbot/internal/suggestions"
	"suggestbot/pkg/chatapi"
	"suggestbot/pkg/telegoapi"
)

const (
	// processingTimeout bounds the handling of one update.
	processingTimeout = 30 * time.Second
	// updatesPerSecond caps how fast updates are processed.
	updatesPerSecond = 20
)

// Bot represents the Telegram side of the suggestion workflow.
// It manages the update loop and routes commands and callback queries to the Manager.
type Bot struct {
	api         telegoapi.BotAPI
	tr          *Transport
	updatesChan <-chan telego.Update
	mgr         *suggestions.Manager
	admins      auth.Checker
	username    string
	commands    map[string]command
	log         zerolog.Logger
	ratelimiter ratelimit.Limiter
	wg          sync.WaitGroup
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Bot         telegoapi.BotAPI
	Transport   *Transport
	UpdatesChan <-chan telego.Update
	Manager     *suggestions.Manager
	Admins      auth.Checker
	Username    string
	Logger      zerolog.Logger
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, errors.New("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if deps.Manager == nil {
		return nil, errors.New("suggestion manager cannot be nil")
	}
	if deps.Admins == nil {
		return nil, errors.New("admin checker cannot be nil")
	}
	b := &Bot{
		api:         deps.Bot,
		tr:          deps.Transport,
		updatesChan: deps.UpdatesChan,
		mgr:         deps.Manager,
		admins:      deps.Admins,
		username:    deps.Username,
		log:         deps.Logger.With().Str("platform", "telegram").Logger(),
		ratelimiter: ratelimit.New(updatesPerSecond),
	}
	b.commands = make(map[string]command)
	for _, c := range b.commandList() {
		b.commands[c.Command] = c
	}
	return b, nil
}

// Start registers the command menu and processes updates until ctx is done
// or the updates channel closes.
func (b *Bot) Start(ctx context.Context) error {
	if b.updatesChan == nil {
		return errors.New("updates channel cannot be nil")
	}
	if err := b.setupCommands(ctx); err != nil {
		b.log.Warn().Err(err).Msg("failed to set bot commands")
	}
	b.log.Info().Str("username", b.username).Msg("listening for updates")

	for {
		select {
		case <-ctx.Done():
			b.log.Info().Msg("context done, stopping update processing")
			b.wg.Wait()
			b.mgr.Wait()
			return nil
		case update, ok := <-b.updatesChan:
			if !ok {
				b.log.Info().Msg("updates channel closed")
				b.wg.Wait()
				b.mgr.Wait()
				return nil
			}
			b.wg.Add(1)
			go func(up telego.Update) {
				defer b.wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}

// processUpdate routes incoming updates to the appropriate handlers.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("panic recovered in processUpdate")
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := *update.Message
		if message.From == nil {
			b.log.Debug().Int("message", message.MessageID).Int64("chat", message.Chat.ID).Msg("ignoring message without sender")
			return
		}
		b.handleCommandUpdate(ctx, message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, *update.CallbackQuery)
	}
}

// handleCommandUpdate processes a message identified as a command.
func (b *Bot) handleCommandUpdate(ctx context.Context, message telego.Message) {
	name, args, ok := parseCommand(message.Text, b.username)
	if !ok {
		return
	}
	req := request{
		msg:     message,
		guildID: strconv.FormatInt(message.Chat.ID, 10),
		userID:  strconv.FormatInt(message.From.ID, 10),
		args:    args,
	}
	logger := b.log.With().Str("command", name).Str("chat", req.guildID).Str("user", req.userID).Logger()

	cmd, found := b.commands[name]
	if !found {
		logger.Debug().Msg("no handler found")
		return
	}
	if message.Chat.Type == telego.ChatTypePrivate && cmd.Command != "help" && cmd.Command != "start" {
		b.send(ctx, message, reply{content: b.mgr.Text(locales.MsgHelp, nil)})
		return
	}
	if cmd.Admin {
		isAdmin, err := b.admins.IsAdmin(ctx, req.guildID, req.userID)
		if err != nil {
			logger.Warn().Err(err).Msg("admin check failed")
		}
		if !isAdmin {
			b.send(ctx, message, reply{content: b.mgr.Describe(suggestions.ErrNotAuthorized)})
			return
		}
	}

	logger.Debug().Msg("executing handler")
	out, err := cmd.Handler(ctx, req)
	switch {
	case errors.Is(err, errUsage):
		out = reply{content: b.mgr.Text(locales.ErrUsage, map[string]any{"Usage": cmd.Usage})}
	case err != nil:
		logger.Debug().Err(err).Stringer("kind", suggestions.Classify(err)).Msg("handler error")
		out = reply{content: b.mgr.Describe(err)}
	}
	b.send(ctx, message, out)
	b.mgr.CleanupInvocation(ctx, req.guildID, handle(&message))
}

// send answers a command message.
func (b *Bot) send(ctx context.Context, to telego.Message, out reply) {
	msg, err := b.tr.send(ctx, to.Chat.ID, out.content, out.card)
	if err != nil {
		b.log.Warn().Err(err).Int64("chat", to.Chat.ID).Msg("failed to send reply")
		return
	}
	if out.sent != nil {
		out.sent(handle(msg))
	}
}

// handleCallbackQuery processes an incoming callback query.
func (b *Bot) handleCallbackQuery(ctx context.Context, query telego.CallbackQuery) {
	answer := &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}
	defer func() {
		if err := b.api.AnswerCallbackQuery(ctx, answer); err != nil {
			b.log.Warn().Err(err).Str("query", query.ID).Msg("failed to answer callback query")
		}
	}()
	if query.Data == noopData || query.Message == nil {
		return
	}

	// Vote ids name the guild that owns the record; GuildID only covers
	// controls that do not.
	chat := query.Message.GetChat()
	ev := suggestions.ControlEvent{
		GuildID:   strconv.FormatInt(chat.ID, 10),
		UserID:    strconv.FormatInt(query.From.ID, 10),
		ControlID: query.Data,
		Message: chatapi.MessageHandle{
			ChannelID: strconv.FormatInt(chat.ID, 10),
			MessageID: strconv.Itoa(query.Message.GetMessageID()),
		},
	}
	out, ok := b.mgr.HandleControl(ctx, ev)
	if !ok {
		b.log.Debug().Str("data", query.Data).Msg("callback query not handled")
		return
	}
	if out.Silent {
		return
	}
	if out.Card != nil {
		if err := b.tr.EditCard(ctx, ev.Message, *out.Card); err != nil {
			b.log.Warn().Err(err).Str("chat", ev.GuildID).Msg("failed to update pressed message")
		} else {
			b.mgr.Settle(ctx, ev, out)
		}
	}
	answer.Text = out.Notice
}

func (b *Bot) setupCommands(ctx context.Context) error {
	err := b.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{Commands: b.botCommands()})
	return errors.Wrap(err, "failed to set bot commands")
}

// promptRef hands the handle of a posted prompt to its expiry callback.
type promptRef struct {
	mu sync.Mutex
	h  chatapi.MessageHandle
}

func newPromptRef() *promptRef {
	return &promptRef{}
}

func (p *promptRef) set(h chatapi.MessageHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.h = h
}

func (p *promptRef) get() (chatapi.MessageHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.h, !p.h.IsZero()
}
