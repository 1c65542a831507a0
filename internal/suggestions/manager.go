package suggestions

import (
	"context"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/getsentry/sentry-go"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"suggestbot/internal/database"
	"suggestbot/internal/database/models"
	"suggestbot/internal/locales"
	"suggestbot/internal/metrics"
	"suggestbot/pkg/chatapi"
)

const (
	// sideEffectTimeout bounds each background delivery.
	sideEffectTimeout = 30 * time.Second
	// DefaultConfirmTimeout is how long a reset prompt waits for an answer.
	DefaultConfirmTimeout = 30 * time.Second
)

// Reporter receives errors that were handled but should not go unnoticed.
// *sentry.Hub satisfies it.
type Reporter interface {
	CaptureException(exception error) *sentry.EventID
}

// Manager runs the suggestion workflow of every guild. It is safe for
// concurrent use; per-record ordering is enforced by the store.
type Manager struct {
	store     database.Store
	transport chatapi.Transport

	defaults  models.Defaults
	log       zerolog.Logger
	metrics   *metrics.Metrics
	reporter  Reporter
	localizer *i18n.Localizer
	owners    mapset.Set[string]
	now       func() time.Time

	confirmTimeout time.Duration
	confirms       *confirmations
	submitCooldown time.Duration
	cooldowns      *cooldowns
	controls       map[string]controlHandler

	wg sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "suggestions").Logger() }
}

// WithMetrics sets the instruments the workflow reports to.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithDefaults overrides the settings defaults.
func WithDefaults(d models.Defaults) Option {
	return func(m *Manager) { m.defaults = d }
}

// WithReporter sets where swallowed errors are reported. Defaults to the current Sentry hub.
func WithReporter(r Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// WithLanguage sets the language of replies. locales.Init must have run.
func WithLanguage(lang string) Option {
	return func(m *Manager) { m.localizer = locales.NewLocalizer(lang) }
}

// WithOwners sets the users allowed to reset every guild at once.
func WithOwners(ids ...string) Option {
	return func(m *Manager) { m.owners = mapset.NewSet(ids...) }
}

// WithConfirmTimeout sets how long reset prompts wait before counting as declined.
func WithConfirmTimeout(d time.Duration) Option {
	return func(m *Manager) { m.confirmTimeout = d }
}

// WithSubmitCooldown limits each user to one submission per d. Zero disables the limit.
func WithSubmitCooldown(d time.Duration) Option {
	return func(m *Manager) { m.submitCooldown = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over store and transport.
func NewManager(store database.Store, transport chatapi.Transport, opts ...Option) *Manager {
	if store == nil {
		panic("suggestions: nil store")
	}
	if transport == nil {
		panic("suggestions: nil transport")
	}
	m := &Manager{
		store:          store,
		transport:      transport,
		defaults:       models.BuiltinDefaults(),
		log:            zerolog.Nop(),
		metrics:        metrics.New(),
		reporter:       sentry.CurrentHub(),
		owners:         mapset.NewSet[string](),
		now:            time.Now,
		confirmTimeout: DefaultConfirmTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.localizer == nil {
		m.localizer = locales.NewLocalizer(locales.GetDefaultLanguageTag().String())
	}
	m.confirms = newConfirmations(m.confirmTimeout)
	m.cooldowns = newCooldowns(m.submitCooldown)
	m.controls = m.controlTable()
	return m
}

// Wait blocks until every background delivery started so far has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Text localizes a message ID.
func (m *Manager) Text(msgID string, data map[string]any) string {
	return locales.GetMessage(m.localizer, msgID, data, nil)
}

// Describe returns the localized message for an error returned by the Manager.
// Internal errors are reported before their generic message is returned.
func (m *Manager) Describe(err error) string {
	if Classify(err) == KindInternal {
		m.log.Error().Err(err).Msg("internal error")
		m.reporter.CaptureException(err)
	}
	var data map[string]any
	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		data = map[string]any{"Seconds": cooldown.Seconds()}
	}
	return m.Text(MessageID(err), data)
}

// Effective returns the guild's settings with defaults applied.
func (m *Manager) Effective(ctx context.Context, guildID string) (models.Effective, error) {
	st, err := m.store.GetSettings(ctx, guildID)
	if err != nil {
		return models.Effective{}, errors.Wrap(err, "load settings")
	}
	return st.Apply(m.defaults), nil
}

// Get loads a suggestion, mapping ids outside [1, count] to ErrInvalidID.
func (m *Manager) Get(ctx context.Context, guildID string, id int64) (*models.Suggestion, error) {
	if id < 1 {
		return nil, ErrInvalidID
	}
	rec, err := m.store.GetSuggestion(ctx, guildID, id)
	if errors.Is(err, database.ErrSuggestionNotFound) {
		return nil, ErrInvalidID
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load suggestion %d", id)
	}
	return rec, nil
}

// Export returns every suggestion of a guild in id order.
func (m *Manager) Export(ctx context.Context, guildID string) ([]models.Suggestion, error) {
	return m.store.ListSuggestions(ctx, guildID)
}

// Submit creates a suggestion, posts its card to the suggest channel and
// sends the author a confirmation in the background.
func (m *Manager) Submit(ctx context.Context, guildID, userID, text string) (*Submission, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySuggestion
	}
	eff, err := m.Effective(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if eff.SuggestChannel == "" {
		return nil, ErrNoSuggestChannel
	}
	ch, err := m.transport.ResolveChannel(ctx, guildID, eff.SuggestChannel)
	if err != nil {
		return nil, errors.Wrap(ErrChannelMissing, err.Error())
	}
	if !ch.CanSend {
		return nil, ErrPostFailed
	}
	if wait, ok := m.cooldowns.take(userID, m.now()); !ok {
		return nil, &CooldownError{RetryAfter: wait}
	}

	// The card goes out first so that no record exists without a message.
	// Its id is a guess until the store allocates one.
	count, err := m.store.CountSuggestions(ctx, guildID)
	if err != nil {
		m.cooldowns.refund(userID)
		return nil, errors.Wrap(err, "count suggestions")
	}
	rec := &models.Suggestion{
		ID:          count + 1,
		GuildID:     guildID,
		SuggesterID: models.Ptr(userID),
		Text:        text,
		Status:      models.StatusRunning,
		SubmittedAt: m.now().UTC(),
	}
	expected := rec.ID
	logger := m.log.With().Str("guild", guildID).Logger()

	card := RenderCard(*rec, eff, m.identities(ctx, guildID, *rec))
	handle, err := m.transport.PostCard(ctx, ch.ID, card)
	if err != nil {
		m.cooldowns.refund(userID)
		logger.Warn().Err(err).Msg("failed to post suggestion card")
		return nil, errors.Wrap(ErrPostFailed, err.Error())
	}
	rec.Message = handle
	if err := m.store.CreateSuggestion(ctx, rec); err != nil {
		m.cooldowns.refund(userID)
		if derr := m.transport.DeleteMessage(ctx, handle); derr != nil {
			logger.Warn().Err(derr).Msg("failed to remove card of unsaved suggestion")
		}
		return nil, errors.Wrap(err, "create suggestion")
	}
	m.metrics.Submissions.Observe(1)
	logger = logger.With().Int64("suggestion", rec.ID).Logger()

	if rec.ID != expected {
		// Another submission won the id; retitle the posted card.
		card = RenderCard(*rec, eff, m.identities(ctx, guildID, *rec))
		if err := m.transport.EditCard(ctx, handle, card); err != nil {
			m.sideEffectFailed("card_edit", guildID, rec.ID, err)
		}
	}
	logger.Info().Str("channel", ch.ID).Msg("suggestion submitted")

	jump := m.transport.JumpURL(guildID, handle)
	dm := chatapi.DirectMessage{
		Content: m.Text(locales.MsgSubmittedDM, nil),
		Card:    models.Ptr(LinkOnly(card, jump)),
	}
	m.background(ctx, "submit_dm", guildID, rec.ID, func(ctx context.Context) error {
		return m.transport.SendDirect(ctx, userID, dm)
	})

	return &Submission{Suggestion: rec.Clone(), Card: card, JumpURL: jump}, nil
}

// Vote toggles userID's vote and returns the counts with the re-rendered card.
// Votes on resolved suggestions return ErrVotingClosed and change nothing.
func (m *Manager) Vote(ctx context.Context, guildID string, id int64, userID string, dir Direction) (VoteResult, chatapi.Card, error) {
	res, _, card, err := m.vote(ctx, guildID, id, userID, dir)
	return res, card, err
}

func (m *Manager) vote(ctx context.Context, guildID string, id int64, userID string, dir Direction) (VoteResult, *models.Suggestion, chatapi.Card, error) {
	if id < 1 {
		return VoteResult{}, nil, chatapi.Card{}, ErrInvalidID
	}
	var res VoteResult
	rec, err := m.store.MutateSuggestion(ctx, guildID, id, func(s *models.Suggestion) error {
		var err error
		res, err = Toggle(s, userID, dir)
		return err
	})
	if errors.Is(err, database.ErrSuggestionNotFound) {
		return VoteResult{}, nil, chatapi.Card{}, ErrInvalidID
	}
	if err != nil {
		return res, nil, chatapi.Card{}, err
	}
	m.metrics.Votes.Observe(1, string(dir), string(res.Action))

	eff, err := m.Effective(ctx, guildID)
	if err != nil {
		return res, nil, chatapi.Card{}, err
	}
	return res, rec, RenderCard(*rec, eff, m.identities(ctx, guildID, *rec)), nil
}

// VoteNotice is the short reply shown to a voter.
func (m *Manager) VoteNotice(id int64, dir Direction, res VoteResult) string {
	data := map[string]any{"ID": id}
	switch {
	case res.Action == VoteRemoved:
		return m.Text(locales.MsgVoteRemoved, data)
	case dir == Down:
		return m.Text(locales.MsgVoteDown, data)
	}
	return m.Text(locales.MsgVoteUp, data)
}

// View renders a suggestion read-only with a link to its card.
func (m *Manager) View(ctx context.Context, guildID string, id int64) (chatapi.Card, error) {
	eff, err := m.Effective(ctx, guildID)
	if err != nil {
		return chatapi.Card{}, err
	}
	if eff.SuggestChannel == "" {
		return chatapi.Card{}, ErrNoSuggestChannel
	}
	rec, err := m.Get(ctx, guildID, id)
	if err != nil {
		return chatapi.Card{}, err
	}
	if err := m.locate(ctx, guildID, rec.Message); err != nil {
		return chatapi.Card{}, err
	}
	card := RenderCard(*rec, eff, m.identities(ctx, guildID, *rec))
	return ReadOnly(card, m.transport.JumpURL(guildID, rec.Message)), nil
}

// locate checks that the card behind handle can still be reached.
func (m *Manager) locate(ctx context.Context, guildID string, handle chatapi.MessageHandle) error {
	if handle.IsZero() {
		return ErrMessageMissing
	}
	if _, err := m.transport.ResolveChannel(ctx, guildID, handle.ChannelID); err != nil {
		return errors.Wrap(ErrChannelMissing, err.Error())
	}
	if err := m.transport.FetchCard(ctx, handle); err != nil {
		return errors.Wrap(ErrMessageMissing, err.Error())
	}
	return nil
}

// identities resolves the users rec mentions. Unresolvable users stay nil.
func (m *Manager) identities(ctx context.Context, guildID string, rec models.Suggestion) Identities {
	var who Identities
	if rec.SuggesterID != nil {
		who.Suggester = m.resolveUser(ctx, guildID, *rec.SuggesterID)
	}
	if rec.ReviewerID != nil {
		who.Reviewer = m.resolveUser(ctx, guildID, *rec.ReviewerID)
	}
	return who
}

func (m *Manager) resolveUser(ctx context.Context, guildID, userID string) *chatapi.UserIdentity {
	u, err := m.transport.ResolveUser(ctx, guildID, userID)
	if err != nil {
		return nil
	}
	return &u
}

// background runs a best-effort delivery detached from ctx's cancellation.
// Failures are logged, counted and reported but never returned.
func (m *Manager) background(ctx context.Context, sideEffect, guildID string, id int64, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.sideEffectFailed(sideEffect, guildID, id, err)
		}
	}()
}

func (m *Manager) sideEffectFailed(sideEffect, guildID string, id int64, err error) {
	m.log.Warn().Err(err).
		Str("guild", guildID).
		Int64("suggestion", id).
		Str("side_effect", sideEffect).
		Msg("best-effort delivery failed")
	m.metrics.SideEffectFailures.Observe(1, sideEffect)
	m.reporter.CaptureException(errors.Wrapf(err, "%s for suggestion %d in guild %s", sideEffect, id, guildID))
}

