package suggestions

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"suggestbot/internal/database/models"
	"suggestbot/internal/locales"
	"suggestbot/pkg/chatapi"
)

// Resolve approves or rejects a running suggestion.
//
// The status change is committed by a single guarded mutation, so repeating
// the call returns ErrAlreadyResolved and never notifies twice. After the
// commit the card is re-rendered in place; a failed edit is reported in
// Resolution.CardErr and does not undo the transition. The review-channel
// copy and the author's direct message are delivered in the background.
func (m *Manager) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if !req.Status.Terminal() {
		return nil, errors.Errorf("cannot resolve to status %q", req.Status)
	}
	started := time.Now()

	rec, err := m.Get(ctx, req.GuildID, req.ID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, ErrAlreadyResolved
	}
	if err := m.locate(ctx, req.GuildID, rec.Message); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	committed, err := m.store.MutateSuggestion(ctx, req.GuildID, req.ID, func(s *models.Suggestion) error {
		if s.Status.Terminal() {
			return ErrAlreadyResolved
		}
		s.Status = req.Status
		s.ReviewerID = models.Ptr(req.ReviewerID)
		s.Reason = models.Ptr(reason)
		s.ReviewedAt = m.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.Resolutions.Observe(1, string(req.Status))
	logger := m.log.With().Str("guild", req.GuildID).Int64("suggestion", req.ID).Logger()
	logger.Info().Str("status", string(req.Status)).Str("reviewer", req.ReviewerID).Msg("suggestion resolved")

	res, eff, who := m.rerender(ctx, *committed)
	m.metrics.ResolveLatency.Observe(time.Since(started).Seconds(), string(req.Status))
	if res.CardErr != nil {
		m.sideEffectFailed("card_edit", req.GuildID, req.ID, res.CardErr)
	}

	copyCard := LinkOnly(res.Card, res.JumpURL)
	if channelID := eff.ReviewChannel(committed.Status); channelID != "" {
		m.background(ctx, "review_copy", req.GuildID, req.ID, func(ctx context.Context) error {
			_, err := m.transport.PostCard(ctx, channelID, copyCard)
			return err
		})
	}

	if who.Suggester != nil {
		reviewer := req.ReviewerID
		if who.Reviewer != nil {
			reviewer = who.Reviewer.Display()
		}
		dm := chatapi.DirectMessage{
			Content: m.Text(locales.MsgResolvedDM, map[string]any{
				"ID":       committed.ID,
				"Status":   string(committed.Status),
				"Reviewer": reviewer,
				"Reason":   reason,
			}),
			// Counts and the jump link only, without the embed.
			Card: models.Ptr(ReadOnly(chatapi.Card{Buttons: res.Card.Buttons}, res.JumpURL)),
		}
		suggester := who.Suggester.ID
		m.background(ctx, "author_dm", req.GuildID, req.ID, func(ctx context.Context) error {
			return m.transport.SendDirect(ctx, suggester, dm)
		})
	}

	return res, nil
}

// EditReason replaces the reason of a resolved suggestion and re-renders its card.
// The new reason must be non-empty and the guild must still have a suggest channel.
func (m *Manager) EditReason(ctx context.Context, guildID string, id int64, editorID, reason string) (*Resolution, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}
	eff, err := m.Effective(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if eff.SuggestChannel == "" {
		return nil, ErrNoSuggestChannel
	}
	rec, err := m.Get(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Terminal() {
		return nil, ErrStillRunning
	}
	committed, err := m.store.MutateSuggestion(ctx, guildID, id, func(s *models.Suggestion) error {
		if !s.Status.Terminal() {
			return ErrStillRunning
		}
		s.Reason = models.Ptr(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("guild", guildID).Int64("suggestion", id).Str("editor", editorID).Msg("reason edited")

	res, _, _ := m.rerender(ctx, *committed)
	if res.CardErr != nil {
		m.sideEffectFailed("card_edit", guildID, id, res.CardErr)
	}
	return res, nil
}

// ResolutionNotice is the reply shown to the reviewer after Resolve.
func (m *Manager) ResolutionNotice(res *Resolution) string {
	if res.CardErr != nil {
		return m.Text(locales.MsgCardEditFailed, nil)
	}
	return m.Text(locales.MsgResolved, map[string]any{
		"ID":     res.Suggestion.ID,
		"Status": string(res.Suggestion.Status),
	})
}

// rerender renders a committed record and edits its posted card.
func (m *Manager) rerender(ctx context.Context, rec models.Suggestion) (*Resolution, models.Effective, Identities) {
	res := &Resolution{
		Suggestion: rec,
		JumpURL:    m.transport.JumpURL(rec.GuildID, rec.Message),
	}
	eff, err := m.Effective(ctx, rec.GuildID)
	if err != nil {
		// The transition is already stored; render with defaults.
		eff = models.Settings{GuildID: rec.GuildID}.Apply(m.defaults)
		res.CardErr = err
	}
	who := m.identities(ctx, rec.GuildID, rec)
	res.Card = RenderCard(rec, eff, who)
	if err := m.transport.EditCard(ctx, rec.Message, res.Card); err != nil {
		res.CardErr = errors.Wrap(err, "edit card")
	}
	return res, eff, who
}
