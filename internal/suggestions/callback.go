package suggestions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"suggestbot/internal/locales"
	"suggestbot/pkg/chatapi"
)

// Control ids carry everything needed to handle a press, so cards posted
// before a restart keep working without any in-memory registration.
//
//	suggestion:<up|down>:<id>:<guild>
//	confirm:<token>:<yes|no>
//
// The guild is part of vote ids because a card may live in a chat other
// than the one its guild is configured from. Ids without it resolve against
// the guild the press came from.
const (
	votePrefix    = "suggestion"
	confirmPrefix = "confirm"
)

// VoteControlID is the control id of a vote button on a card of guildID.
func VoteControlID(guildID string, id int64, dir Direction) string {
	if guildID == "" {
		return fmt.Sprintf("%s:%s:%d", votePrefix, dir, id)
	}
	return fmt.Sprintf("%s:%s:%d:%s", votePrefix, dir, id, guildID)
}

// ParseVoteControlID is the inverse of VoteControlID. guildID is empty for
// ids that do not name their guild.
func ParseVoteControlID(s string) (guildID string, id int64, dir Direction, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != votePrefix {
		return "", 0, "", false
	}
	dir, ok = ParseDirection(parts[1])
	if !ok {
		return "", 0, "", false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id < 1 {
		return "", 0, "", false
	}
	if len(parts) == 4 {
		if parts[3] == "" {
			return "", 0, "", false
		}
		guildID = parts[3]
	}
	return guildID, id, dir, true
}

func confirmControlID(token string, yes bool) string {
	answer := "no"
	if yes {
		answer = "yes"
	}
	return confirmPrefix + ":" + token + ":" + answer
}

// ControlEvent is a button press reported by an adapter.
type ControlEvent struct {
	GuildID   string
	UserID    string
	ControlID string
	// Message is the message carrying the pressed button.
	Message chatapi.MessageHandle
}

// Reply tells the adapter how to answer a press. Card, when set, replaces the
// pressed message. Notice is shown privately to the presser. Silent presses
// are acknowledged without any visible answer.
type Reply struct {
	Card   *chatapi.Card
	Notice string
	Silent bool

	// rendered identifies the record version Card was rendered from.
	rendered *renderedRecord
}

type renderedRecord struct {
	guildID string
	id      int64
	version int64
}

type controlHandler func(ctx context.Context, ev ControlEvent) Reply

func (m *Manager) controlTable() map[string]controlHandler {
	return map[string]controlHandler{
		votePrefix:    m.handleVoteControl,
		confirmPrefix: m.handleConfirmControl,
	}
}

// HandleControl dispatches a button press. It reports false when the control
// id does not belong to this package.
func (m *Manager) HandleControl(ctx context.Context, ev ControlEvent) (Reply, bool) {
	prefix, _, _ := strings.Cut(ev.ControlID, ":")
	h, ok := m.controls[prefix]
	if !ok {
		return Reply{}, false
	}
	return h(ctx, ev), true
}

func (m *Manager) handleVoteControl(ctx context.Context, ev ControlEvent) Reply {
	guildID, id, dir, ok := ParseVoteControlID(ev.ControlID)
	if !ok {
		m.log.Warn().Str("control_id", ev.ControlID).Msg("malformed vote control")
		return Reply{Notice: m.Text(locales.ErrInvalidID, nil)}
	}
	if guildID == "" {
		guildID = ev.GuildID
	}
	res, rec, card, err := m.vote(ctx, guildID, id, ev.UserID, dir)
	switch {
	case err == nil:
		return Reply{
			Card:     &card,
			Notice:   m.VoteNotice(id, dir, res),
			rendered: &renderedRecord{guildID: guildID, id: id, version: rec.Version},
		}
	case Classify(err) == KindUserInput:
		// Presses on closed or unknown suggestions are dropped quietly.
		return Reply{Silent: true}
	}
	return Reply{Notice: m.Describe(err)}
}

func (m *Manager) handleConfirmControl(ctx context.Context, ev ControlEvent) Reply {
	parts := strings.Split(ev.ControlID, ":")
	if len(parts) != 3 {
		return Reply{Notice: m.Text(locales.ErrConfirmExpired, nil)}
	}
	card, err := m.answerConfirmation(ctx, parts[1], ev.UserID, parts[2] == "yes")
	if err != nil {
		return Reply{Notice: m.Describe(err)}
	}
	return Reply{Card: &card}
}

// Settle is called by adapters after they applied r.Card to ev's message.
// When the record changed since the card was rendered, for example because
// a resolve committed in between, the message is edited again from the
// current record so that a stale card never stays on screen.
func (m *Manager) Settle(ctx context.Context, ev ControlEvent, r Reply) {
	if r.rendered == nil || ev.Message.IsZero() {
		return
	}
	want := *r.rendered
	m.background(ctx, "card_settle", want.guildID, want.id, func(ctx context.Context) error {
		rec, err := m.store.GetSuggestion(ctx, want.guildID, want.id)
		if err != nil {
			return errors.Wrap(err, "reload suggestion")
		}
		if rec.Version == want.version {
			return nil
		}
		eff, err := m.Effective(ctx, want.guildID)
		if err != nil {
			return err
		}
		m.log.Debug().Str("guild", want.guildID).Int64("suggestion", want.id).
			Int64("rendered", want.version).Int64("current", rec.Version).Msg("re-rendering stale card")
		card := RenderCard(*rec, eff, m.identities(ctx, want.guildID, *rec))
		return m.transport.EditCard(ctx, ev.Message, card)
	})
}
