package suggestions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"suggestbot/internal/locales"
	"suggestbot/pkg/chatapi"
)

// pendingReset is a reset prompt waiting for its requester's answer.
type pendingReset struct {
	guildID string
	userID  string
	scope   ResetScope
	timer   *time.Timer
}

// confirmations holds the open reset prompts. Each entry is consumed exactly
// once: by an answer from its requester or by its timer.
type confirmations struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[string]*pendingReset
}

func newConfirmations(timeout time.Duration) *confirmations {
	return &confirmations{timeout: timeout, pending: make(map[string]*pendingReset)}
}

func (c *confirmations) open(p *pendingReset, expire func()) string {
	token := uuid.NewString()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[token] = p
	p.timer = time.AfterFunc(c.timeout, func() {
		if c.take(token) != nil {
			expire()
		}
	})
	return token
}

// take removes and returns the prompt, or nil when it was already consumed.
func (c *confirmations) take(token string) *pendingReset {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok {
		return nil
	}
	delete(c.pending, token)
	return p
}

// claim is take restricted to the prompt's requester.
func (c *confirmations) claim(token, userID string) (*pendingReset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	if !ok {
		return nil, ErrConfirmExpired
	}
	if p.userID != userID {
		return nil, ErrNotConfirmer
	}
	delete(c.pending, token)
	p.timer.Stop()
	return p, nil
}

func (c *confirmations) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RequestReset opens a yes/no prompt for wiping suggestion data. Only userID
// may answer it. When nobody answers within the confirmation timeout the
// prompt counts as declined and onExpire receives the final card.
// Resetting every guild is restricted to owners.
func (m *Manager) RequestReset(guildID, userID string, scope ResetScope, onExpire func(chatapi.Card)) (chatapi.Card, error) {
	if scope == ResetEverything && !m.owners.Contains(userID) {
		return chatapi.Card{}, ErrNotAuthorized
	}
	question := locales.MsgResetGuildConfirm
	if scope == ResetEverything {
		question = locales.MsgResetAllConfirm
	}

	p := &pendingReset{guildID: guildID, userID: userID, scope: scope}
	token := m.confirms.open(p, func() {
		m.log.Info().Str("guild", guildID).Str("user", userID).Msg("reset prompt timed out")
		if onExpire != nil {
			onExpire(m.promptCard(locales.MsgResetTimedOut, "", true))
		}
	})
	return m.promptCard(question, token, false), nil
}

func (m *Manager) answerConfirmation(ctx context.Context, token, userID string, yes bool) (chatapi.Card, error) {
	p, err := m.confirms.claim(token, userID)
	if err != nil {
		return chatapi.Card{}, err
	}
	logger := m.log.With().Str("guild", p.guildID).Str("user", userID).Stringer("scope", p.scope).Logger()
	if !yes {
		logger.Info().Msg("reset declined")
		return m.promptCard(locales.MsgResetCancelled, "", true), nil
	}

	done := locales.MsgResetGuildDone
	if p.scope == ResetEverything {
		err = m.store.ResetAll(ctx)
		done = locales.MsgResetAllDone
	} else {
		err = m.store.ResetGuild(ctx, p.guildID)
	}
	if err != nil {
		return chatapi.Card{}, errors.Wrap(err, "reset")
	}
	logger.Warn().Msg("suggestion data reset")
	return m.promptCard(done, "", true), nil
}

func (m *Manager) promptCard(msgID, token string, closed bool) chatapi.Card {
	yes := chatapi.Button{Label: m.Text(locales.LabelConfirm, nil), Style: chatapi.StyleGreen, Disabled: closed}
	no := chatapi.Button{Label: m.Text(locales.LabelCancel, nil), Style: chatapi.StyleRed, Disabled: closed}
	if !closed {
		yes.ID = confirmControlID(token, true)
		no.ID = confirmControlID(token, false)
	} else {
		// Disabled buttons still need distinct ids on some platforms.
		yes.ID = confirmPrefix + ":closed:yes"
		no.ID = confirmPrefix + ":closed:no"
	}
	return chatapi.Card{Description: m.Text(msgID, nil), Buttons: []chatapi.Button{yes, no}}
}
