package chatapi

import (
	"context"

	"go.uber.org/ratelimit"
)

// Limited throttles the outbound calls of a Transport.
type Limited struct {
	next    Transport
	limiter ratelimit.Limiter
}

// NewLimited wraps t so that at most perSecond platform calls are made per second.
func NewLimited(t Transport, perSecond int) *Limited {
	return &Limited{next: t, limiter: ratelimit.New(perSecond)}
}

func (l *Limited) PostCard(ctx context.Context, channelID string, card Card) (MessageHandle, error) {
	l.limiter.Take()
	return l.next.PostCard(ctx, channelID, card)
}

func (l *Limited) EditCard(ctx context.Context, handle MessageHandle, card Card) error {
	l.limiter.Take()
	return l.next.EditCard(ctx, handle, card)
}

func (l *Limited) FetchCard(ctx context.Context, handle MessageHandle) error {
	l.limiter.Take()
	return l.next.FetchCard(ctx, handle)
}

func (l *Limited) DeleteMessage(ctx context.Context, handle MessageHandle) error {
	l.limiter.Take()
	return l.next.DeleteMessage(ctx, handle)
}

func (l *Limited) SendDirect(ctx context.Context, userID string, msg DirectMessage) error {
	l.limiter.Take()
	return l.next.SendDirect(ctx, userID, msg)
}

func (l *Limited) ResolveUser(ctx context.Context, guildID, userID string) (UserIdentity, error) {
	l.limiter.Take()
	return l.next.ResolveUser(ctx, guildID, userID)
}

func (l *Limited) ResolveChannel(ctx context.Context, guildID, channelID string) (Channel, error) {
	l.limiter.Take()
	return l.next.ResolveChannel(ctx, guildID, channelID)
}

// JumpURL is computed locally and is not throttled.
func (l *Limited) JumpURL(guildID string, handle MessageHandle) string {
	return l.next.JumpURL(guildID, handle)
}

var _ Transport = (*Limited)(nil)
