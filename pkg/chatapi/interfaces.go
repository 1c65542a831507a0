package chatapi

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by FetchCard and EditCard when the card no longer exists.
	ErrNotFound = errors.New("message not found")
	// ErrForbidden is returned when the bot lacks permission for an operation.
	ErrForbidden = errors.New("missing permissions")
	// ErrDeliveryFailed is returned by SendDirect when the user cannot be reached.
	ErrDeliveryFailed = errors.New("direct message delivery failed")
	// ErrUnresolvable is returned by ResolveUser when the user is not in the guild.
	ErrUnresolvable = errors.New("user cannot be resolved")
	// ErrMissing is returned by ResolveChannel when the channel is gone.
	ErrMissing = errors.New("channel missing")
)

// Transport is the chat platform as seen by the suggestion workflow.
// Both the Discord and the Telegram adapters implement it, and tests use fakes.
type Transport interface {
	// PostCard posts a card to a channel and returns its handle.
	PostCard(ctx context.Context, channelID string, card Card) (MessageHandle, error)
	// EditCard replaces the content and controls of a posted card.
	EditCard(ctx context.Context, handle MessageHandle, card Card) error
	// FetchCard checks that a posted card still exists and is reachable.
	FetchCard(ctx context.Context, handle MessageHandle) error
	// DeleteMessage removes a message, e.g. an invoking command when autodelete is on.
	DeleteMessage(ctx context.Context, handle MessageHandle) error
	// SendDirect sends a private message to a user.
	SendDirect(ctx context.Context, userID string, msg DirectMessage) error
	// ResolveUser looks a user up within a guild.
	ResolveUser(ctx context.Context, guildID, userID string) (UserIdentity, error)
	// ResolveChannel looks a channel up within a guild.
	ResolveChannel(ctx context.Context, guildID, channelID string) (Channel, error)
	// JumpURL builds a link to a posted card.
	JumpURL(guildID string, handle MessageHandle) string
}

// UserIdentity is a resolved guild member.
type UserIdentity struct {
	ID        string
	Name      string
	AvatarURL string
	Mention   string
}

// Display returns the "name (id)" form used in card author blocks.
func (u UserIdentity) Display() string {
	return u.Name + " (" + u.ID + ")"
}

// Channel is a resolved guild channel.
type Channel struct {
	ID      string
	GuildID string
	Name    string
	// CanSend reports whether the bot may post in the channel.
	CanSend bool
}

// DirectMessage is the payload of SendDirect.
type DirectMessage struct {
	Content string
	Card    *Card
}
