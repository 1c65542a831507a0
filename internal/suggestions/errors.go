package suggestions

import (
	"github.com/pkg/errors"

	"suggestbot/internal/database"
	"suggestbot/internal/locales"
	"suggestbot/pkg/chatapi"
)

var (
	ErrInvalidID        = errors.New("suggestion id does not exist")
	ErrAlreadyResolved  = errors.New("suggestion already approved or rejected")
	ErrChannelMissing   = errors.New("suggestion channel missing")
	ErrMessageMissing   = errors.New("suggestion message missing")
	ErrStillRunning     = errors.New("suggestion still running")
	ErrNoSuggestChannel = errors.New("no suggestion channel configured")
	// ErrVotingClosed is an expected denial: the press is dropped, nothing failed.
	ErrVotingClosed    = errors.New("voting closed")
	ErrCannotSend      = errors.New("cannot send messages in channel")
	ErrPostFailed      = errors.New("failed to post suggestion")
	ErrEmptySuggestion = errors.New("empty suggestion")
	ErrEmptyReason     = errors.New("empty reason")
	ErrInvalidStyle    = errors.New("unknown button style")
	ErrInvalidEmoji    = errors.New("not an emoji")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrNotConfirmer    = errors.New("confirmation belongs to another user")
	ErrConfirmExpired  = errors.New("confirmation expired")
	ErrCooldown        = errors.New("submitting too fast")
)

// Kind classifies an error for reporting to the user.
type Kind int

const (
	KindInternal Kind = iota
	KindUserInput
	KindExternal
	KindAlreadyResolved
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindUserInput:
		return "user_input"
	case KindExternal:
		return "external"
	case KindAlreadyResolved:
		return "already_resolved"
	case KindConflict:
		return "conflict"
	}
	return "internal"
}

// Classify maps any error returned by the Manager to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrAlreadyResolved):
		return KindAlreadyResolved
	case errors.Is(err, database.ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, database.ErrSuggestionNotFound),
		errors.Is(err, ErrStillRunning),
		errors.Is(err, ErrNoSuggestChannel),
		errors.Is(err, ErrVotingClosed),
		errors.Is(err, ErrCannotSend),
		errors.Is(err, ErrEmptySuggestion),
		errors.Is(err, ErrEmptyReason),
		errors.Is(err, ErrInvalidStyle),
		errors.Is(err, ErrInvalidEmoji),
		errors.Is(err, ErrNotAuthorized),
		errors.Is(err, ErrNotConfirmer),
		errors.Is(err, ErrConfirmExpired),
		errors.Is(err, ErrCooldown):
		return KindUserInput
	case errors.Is(err, ErrChannelMissing),
		errors.Is(err, ErrMessageMissing),
		errors.Is(err, ErrPostFailed),
		errors.Is(err, chatapi.ErrNotFound),
		errors.Is(err, chatapi.ErrForbidden),
		errors.Is(err, chatapi.ErrDeliveryFailed),
		errors.Is(err, chatapi.ErrUnresolvable),
		errors.Is(err, chatapi.ErrMissing):
		return KindExternal
	}
	return KindInternal
}

// userMessages maps sentinel errors to message IDs. Order matters: the first match wins.
var userMessages = []struct {
	err error
	msg string
}{
	{ErrInvalidID, locales.ErrInvalidID},
	{database.ErrSuggestionNotFound, locales.ErrInvalidID},
	{ErrAlreadyResolved, locales.ErrAlreadyResolved},
	{ErrChannelMissing, locales.ErrChannelMissing},
	{ErrMessageMissing, locales.ErrMessageMissing},
	{ErrStillRunning, locales.ErrStillRunning},
	{ErrNoSuggestChannel, locales.ErrNoSuggestChannel},
	{ErrVotingClosed, locales.ErrVotingClosed},
	{ErrCannotSend, locales.ErrCannotSend},
	{ErrPostFailed, locales.ErrPostFailed},
	{ErrEmptySuggestion, locales.ErrEmptySuggestion},
	{ErrEmptyReason, locales.ErrEmptyReason},
	{ErrInvalidStyle, locales.ErrInvalidStyle},
	{ErrInvalidEmoji, locales.ErrInvalidEmoji},
	{ErrNotAuthorized, locales.ErrNotAuthorized},
	{ErrNotConfirmer, locales.ErrNotConfirmer},
	{ErrConfirmExpired, locales.ErrConfirmExpired},
	{ErrCooldown, locales.ErrCooldown},
}

// MessageID returns the message ID adapters show for err.
func MessageID(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	switch Classify(err) {
	case KindConflict:
		return locales.ErrConflict
	case KindExternal:
		return locales.ErrExternal
	}
	return locales.ErrInternal
}
