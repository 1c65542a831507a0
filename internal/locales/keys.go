package locales

// Message IDs of the embedded bundles.
const (
	ErrInvalidID        = "ErrInvalidID"
	ErrAlreadyResolved  = "ErrAlreadyResolved"
	ErrChannelMissing   = "ErrChannelMissing"
	ErrMessageMissing   = "ErrMessageMissing"
	ErrStillRunning     = "ErrStillRunning"
	ErrNoSuggestChannel = "ErrNoSuggestChannel"
	ErrVotingClosed     = "ErrVotingClosed"
	ErrCannotSend       = "ErrCannotSend"
	ErrPostFailed       = "ErrPostFailed"
	ErrEmptySuggestion  = "ErrEmptySuggestion"
	ErrEmptyReason      = "ErrEmptyReason"
	ErrInvalidStyle     = "ErrInvalidStyle"
	ErrInvalidEmoji     = "ErrInvalidEmoji"
	ErrNotAuthorized    = "ErrNotAuthorized"
	ErrNotConfirmer     = "ErrNotConfirmer"
	ErrConfirmExpired   = "ErrConfirmExpired"
	ErrCooldown         = "ErrCooldown"
	ErrConflict         = "ErrConflict"
	ErrExternal         = "ErrExternal"
	ErrInternal         = "ErrInternal"
	ErrUsage            = "ErrUsage"

	MsgSubmitted      = "MsgSubmitted"
	MsgSubmittedDM    = "MsgSubmittedDM"
	MsgResolved       = "MsgResolved"
	MsgResolvedDM     = "MsgResolvedDM"
	MsgCardEditFailed = "MsgCardEditFailed"
	MsgReasonEdited   = "MsgReasonEdited"
	MsgVoteUp         = "MsgVoteUp"
	MsgVoteDown       = "MsgVoteDown"
	MsgVoteRemoved    = "MsgVoteRemoved"

	MsgSuggestChannelSet     = "MsgSuggestChannelSet"
	MsgSuggestChannelCleared = "MsgSuggestChannelCleared"
	MsgRejectChannelSet      = "MsgRejectChannelSet"
	MsgRejectChannelCleared  = "MsgRejectChannelCleared"
	MsgApproveChannelSet     = "MsgApproveChannelSet"
	MsgApproveChannelCleared = "MsgApproveChannelCleared"
	MsgUpvoteEmojiSet        = "MsgUpvoteEmojiSet"
	MsgUpvoteEmojiReset      = "MsgUpvoteEmojiReset"
	MsgDownvoteEmojiSet      = "MsgDownvoteEmojiSet"
	MsgDownvoteEmojiReset    = "MsgDownvoteEmojiReset"
	MsgUpStyleSet            = "MsgUpStyleSet"
	MsgUpStyleReset          = "MsgUpStyleReset"
	MsgDownStyleSet          = "MsgDownStyleSet"
	MsgDownStyleReset        = "MsgDownStyleReset"
	MsgAutoDeleteOn          = "MsgAutoDeleteOn"
	MsgAutoDeleteOff         = "MsgAutoDeleteOff"

	MsgResetGuildConfirm = "MsgResetGuildConfirm"
	MsgResetGuildDone    = "MsgResetGuildDone"
	MsgResetAllConfirm   = "MsgResetAllConfirm"
	MsgResetAllDone      = "MsgResetAllDone"
	MsgResetCancelled    = "MsgResetCancelled"
	MsgResetTimedOut     = "MsgResetTimedOut"
	LabelConfirm         = "LabelConfirm"
	LabelCancel          = "LabelCancel"

	MsgDataDeleted = "MsgDataDeleted"
	MsgHelp        = "MsgHelp"
)
