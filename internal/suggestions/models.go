package suggestions

import (
	"suggestbot/internal/database/models"
	"suggestbot/pkg/chatapi"
)

// Direction is the button a voter pressed.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up"/"down" and the command spellings "upvote"/"downvote".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up", "upvote":
		return Up, true
	case "down", "downvote":
		return Down, true
	}
	return "", false
}

// VoteAction is what a vote press did to the voter's membership.
type VoteAction string

const (
	VoteAdded    VoteAction = "added"
	VoteRemoved  VoteAction = "removed"
	VoteSwitched VoteAction = "switched"
)

// VoteResult holds the counts after a vote press.
type VoteResult struct {
	Action VoteAction
	Up     int
	Down   int
}

// ResolveRequest asks to approve or reject a suggestion.
// An empty Reason becomes DefaultReason.
type ResolveRequest struct {
	GuildID    string
	ID         int64
	Status     models.SuggestionStatus
	ReviewerID string
	Reason     string
}

// DefaultReason is recorded when a reviewer gives none.
const DefaultReason = "No reason given."

// Resolution is the outcome of a committed approve, reject or reason edit.
// CardErr is set when the posted card could not be updated; the stored
// record is authoritative either way.
type Resolution struct {
	Suggestion models.Suggestion
	Card       chatapi.Card
	JumpURL    string
	CardErr    error
}

// Submission is a freshly posted suggestion.
type Submission struct {
	Suggestion models.Suggestion
	Card       chatapi.Card
	JumpURL    string
}

// ChannelKind names one of the configurable channels.
type ChannelKind string

const (
	SuggestChannel ChannelKind = "suggest"
	RejectChannel  ChannelKind = "reject"
	ApproveChannel ChannelKind = "approve"
)

// ResetScope selects what a confirmed reset clears.
type ResetScope int

const (
	ResetGuild ResetScope = iota
	ResetEverything
)

func (s ResetScope) String() string {
	if s == ResetEverything {
		return "everything"
	}
	return "guild"
}
