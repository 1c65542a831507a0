package models

import (
	"slices"
	"time"

	"suggestbot/pkg/chatapi"
)

// SuggestionStatus defines the possible states of a suggestion.
type SuggestionStatus string

const (
	StatusRunning  SuggestionStatus = "running"
	StatusApproved SuggestionStatus = "approved"
	StatusRejected SuggestionStatus = "rejected"
)

// Terminal reports whether no further votes or transitions are possible.
func (s SuggestionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Suggestion represents a user suggestion stored in the database.
// ID is dense per guild and starts at 1.
type Suggestion struct {
	GuildID     string                `bson:"guild_id" json:"guild_id"`
	ID          int64                 `bson:"id" json:"id"`
	SuggesterID *string               `bson:"suggester_id" json:"suggester_id"` // nil after a data deletion request
	Message     chatapi.MessageHandle `bson:"message" json:"message"`           // The posted card, set once
	Text        string                `bson:"text" json:"text"`
	Status      SuggestionStatus      `bson:"status" json:"status"`
	Upvotes     []string              `bson:"upvotes" json:"upvotes"`
	Downvotes   []string              `bson:"downvotes" json:"downvotes"`
	ReviewerID  *string               `bson:"reviewer_id" json:"reviewer_id"`
	Reason      *string               `bson:"reason" json:"reason"`
	SubmittedAt time.Time             `bson:"submitted_at" json:"submitted_at"`
	ReviewedAt  time.Time             `bson:"reviewed_at,omitempty" json:"reviewed_at,omitempty"`

	// Version increases on every write and backs optimistic concurrency control.
	Version int64 `bson:"version" json:"version"`
}

// Clone returns a deep copy so that callers never share slices or pointers with a store.
func (s Suggestion) Clone() Suggestion {
	c := s
	c.SuggesterID = clonePtr(s.SuggesterID)
	c.ReviewerID = clonePtr(s.ReviewerID)
	c.Reason = clonePtr(s.Reason)
	c.Upvotes = slices.Clone(s.Upvotes)
	c.Downvotes = slices.Clone(s.Downvotes)
	return c
}

// UpvoteCount returns the number of upvoters.
func (s Suggestion) UpvoteCount() int { return len(s.Upvotes) }

// DownvoteCount returns the number of downvoters.
func (s Suggestion) DownvoteCount() int { return len(s.Downvotes) }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the value p points to, or the zero value.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
