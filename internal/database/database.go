package database

import (
	"github.com/pkg/errors"

	"suggestbot/internal/database/models"
)

var (
	// ErrSuggestionNotFound is returned when a suggestion is not found.
	ErrSuggestionNotFound = errors.New("suggestion not found")
	// ErrConflict is returned when an optimistic write kept losing to concurrent writers.
	ErrConflict = errors.New("concurrent modification, try again")
)

// applyMutation runs fn on a copy of cur and pins the fields no caller may change.
func applyMutation(cur models.Suggestion, fn MutateFunc) (models.Suggestion, error) {
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur, err
	}
	next.GuildID = cur.GuildID
	next.ID = cur.ID
	next.Version = cur.Version + 1
	return next, nil
}
