package suggestions

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"suggestbot/internal/database/models"
)

// Toggle applies one vote press by userID to rec.
//
// Pressing the button of the set the user is already in removes the vote.
// Otherwise the user leaves the opposite set and joins the pressed one, so
// the two sets stay disjoint. A resolved suggestion is left untouched and
// ErrVotingClosed is returned together with the unchanged counts.
func Toggle(rec *models.Suggestion, userID string, dir Direction) (VoteResult, error) {
	if rec.Status != models.StatusRunning {
		return VoteResult{Up: rec.UpvoteCount(), Down: rec.DownvoteCount()}, ErrVotingClosed
	}

	up := mapset.NewThreadUnsafeSet(rec.Upvotes...)
	down := mapset.NewThreadUnsafeSet(rec.Downvotes...)
	target, opposite := up, down
	if dir == Down {
		target, opposite = down, up
	}

	var action VoteAction
	switch {
	case target.Contains(userID):
		target.Remove(userID)
		action = VoteRemoved
	case opposite.Contains(userID):
		opposite.Remove(userID)
		target.Add(userID)
		action = VoteSwitched
	default:
		target.Add(userID)
		action = VoteAdded
	}

	rec.Upvotes = sortedMembers(up)
	rec.Downvotes = sortedMembers(down)
	return VoteResult{Action: action, Up: len(rec.Upvotes), Down: len(rec.Downvotes)}, nil
}

// scrubUser removes userID from every identity field of rec and reports whether anything changed.
func scrubUser(rec *models.Suggestion, userID string) bool {
	changed := false
	if models.Deref(rec.SuggesterID) == userID {
		rec.SuggesterID = nil
		changed = true
	}
	if models.Deref(rec.ReviewerID) == userID {
		rec.ReviewerID = nil
		changed = true
	}
	for _, set := range []*[]string{&rec.Upvotes, &rec.Downvotes} {
		s := mapset.NewThreadUnsafeSet(*set...)
		if s.Contains(userID) {
			s.Remove(userID)
			*set = sortedMembers(s)
			changed = true
		}
	}
	return changed
}

// mentions reports whether userID appears anywhere in rec.
func mentions(rec models.Suggestion, userID string) bool {
	return models.Deref(rec.SuggesterID) == userID ||
		models.Deref(rec.ReviewerID) == userID ||
		slices.Contains(rec.Upvotes, userID) ||
		slices.Contains(rec.Downvotes, userID)
}

func sortedMembers(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)
	return out
}
