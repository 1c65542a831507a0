package suggestions

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suggestbot/internal/database/models"
)

func TestToggleKeepsVoterInAtMostOneSet(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	users := []string{"a", "b", "c", "d"}
	rec := &models.Suggestion{Status: models.StatusRunning}

	for i := 0; i < 500; i++ {
		user := users[rng.IntN(len(users))]
		dir := Up
		if rng.IntN(2) == 0 {
			dir = Down
		}
		res, err := Toggle(rec, user, dir)
		require.NoError(t, err)
		assert.Equal(t, len(rec.Upvotes), res.Up)
		assert.Equal(t, len(rec.Downvotes), res.Down)

		for _, u := range users {
			inUp := slices.Contains(rec.Upvotes, u)
			inDown := slices.Contains(rec.Downvotes, u)
			require.False(t, inUp && inDown, "step %d: %s is in both sets", i, u)
		}
		require.True(t, slices.IsSorted(rec.Upvotes))
		require.True(t, slices.IsSorted(rec.Downvotes))
	}
}

func TestToggleClosed(t *testing.T) {
	for _, status := range []models.SuggestionStatus{models.StatusApproved, models.StatusRejected} {
		rec := &models.Suggestion{Status: status, Upvotes: []string{"a"}, Downvotes: []string{"b", "c"}}
		res, err := Toggle(rec, "a", Down)
		assert.ErrorIs(t, err, ErrVotingClosed)
		assert.Equal(t, VoteResult{Up: 1, Down: 2}, res)
		assert.Equal(t, []string{"a"}, rec.Upvotes)
		assert.Equal(t, []string{"b", "c"}, rec.Downvotes)
	}
}

func TestScrubUser(t *testing.T) {
	rec := &models.Suggestion{
		SuggesterID: models.Ptr("a"),
		ReviewerID:  models.Ptr("a"),
		Upvotes:     []string{"a", "b"},
		Downvotes:   []string{"c"},
	}
	assert.True(t, mentions(*rec, "a"))
	assert.True(t, scrubUser(rec, "a"))
	assert.Nil(t, rec.SuggesterID)
	assert.Nil(t, rec.ReviewerID)
	assert.Equal(t, []string{"b"}, rec.Upvotes)
	assert.Equal(t, []string{"c"}, rec.Downvotes)

	assert.False(t, mentions(*rec, "a"))
	assert.False(t, scrubUser(rec, "a"))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"up": Up, "upvote": Up, "down": Down, "downvote": Down} {
		got, ok := ParseDirection(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseDirection("sideways")
	assert.False(t, ok)
}
