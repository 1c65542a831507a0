package suggestions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"suggestbot/internal/database"
	"suggestbot/internal/database/models"
	"suggestbot/internal/metrics"
	"suggestbot/pkg/chatapi"
)

const guild = "g1"

var submittedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	m        *Manager
	tr       *fakeTransport
	store    database.Store
	reporter *MockReporter
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		tr:       newFakeTransport(),
		store:    database.NewMemoryStore(),
		reporter: &MockReporter{},
		metrics:  metrics.New(),
	}
	f.reporter.On("CaptureException", mock.Anything).Maybe()
	f.tr.addChannel(guild, "suggest", true)
	f.tr.addUser("A", "Alice")
	f.tr.addUser("R", "Rita")
	_, err := f.store.UpdateSettings(context.Background(), guild, func(s *models.Settings) error {
		s.SuggestChannel = models.Ptr("suggest")
		return nil
	})
	require.NoError(t, err)

	base := []Option{
		WithReporter(f.reporter),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return submittedAt }),
	}
	f.m = NewManager(f.store, f.tr, append(base, opts...)...)
	t.Cleanup(f.m.Wait)
	return f
}

func (f *fixture) submit(t *testing.T, userID, text string) *Submission {
	t.Helper()
	sub, err := f.m.Submit(context.Background(), guild, userID, text)
	require.NoError(t, err)
	return sub
}

func (f *fixture) configure(t *testing.T, fn func(*models.Settings)) {
	t.Helper()
	_, err := f.store.UpdateSettings(context.Background(), guild, func(s *models.Settings) error {
		fn(s)
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) record(t *testing.T, id int64) *models.Suggestion {
	t.Helper()
	rec, err := f.store.GetSuggestion(context.Background(), guild, id)
	require.NoError(t, err)
	return rec
}

func counterValue(o metrics.Observer, labels ...string) float64 {
	vec := o.(*metrics.PrometheusMetric).Collector.(*prometheus.CounterVec)
	return testutil.ToFloat64(vec.WithLabelValues(labels...))
}

func TestSubmitPostsCardAndConfirms(t *testing.T) {
	f := newFixture(t)

	sub := f.submit(t, "A", "  add dark mode ")
	f.m.Wait()

	rec := sub.Suggestion
	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, models.StatusRunning, rec.Status)
	assert.Equal(t, "add dark mode", rec.Text)
	assert.Empty(t, rec.Upvotes)
	assert.Empty(t, rec.Downvotes)
	assert.Equal(t, "A", models.Deref(rec.SuggesterID))
	assert.Equal(t, submittedAt, rec.SubmittedAt)
	require.False(t, rec.Message.IsZero())

	posted := f.tr.card(rec.Message)
	assert.Equal(t, "Suggestion #1", posted.Title)
	assert.Equal(t, "Alice (A)", posted.Author.Name)
	assert.Equal(t, f.tr.JumpURL(guild, rec.Message), sub.JumpURL)

	dms := f.tr.directsTo("A")
	require.Len(t, dms, 1)
	assert.Equal(t, "Your suggestion has been submitted for votes and review.", dms[0].Content)
	require.NotNil(t, dms[0].Card)
	require.Len(t, dms[0].Card.Buttons, 1)
	assert.Equal(t, sub.JumpURL, dms[0].Card.Buttons[0].URL)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions))
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.Submit(ctx, guild, "A", "   ")
		assert.ErrorIs(t, err, ErrEmptySuggestion)
	})
	t.Run("no channel configured", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.m.Submit(ctx, "other", "A", "hi")
		assert.ErrorIs(t, err, ErrNoSuggestChannel)
	})
	t.Run("channel gone", func(t *testing.T) {
		f := newFixture(t)
		f.tr.removeChannel("suggest")
		_, err := f.m.Submit(ctx, guild, "A", "hi")
		assert.ErrorIs(t, err, ErrChannelMissing)
	})
	t.Run("cannot send", func(t *testing.T) {
		f := newFixture(t)
		f.tr.addChannel(guild, "suggest", false)
		_, err := f.m.Submit(ctx, guild, "A", "hi")
		assert.ErrorIs(t, err, ErrPostFailed)
		n, err := f.store.CountSuggestions(ctx, guild)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSubmitIDsStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.submit(t, "A", "one")
	_, _, err := f.m.Vote(ctx, guild, first.Suggestion.ID, "B", Up)
	require.NoError(t, err)
	second := f.submit(t, "A", "two")
	_, err = f.m.Resolve(ctx, ResolveRequest{GuildID: guild, ID: second.Suggestion.ID, Status: models.StatusRejected, ReviewerID: "R"})
	require.NoError(t, err)
	third := f.submit(t, "A", "three")

	assert.Equal(t, []int64{1, 2, 3}, []int64{first.Suggestion.ID, second.Suggestion.ID, third.Suggestion.ID})
}

func TestVoteToggleSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submit(t, "A", "add dark mode").Suggestion.ID

	res, card, err := f.m.Vote(ctx, guild, id, "A", Up)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Action: VoteAdded, Up: 1, Down: 0}, res)
	assert.Equal(t, "1", card.Buttons[0].Label)
	assert.Equal(t, []string{"A"}, f.record(t, id).Upvotes)

	res, _, err = f.m.Vote(ctx, guild, id, "A", Up)
	require.NoError(t, err)
	assert.Equal(t, VoteRemoved, res.Action)
	assert.Empty(t, f.record(t, id).Upvotes)

	res, card, err = f.m.Vote(ctx, guild, id, "A", Down)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Action: VoteAdded, Up: 0, Down: 1}, res)
	assert.Equal(t, "1", card.Buttons[1].Label)
	rec := f.record(t, id)
	assert.Empty(t, rec.Upvotes)
	assert.Equal(t, []string{"A"}, rec.Downvotes)

	res, _, err = f.m.Vote(ctx, guild, id, "A", Up)
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Action: VoteSwitched, Up: 1, Down: 0}, res)

	assert.Equal(t, 2.0, counterValue(f.metrics.Votes, "up", "added")+counterValue(f.metrics.Votes, "down", "added"))
	assert.Equal(t, 1.0, counterValue(f.metrics.Votes, "up", "switched"))
}

func TestVoteUnknownID(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.m.Vote(context.Background(), guild, 7, "A", Up)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestConcurrentVotersAreAllCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.submit(t, "A", "parallel").Suggestion.ID

	voters := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8", "u9", "u10"}
	var wg sync.WaitGroup
	for i, v := range voters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dir := Up
			if i%2 == 1 {
				dir = Down
			}
			_, _, err := f.m.Vote(ctx, guild, id, v, dir)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec := f.record(t, id)
	assert.Len(t, rec.Upvotes, 5)
	assert.Len(t, rec.Downvotes, 5)
}

func TestResolveScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tr.addChannel(guild, "approved", true)
	f.configure(t, func(s *models.Settings) { s.ApproveChannel = models.Ptr("approved") })
	sub := f.submit(t, "A", "add dark mode")
	_, _, err := f.m.Vote(ctx, guild, sub.Suggestion.ID, "B", Up)
	require.NoError(t, err)

	res, err := f.m.Resolve(ctx, ResolveRequest{
		GuildID:    guild,
		ID:         1,
		Status:     models.StatusApproved,
		ReviewerID: "R",
		Reason:     "good idea",
	})
	require.NoError(t, err)
	require.NoError(t, res.CardErr)
	assert.Equal(t, "Suggestion **#1** has been approved.", f.m.ResolutionNotice(res))

	rec := f.record(t, 1)
	assert.Equal(t, models.StatusApproved, rec.Status)
	assert.Equal(t, "R", models.Deref(rec.ReviewerID))
	assert.Equal(t, "good idea", models.Deref(rec.Reason))
	assert.Equal(t, []string{"B"}, rec.Upvotes)

	card := f.tr.card(rec.Message)
	assert.Equal(t, chatapi.ColorApproved, card.Color)
	for _, b := range card.Buttons {
		assert.True(t, b.Disabled)
	}
	assert.Equal(t, "1", card.Buttons[0].Label)
	assert.Contains(t, card.Fields, chatapi.Field{Name: "Reviewer:", Value: "<@R>", Inline: true})
	assert.Contains(t, card.Fields, chatapi.Field{Name: "Status:", Value: "Approved", Inline: true})
	assert.Contains(t, card.Fields, chatapi.Field{Name: "Reason:", Value: "good idea"})

	_, err = f.m.Resolve(ctx, ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusRejected, ReviewerID: "X", Reason: "nope"})
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	f.m.Wait()

	rec = f.record(t, 1)
	assert.Equal(t, models.StatusApproved, rec.Status)
	assert.Equal(t, "R", models.Deref(rec.ReviewerID))
	assert.Equal(t, "good idea", models.Deref(rec.Reason))

	copies := f.tr.postsTo("approved")
	require.Len(t, copies, 1)
	require.Len(t, copies[0].Buttons, 1)
	assert.Equal(t, JumpLabel, copies[0].Buttons[0].Label)

	dms := f.tr.directsTo("A")
	require.Len(t, dms, 2, "submission and a single resolution message")
	assert.Contains(t, dms[1].Content, "`approved` by Rita (R)")
	assert.Contains(t, dms[1].Content, "Reason: good idea")
	require.NotNil(t, dms[1].Card)
	assert.Empty(t, dms[1].Card.Title)
	assert.Len(t, dms[1].Card.Buttons, 3)

	assert.Equal(t, 1.0, counterValue(f.metrics.Resolutions, "approved"))
}

func TestResolveDefaultsReason(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "x")
	_, err := f.m.Resolve(context.Background(), ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusRejected, ReviewerID: "R"})
	require.NoError(t, err)

	rec := f.record(t, 1)
	assert.Equal(t, DefaultReason, models.Deref(rec.Reason))
	assert.Equal(t, chatapi.ColorRejected, f.tr.card(rec.Message).Color)
}

func TestResolveInvalidID(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		f.submit(t, "A", "idea")
	}
	for _, id := range []int64{999, 4, 0, -1} {
		_, err := f.m.Resolve(context.Background(), ResolveRequest{GuildID: guild, ID: id, Status: models.StatusApproved, ReviewerID: "R"})
		assert.ErrorIs(t, err, ErrInvalidID, "id %d", id)
	}
}

func TestResolveRejectsNonTerminalStatus(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "idea")
	_, err := f.m.Resolve(context.Background(), ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusRunning, ReviewerID: "R"})
	require.Error(t, err)
	assert.Equal(t, models.StatusRunning, f.record(t, 1).Status)
}

func TestResolveMissingCard(t *testing.T) {
	ctx := context.Background()
	req := ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusApproved, ReviewerID: "R"}

	t.Run("message deleted", func(t *testing.T) {
		f := newFixture(t)
		sub := f.submit(t, "A", "idea")
		f.tr.dropCard(sub.Suggestion.Message)
		_, err := f.m.Resolve(ctx, req)
		assert.ErrorIs(t, err, ErrMessageMissing)
		assert.Equal(t, models.StatusRunning, f.record(t, 1).Status)
	})
	t.Run("channel deleted", func(t *testing.T) {
		f := newFixture(t)
		f.submit(t, "A", "idea")
		f.tr.removeChannel("suggest")
		_, err := f.m.Resolve(ctx, req)
		assert.ErrorIs(t, err, ErrChannelMissing)
		assert.Equal(t, KindExternal, Classify(err))
		assert.Equal(t, models.StatusRunning, f.record(t, 1).Status)
	})
}

func TestResolveSwallowsSideEffectFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tr.addChannel(guild, "rejected", true)
	f.configure(t, func(s *models.Settings) { s.RejectChannel = models.Ptr("rejected") })
	f.submit(t, "A", "idea")
	f.m.Wait()

	f.tr.mu.Lock()
	f.tr.directErr = chatapi.ErrDeliveryFailed
	f.tr.postErr["rejected"] = chatapi.ErrForbidden
	f.tr.mu.Unlock()

	res, err := f.m.Resolve(ctx, ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusRejected, ReviewerID: "R", Reason: "no"})
	require.NoError(t, err)
	require.NoError(t, res.CardErr)
	f.m.Wait()

	assert.Equal(t, models.StatusRejected, f.record(t, 1).Status)
	assert.Equal(t, 1.0, counterValue(f.metrics.SideEffectFailures, "review_copy"))
	assert.Equal(t, 1.0, counterValue(f.metrics.SideEffectFailures, "author_dm"))
	f.reporter.AssertNumberOfCalls(t, "CaptureException", 2)
}

func TestResolveCardEditFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "A", "idea")
	f.tr.mu.Lock()
	f.tr.editErr = chatapi.ErrForbidden
	f.tr.mu.Unlock()

	res, err := f.m.Resolve(context.Background(), ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusApproved, ReviewerID: "R"})
	require.NoError(t, err)
	assert.ErrorIs(t, res.CardErr, chatapi.ErrForbidden)
	assert.Equal(t, "Error occurred while editing the suggestion message, please check my permissions.", f.m.ResolutionNotice(res))
	assert.Equal(t, models.StatusApproved, f.record(t, 1).Status)
	assert.Equal(t, 1.0, counterValue(f.metrics.SideEffectFailures, "card_edit"))
}

func TestResolveUnresolvableSuggesterGetsNoMessage(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "Z", "idea from someone who left")
	f.m.Wait()

	_, err := f.m.Resolve(context.Background(), ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusApproved, ReviewerID: "R"})
	require.NoError(t, err)
	f.m.Wait()

	assert.Len(t, f.tr.directsTo("Z"), 1, "only the submission confirmation")
	assert.Equal(t, UnknownUser, f.tr.card(f.record(t, 1).Message).Author.Name)
}

func TestConcurrentResolveTransitionsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "A", "race")

	var wg sync.WaitGroup
	results := make([]error, 6)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := models.StatusApproved
			if i%2 == 1 {
				status = models.StatusRejected
			}
			_, results[i] = f.m.Resolve(ctx, ResolveRequest{GuildID: guild, ID: 1, Status: status, ReviewerID: "R"})
		}()
	}
	wg.Wait()
	f.m.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyResolved)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.tr.directsTo("A"), 2)
}

func TestEditReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "A", "idea")

	_, err := f.m.EditReason(ctx, guild, 1, "R", "later")
	assert.ErrorIs(t, err, ErrStillRunning)
	assert.Nil(t, f.record(t, 1).Reason)

	_, err = f.m.Resolve(ctx, ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusApproved, ReviewerID: "R", Reason: "first"})
	require.NoError(t, err)
	before := f.record(t, 1)

	res, err := f.m.EditReason(ctx, guild, 1, "X", "second thoughts")
	require.NoError(t, err)
	require.NoError(t, res.CardErr)

	after := f.record(t, 1)
	assert.Equal(t, "second thoughts", models.Deref(after.Reason))
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.ReviewerID, after.ReviewerID)
	assert.Equal(t, before.ReviewedAt, after.ReviewedAt)
	assert.Contains(t, f.tr.card(after.Message).Fields, chatapi.Field{Name: "Reason:", Value: "second thoughts"})

	_, err = f.m.EditReason(ctx, guild, 42, "R", "x")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestEditReasonRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "A", "idea")
	_, err := f.m.Resolve(ctx, ResolveRequest{GuildID: guild, ID: 1, Status: models.StatusRejected, ReviewerID: "R", Reason: "dupe"})
	require.NoError(t, err)
	version := f.record(t, 1).Version

	_, err = f.m.EditReason(ctx, guild, 1, "R", "  ")
	assert.ErrorIs(t, err, ErrEmptyReason)
	assert.Equal(t, KindUserInput, Classify(err))

	f.configure(t, func(s *models.Settings) { s.SuggestChannel = nil })
	_, err = f.m.EditReason(ctx, guild, 1, "R", "not a dupe")
	assert.ErrorIs(t, err, ErrNoSuggestChannel)

	rec := f.record(t, 1)
	assert.Equal(t, "dupe", models.Deref(rec.Reason))
	assert.Equal(t, version, rec.Version)
}

func TestView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submit(t, "A", "idea")

	card, err := f.m.View(ctx, guild, 1)
	require.NoError(t, err)
	assert.Equal(t, "Suggestion #1", card.Title)
	require.Len(t, card.Buttons, 3)
	assert.True(t, card.Buttons[0].Disabled)
	assert.Equal(t, sub.JumpURL, card.Buttons[2].URL)

	_, err = f.m.View(ctx, guild, 2)
	assert.ErrorIs(t, err, ErrInvalidID)

	f.tr.dropCard(sub.Suggestion.Message)
	_, err = f.m.View(ctx, guild, 1)
	assert.ErrorIs(t, err, ErrMessageMissing)
}

func TestDescribe(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "It appears the suggestion with that ID does not exist.", f.m.Describe(ErrInvalidID))
	f.reporter.AssertNotCalled(t, "CaptureException", mock.Anything)

	assert.Equal(t, "Something went wrong. The error has been reported.", f.m.Describe(assert.AnError))
	f.reporter.AssertNumberOfCalls(t, "CaptureException", 1)
}
