package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suggestbot/internal/database/models"
	"suggestbot/pkg/chatapi"
)

type storeFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]storeFactory {
	b := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			return NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		},
	}
	if uri := os.Getenv("MONGODB_TEST_URI"); uri != "" {
		b["mongo"] = func(t *testing.T) Store {
			ctx := context.Background()
			dbName := fmt.Sprintf("suggestbot_test_%d", time.Now().UnixNano())
			client, db, err := ConnectDB(ctx, uri, dbName, zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() {
				_ = db.Drop(context.Background())
				_ = client.Disconnect(context.Background())
			})
			s := NewMongoStore(nil, db)
			require.NoError(t, s.EnsureIndexes(ctx))
			return s
		}
	}
	return b
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			fn(t, s)
		})
	}
}

func newRecord(guildID, suggester, text string) *models.Suggestion {
	return &models.Suggestion{
		GuildID:     guildID,
		SuggesterID: models.Ptr(suggester),
		Text:        text,
		Status:      models.StatusRunning,
		SubmittedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCreateAllocatesDenseIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			rec := newRecord("g1", "u1", fmt.Sprintf("idea %d", i))
			require.NoError(t, s.CreateSuggestion(ctx, rec))
			assert.Equal(t, int64(i), rec.ID)
			assert.Equal(t, int64(1), rec.Version)
		}
		other := newRecord("g2", "u1", "elsewhere")
		require.NoError(t, s.CreateSuggestion(ctx, other))
		assert.Equal(t, int64(1), other.ID, "ids are per guild")

		n, err := s.CountSuggestions(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		list, err := s.ListSuggestions(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, rec := range list {
			assert.Equal(t, int64(i+1), rec.ID)
			assert.Equal(t, fmt.Sprintf("idea %d", i+1), rec.Text)
		}
	})
}

func TestGetOutsideRange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "only")))

		for _, id := range []int64{0, -1, 2} {
			_, err := s.GetSuggestion(ctx, "g1", id)
			assert.ErrorIs(t, err, ErrSuggestionNotFound, "id %d", id)
		}
		_, err := s.GetSuggestion(ctx, "nope", 1)
		assert.ErrorIs(t, err, ErrSuggestionNotFound)

		got, err := s.GetSuggestion(ctx, "g1", 1)
		require.NoError(t, err)
		assert.Equal(t, "only", got.Text)
		assert.Equal(t, "u1", models.Deref(got.SuggesterID))
	})
}

func TestMutatePinsIdentityAndBumpsVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "x")))

		got, err := s.MutateSuggestion(ctx, "g1", 1, func(rec *models.Suggestion) error {
			rec.ID = 99
			rec.GuildID = "other"
			rec.Message = chatapi.MessageHandle{ChannelID: "c", MessageID: "m"}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "g1", got.GuildID)
		assert.Equal(t, int64(2), got.Version)

		stored, err := s.GetSuggestion(ctx, "g1", 1)
		require.NoError(t, err)
		assert.Equal(t, "m", stored.Message.MessageID)
		assert.Equal(t, int64(2), stored.Version)
	})
}

func TestMutateAbortDoesNotWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "x")))

		boom := errors.New("boom")
		_, err := s.MutateSuggestion(ctx, "g1", 1, func(rec *models.Suggestion) error {
			rec.Text = "changed"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := s.GetSuggestion(ctx, "g1", 1)
		require.NoError(t, err)
		assert.Equal(t, "x", stored.Text)
		assert.Equal(t, int64(1), stored.Version)

		_, err = s.MutateSuggestion(ctx, "g1", 5, func(*models.Suggestion) error { return nil })
		assert.ErrorIs(t, err, ErrSuggestionNotFound)
	})
}

func TestConcurrentMutationsAreNotLost(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "x")))

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed []string
		)
		for i := 0; i < writers; i++ {
			voter := fmt.Sprintf("voter-%d", i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.MutateSuggestion(ctx, "g1", 1, func(rec *models.Suggestion) error {
					rec.Upvotes = append(rec.Upvotes, voter)
					return nil
				})
				if err != nil {
					assert.ErrorIs(t, err, ErrConflict)
					return
				}
				mu.Lock()
				committed = append(committed, voter)
				mu.Unlock()
			}()
		}
		wg.Wait()

		stored, err := s.GetSuggestion(ctx, "g1", 1)
		require.NoError(t, err)
		assert.ElementsMatch(t, committed, stored.Upvotes)
		assert.Equal(t, int64(len(committed)+1), stored.Version)
	})
}

func TestMemoryMutationsAlwaysCommit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "x")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MutateSuggestion(ctx, "g1", 1, func(rec *models.Suggestion) error {
				rec.Upvotes = append(rec.Upvotes, "v")
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := s.GetSuggestion(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Len(t, stored.Upvotes, 50)
	assert.Empty(t, s.locks.m, "released key locks are dropped")
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		st, err := s.GetSettings(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "g1", st.GuildID)
		assert.Nil(t, st.SuggestChannel)

		updated, err := s.UpdateSettings(ctx, "g1", func(st *models.Settings) error {
			st.SuggestChannel = models.Ptr("chan")
			st.AutoDelete = models.Ptr(false)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)

		_, err = s.UpdateSettings(ctx, "g1", func(st *models.Settings) error {
			st.UpvoteEmoji = models.Ptr("👍")
			return nil
		})
		require.NoError(t, err)

		st, err = s.GetSettings(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "chan", models.Deref(st.SuggestChannel))
		assert.Equal(t, "👍", models.Deref(st.UpvoteEmoji))
		require.NotNil(t, st.AutoDelete)
		assert.False(t, *st.AutoDelete)
		assert.Equal(t, int64(2), st.Version)
	})
}

func TestResetGuildRestartsIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "a")))
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g1", "u1", "b")))
		require.NoError(t, s.CreateSuggestion(ctx, newRecord("g2", "u1", "c")))
		_, err := s.UpdateSettings(ctx, "g1", func(st *models.Settings) error {
			st.SuggestChannel = models.Ptr("chan")
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, s.ResetGuild(ctx, "g1"))

		n, err := s.CountSuggestions(ctx, "g1")
		require.NoError(t, err)
		assert.Zero(t, n)
		st, err := s.GetSettings(ctx, "g1")
		require.NoError(t, err)
		assert.Nil(t, st.SuggestChannel)

		rec := newRecord("g1", "u1", "fresh")
		require.NoError(t, s.CreateSuggestion(ctx, rec))
		assert.Equal(t, int64(1), rec.ID)

		guilds, err := s.GuildIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"g1", "g2"}, guilds)

		require.NoError(t, s.ResetAll(ctx))
		guilds, err = s.GuildIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, guilds)
		_, err = s.GetSuggestion(ctx, "g2", 1)
		assert.ErrorIs(t, err, ErrSuggestionNotFound)
	})
}

func TestStoredRecordsAreIsolatedFromCallers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := newRecord("g1", "u1", "x")
	rec.Upvotes = []string{"a"}
	require.NoError(t, s.CreateSuggestion(ctx, rec))
	rec.Upvotes[0] = "mutated"

	got, err := s.GetSuggestion(ctx, "g1", 1)
	require.NoError(t, err)
	got.Downvotes = append(got.Downvotes, "b")

	again, err := s.GetSuggestion(ctx, "g1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Upvotes)
	assert.Empty(t, again.Downvotes)
}
