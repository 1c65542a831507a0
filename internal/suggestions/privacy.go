package suggestions

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"suggestbot/internal/database/models"
)

// scrubConcurrency bounds how many guilds are scrubbed at once.
const scrubConcurrency = 4

// ScrubReport counts what DeleteUserData touched.
type ScrubReport struct {
	Guilds  int
	Records int
}

// DeleteUserData removes userID from every suggestion in every guild.
// Suggester and reviewer references become nil and the user leaves both vote
// sets. Records themselves are kept.
func (m *Manager) DeleteUserData(ctx context.Context, userID string) (ScrubReport, error) {
	guilds, err := m.store.GuildIDs(ctx)
	if err != nil {
		return ScrubReport{}, errors.Wrap(err, "list guilds")
	}

	var touchedGuilds, touchedRecords atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scrubConcurrency)
	for _, guildID := range guilds {
		g.Go(func() error {
			n, err := m.scrubGuild(ctx, guildID, userID)
			if n > 0 {
				touchedGuilds.Add(1)
				touchedRecords.Add(int64(n))
			}
			return err
		})
	}
	err = g.Wait()

	report := ScrubReport{Guilds: int(touchedGuilds.Load()), Records: int(touchedRecords.Load())}
	m.metrics.DataDeletions.Observe(float64(report.Records))
	m.log.Info().Int("guilds", report.Guilds).Int("records", report.Records).Msg("user data scrubbed")
	if err != nil {
		return report, errors.Wrap(err, "scrub user data")
	}
	return report, nil
}

func (m *Manager) scrubGuild(ctx context.Context, guildID, userID string) (int, error) {
	recs, err := m.store.ListSuggestions(ctx, guildID)
	if err != nil {
		return 0, errors.Wrapf(err, "list suggestions of guild %s", guildID)
	}
	n := 0
	for _, rec := range recs {
		if !mentions(rec, userID) {
			continue
		}
		_, err := m.store.MutateSuggestion(ctx, guildID, rec.ID, func(s *models.Suggestion) error {
			scrubUser(s, userID)
			return nil
		})
		if err != nil {
			return n, errors.Wrapf(err, "scrub suggestion %d in guild %s", rec.ID, guildID)
		}
		n++
	}
	return n, nil
}
