package database

import (
	"context"

	"suggestbot/internal/database/models"
)

// MutateFunc edits a suggestion in place. Returning an error aborts the write.
type MutateFunc func(s *models.Suggestion) error

// SuggestionRepository is the guild-scoped table of suggestion records.
type SuggestionRepository interface {
	// CreateSuggestion allocates the next id for s.GuildID, stores s and
	// writes the assigned ID and Version back into it.
	CreateSuggestion(ctx context.Context, s *models.Suggestion) error
	// GetSuggestion returns ErrSuggestionNotFound when id is outside [1, count].
	GetSuggestion(ctx context.Context, guildID string, id int64) (*models.Suggestion, error)
	// ListSuggestions returns a guild's suggestions ordered by id.
	ListSuggestions(ctx context.Context, guildID string) ([]models.Suggestion, error)
	// CountSuggestions returns the number of ids allocated in a guild.
	CountSuggestions(ctx context.Context, guildID string) (int64, error)
	// MutateSuggestion runs fn as a read-modify-write that never interleaves with
	// another MutateSuggestion on the same (guildID, id).
	MutateSuggestion(ctx context.Context, guildID string, id int64, fn MutateFunc) (*models.Suggestion, error)
	// GuildIDs lists every guild that has stored suggestions.
	GuildIDs(ctx context.Context) ([]string, error)
}

// SettingsRepository stores per-guild settings.
type SettingsRepository interface {
	// GetSettings returns empty settings for guilds that never configured anything.
	GetSettings(ctx context.Context, guildID string) (*models.Settings, error)
	UpdateSettings(ctx context.Context, guildID string, fn func(s *models.Settings) error) (*models.Settings, error)
	// ResetGuild clears all records, the id counter and the settings of a guild.
	ResetGuild(ctx context.Context, guildID string) error
	// ResetAll clears everything for every guild.
	ResetAll(ctx context.Context) error
}

// Store is a complete persistence backend.
type Store interface {
	SuggestionRepository
	SettingsRepository
	Close(ctx context.Context) error
}

// maxMutateAttempts bounds the optimistic retry loops of the mongo and redis backends.
const maxMutateAttempts = 5
