package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"suggestbot/internal/database/models"
)

const (
	suggestionCollectionName = "suggestions"
	counterCollectionName    = "suggestion_counters"
	settingsCollectionName   = "suggestion_settings"
)

// MongoStore implements Store on MongoDB. Writes to a record are optimistic:
// a replace only succeeds when the stored version still matches the one read.
type MongoStore struct {
	client      *mongo.Client
	suggestions *mongo.Collection
	counters    *mongo.Collection
	settings    *mongo.Collection
}

// NewMongoStore creates a MongoDB store. client may be nil when the caller
// owns the connection lifecycle.
func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:      client,
		suggestions: db.Collection(suggestionCollectionName),
		counters:    db.Collection(counterCollectionName),
		settings:    db.Collection(settingsCollectionName),
	}
}

// EnsureIndexes creates the unique (guild_id, id) index records are addressed by.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.suggestions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "guild_id", Value: 1}, {Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create suggestion index")
	}
	return nil
}

type counterDoc struct {
	GuildID string `bson:"_id"`
	Seq     int64  `bson:"seq"`
}

func (r *MongoStore) nextID(ctx context.Context, guildID string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var c counterDoc
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": guildID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to allocate suggestion id in guild %s", guildID)
	}
	return c.Seq, nil
}

// CreateSuggestion adds a new suggestion under the next id of its guild.
func (r *MongoStore) CreateSuggestion(ctx context.Context, s *models.Suggestion) error {
	id, err := r.nextID(ctx, s.GuildID)
	if err != nil {
		return err
	}
	s.ID = id
	s.Version = 1
	if _, err := r.suggestions.InsertOne(ctx, s); err != nil {
		return errors.Wrapf(err, "failed to insert suggestion %d", id)
	}
	return nil
}

// GetSuggestion retrieves a single suggestion by guild and id.
// It returns ErrSuggestionNotFound if no suggestion matches.
func (r *MongoStore) GetSuggestion(ctx context.Context, guildID string, id int64) (*models.Suggestion, error) {
	var s models.Suggestion
	err := r.suggestions.FindOne(ctx, bson.M{"guild_id": guildID, "id": id}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSuggestionNotFound
		}
		return nil, errors.Wrapf(err, "failed to find suggestion %d", id)
	}
	return &s, nil
}

func (r *MongoStore) ListSuggestions(ctx context.Context, guildID string) ([]models.Suggestion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	cursor, err := r.suggestions.Find(ctx, bson.M{"guild_id": guildID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find suggestions")
	}
	defer cursor.Close(ctx)

	var out []models.Suggestion
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode suggestions")
	}
	return out, nil
}

// CountSuggestions reads the id counter rather than counting documents.
func (r *MongoStore) CountSuggestions(ctx context.Context, guildID string) (int64, error) {
	var c counterDoc
	err := r.counters.FindOne(ctx, bson.M{"_id": guildID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read suggestion counter")
	}
	return c.Seq, nil
}

func (r *MongoStore) MutateSuggestion(ctx context.Context, guildID string, id int64, fn MutateFunc) (*models.Suggestion, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		cur, err := r.GetSuggestion(ctx, guildID, id)
		if err != nil {
			return nil, err
		}
		next, err := applyMutation(*cur, fn)
		if err != nil {
			return nil, err
		}
		res, err := r.suggestions.ReplaceOne(ctx,
			bson.M{"guild_id": guildID, "id": id, "version": cur.Version},
			next,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to update suggestion %d", id)
		}
		if res.MatchedCount == 1 {
			return &next, nil
		}
	}
	return nil, errors.Wrapf(ErrConflict, "suggestion %d", id)
}

func (r *MongoStore) GuildIDs(ctx context.Context) ([]string, error) {
	raw, err := r.suggestions.Distinct(ctx, "guild_id", bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list guilds")
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, fmt.Sprint(v))
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MongoStore) GetSettings(ctx context.Context, guildID string) (*models.Settings, error) {
	var s models.Settings
	err := r.settings.FindOne(ctx, bson.M{"_id": guildID}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &models.Settings{GuildID: guildID}, nil
		}
		return nil, errors.Wrap(err, "failed to read settings")
	}
	return &s, nil
}

// UpdateSettings inserts the first version of a guild's settings and replaces
// later ones under the same version check as suggestions.
func (r *MongoStore) UpdateSettings(ctx context.Context, guildID string, fn func(*models.Settings) error) (*models.Settings, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		cur, err := r.GetSettings(ctx, guildID)
		if err != nil {
			return nil, err
		}
		next := *cur
		if err := fn(&next); err != nil {
			return nil, err
		}
		next.GuildID = guildID
		next.Version = cur.Version + 1

		if cur.Version == 0 {
			_, err := r.settings.InsertOne(ctx, next)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return nil, errors.Wrap(err, "failed to insert settings")
			}
			return &next, nil
		}

		res, err := r.settings.ReplaceOne(ctx, bson.M{"_id": guildID, "version": cur.Version}, next)
		if err != nil {
			return nil, errors.Wrap(err, "failed to update settings")
		}
		if res.MatchedCount == 1 {
			return &next, nil
		}
	}
	return nil, errors.Wrap(ErrConflict, "settings")
}

func (r *MongoStore) ResetGuild(ctx context.Context, guildID string) error {
	if _, err := r.suggestions.DeleteMany(ctx, bson.M{"guild_id": guildID}); err != nil {
		return errors.Wrap(err, "failed to delete suggestions")
	}
	if _, err := r.counters.DeleteOne(ctx, bson.M{"_id": guildID}); err != nil {
		return errors.Wrap(err, "failed to delete counter")
	}
	if _, err := r.settings.DeleteOne(ctx, bson.M{"_id": guildID}); err != nil {
		return errors.Wrap(err, "failed to delete settings")
	}
	return nil
}

func (r *MongoStore) ResetAll(ctx context.Context) error {
	for _, c := range []*mongo.Collection{r.suggestions, r.counters, r.settings} {
		if _, err := c.DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Wrapf(err, "failed to clear %s", c.Name())
		}
	}
	return nil
}

// Close disconnects the client if the store owns one.
func (r *MongoStore) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
