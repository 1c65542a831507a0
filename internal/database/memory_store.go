package database

import (
	"context"
	"sort"
	"sync"

	"suggestbot/internal/database/models"
)

// MemoryStore keeps everything in process memory. It is the default backend
// for development and the reference backend in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	guilds map[string]*memoryGuild

	locks keyLocks
}

type memoryGuild struct {
	records  []models.Suggestion
	settings *models.Settings
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{guilds: make(map[string]*memoryGuild)}
}

func (s *MemoryStore) guild(guildID string) *memoryGuild {
	g, ok := s.guilds[guildID]
	if !ok {
		g = &memoryGuild{}
		s.guilds[guildID] = g
	}
	return g
}

// CreateSuggestion appends s to its guild. Records are never removed
// individually, so the record count doubles as the id counter.
func (s *MemoryStore) CreateSuggestion(ctx context.Context, sugg *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(sugg.GuildID)
	sugg.ID = int64(len(g.records)) + 1
	sugg.Version = 1
	g.records = append(g.records, sugg.Clone())
	return nil
}

func (s *MemoryStore) GetSuggestion(ctx context.Context, guildID string, id int64) (*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[guildID]
	if !ok || id < 1 || id > int64(len(g.records)) {
		return nil, ErrSuggestionNotFound
	}
	c := g.records[id-1].Clone()
	return &c, nil
}

func (s *MemoryStore) ListSuggestions(ctx context.Context, guildID string) ([]models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return nil, nil
	}
	out := make([]models.Suggestion, len(g.records))
	for i, r := range g.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *MemoryStore) CountSuggestions(ctx context.Context, guildID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return 0, nil
	}
	return int64(len(g.records)), nil
}

// MutateSuggestion holds the record's key lock for the whole read-modify-write.
func (s *MemoryStore) MutateSuggestion(ctx context.Context, guildID string, id int64, fn MutateFunc) (*models.Suggestion, error) {
	unlock := s.locks.lock(recordKey{guildID: guildID, id: id})
	defer unlock()

	cur, err := s.GetSuggestion(ctx, guildID, id)
	if err != nil {
		return nil, err
	}
	next, err := applyMutation(*cur, fn)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[guildID]
	if !ok || id > int64(len(g.records)) {
		// The guild was reset while fn ran.
		return nil, ErrSuggestionNotFound
	}
	g.records[id-1] = next.Clone()
	return &next, nil
}

func (s *MemoryStore) GuildIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.guilds))
	for id, g := range s.guilds {
		if len(g.records) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) GetSettings(ctx context.Context, guildID string) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.guilds[guildID]; ok && g.settings != nil {
		c := *g.settings
		return &c, nil
	}
	return &models.Settings{GuildID: guildID}, nil
}

func (s *MemoryStore) UpdateSettings(ctx context.Context, guildID string, fn func(*models.Settings) error) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guild(guildID)
	cur := models.Settings{GuildID: guildID}
	if g.settings != nil {
		cur = *g.settings
	}
	if err := fn(&cur); err != nil {
		return nil, err
	}
	cur.GuildID = guildID
	cur.Version++
	saved := cur
	g.settings = &saved
	return &cur, nil
}

func (s *MemoryStore) ResetGuild(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guilds, guildID)
	return nil
}

func (s *MemoryStore) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds = make(map[string]*memoryGuild)
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)

type recordKey struct {
	guildID string
	id      int64
}

// keyLocks hands out one mutex per record key.
type keyLocks struct {
	mu sync.Mutex
	m  map[recordKey]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// lock acquires the mutex for k and returns its release function.
// Entries are dropped once nobody holds or waits for them.
func (l *keyLocks) lock(k recordKey) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[recordKey]*keyLock)
	}
	kl, ok := l.m[k]
	if !ok {
		kl = &keyLock{}
		l.m[k] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.Lock()
	return func() {
		kl.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.m, k)
		}
		l.mu.Unlock()
	}
}
