package catalog

import (
	"context"
	"sync"
)

// MemoryRepository is the in-memory implementation with seeding helpers for
// tests and dev mode.
type MemoryRepository struct {
	mu       sync.RWMutex
	chapters map[string]Chapter
	novels   map[string]Novel
	unlocks  map[string]map[string]bool
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		chapters: make(map[string]Chapter),
		novels:   make(map[string]Novel),
		unlocks:  make(map[string]map[string]bool),
	}
}

// AddNovel seeds a novel.
func (r *MemoryRepository) AddNovel(n Novel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.novels[n.ID] = n
}

// AddChapter seeds a chapter; its novel must be seeded first for poster lookup.
func (r *MemoryRepository) AddChapter(ch Chapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chapters[ch.ID] = ch
}

func (r *MemoryRepository) GetChapter(_ context.Context, id string) (Chapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.chapters[id]
	if !ok {
		return Chapter{}, ErrNotFound
	}
	if ch.PosterID == "" {
		if n, ok := r.novels[ch.NovelID]; ok {
			ch.PosterID = n.PosterID
		}
	}
	return ch, nil
}

func (r *MemoryRepository) GetNovel(_ context.Context, id string) (Novel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.novels[id]
	if !ok {
		return Novel{}, ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepository) IsUnlocked(_ context.Context, userID, chapterID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unlocks[userID][chapterID], nil
}

func (r *MemoryRepository) GrantUnlock(_ context.Context, userID, chapterID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unlocks[userID] == nil {
		r.unlocks[userID] = make(map[string]bool)
	}
	r.unlocks[userID][chapterID] = true
	return nil
}
