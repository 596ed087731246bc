package user

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]User
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository(users ...User) Repository {
	storage := make(map[string]User, len(users))
	for _, u := range users {
		storage[u.ID] = u
	}
	return &memoryRepository{storage: storage}
}

func (r *memoryRepository) Get(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.storage[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
