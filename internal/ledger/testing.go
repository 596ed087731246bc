package ledger

// SeedBalance is a test helper that sets a user's balance when using the
// in-memory store.
func SeedBalance(s Store, userID string, amount int64) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[userID] = amount
	}
}

// SeedPenName registers a pen name for free-text search when using the
// in-memory store.
func SeedPenName(s Store, userID, penName string) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.penNames[userID] = penName
	}
}
