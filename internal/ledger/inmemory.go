package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	byOrder  map[string]string
	balances map[string]int64
	penNames map[string]string
	sequence []string
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests.
func NewInMemory() Store {
	return &inMemoryStore{
		entries:  make(map[string]*Entry),
		byOrder:  make(map[string]string),
		balances: make(map[string]int64),
		penNames: make(map[string]string),
	}
}

func (s *inMemoryStore) Create(_ context.Context, entry Entry) (Entry, error) {
	if err := validate(entry); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.OrderCode != "" {
		if _, exists := s.byOrder[entry.OrderCode]; exists {
			return Entry{}, ErrDuplicateOrderCode
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]json.RawMessage)
	}

	stored := entry
	s.entries[entry.ID] = &stored
	s.sequence = append(s.sequence, entry.ID)
	if entry.OrderCode != "" {
		s.byOrder[entry.OrderCode] = entry.ID
	}
	return cloneEntry(&stored), nil
}

func (s *inMemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

func (s *inMemoryStore) FindByOrderCode(_ context.Context, code string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrder[code]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return cloneEntry(s.entries[id]), nil
}

func (s *inMemoryStore) Transition(_ context.Context, id, status, reason string, metaKey string, metaPayload json.RawMessage) (Entry, error) {
	if !validStatus(status) {
		return Entry{}, ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	if e.Terminal() {
		if e.Status == status {
			return cloneEntry(e), nil
		}
		return Entry{}, ErrInvalidTransition
	}

	e.Status = status
	if reason != "" {
		e.StatusReason = reason
	}
	if metaKey != "" && metaPayload != nil {
		e.Metadata[metaKey] = append(json.RawMessage(nil), metaPayload...)
	}
	e.UpdatedAt = time.Now().UTC()
	return cloneEntry(e), nil
}

func (s *inMemoryStore) AppendMetadata(_ context.Context, id, key string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Metadata[key] = append(json.RawMessage(nil), payload...)
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *inMemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *inMemoryStore) AdjustBalance(_ context.Context, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(userID, delta)
}

func (s *inMemoryStore) adjustLocked(userID string, delta int64) (int64, error) {
	next := s.balances[userID] + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	s.balances[userID] = next
	return next, nil
}

func (s *inMemoryStore) SettleTopup(_ context.Context, id, chargeRef, metaKey string, metaPayload json.RawMessage) (Entry, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, 0, false, ErrEntryNotFound
	}
	if e.Kind != KindTopup {
		return Entry{}, 0, false, ErrInvalidEntry
	}
	if e.Status == StatusSuccess {
		return cloneEntry(e), s.balances[e.UserID], false, nil
	}
	if e.Terminal() {
		return Entry{}, 0, false, ErrInvalidTransition
	}

	balance, err := s.adjustLocked(e.UserID, e.AmountCoins)
	if err != nil {
		return Entry{}, 0, false, err
	}
	e.Status = StatusSuccess
	if chargeRef != "" {
		e.ChargeRef = chargeRef
	}
	if metaKey != "" && metaPayload != nil {
		e.Metadata[metaKey] = append(json.RawMessage(nil), metaPayload...)
	}
	e.UpdatedAt = time.Now().UTC()
	return cloneEntry(e), balance, true, nil
}

func (s *inMemoryStore) Transfer(_ context.Context, spec TransferSpec) (TransferResult, error) {
	if spec.AmountCoins <= 0 {
		return TransferResult{}, ErrInvalidEntry
	}
	if spec.Kind != KindPurchase && spec.Kind != KindGift {
		return TransferResult{}, ErrInvalidEntry
	}
	if spec.FromUserID == spec.ToUserID {
		return TransferResult{}, ErrInvalidEntry
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fromBalance, err := s.adjustLocked(spec.FromUserID, -spec.AmountCoins)
	if err != nil {
		return TransferResult{}, err
	}
	toBalance, _ := s.adjustLocked(spec.ToUserID, spec.AmountCoins)

	pairID := uuid.NewString()
	now := time.Now().UTC()
	debit := Entry{
		ID:             uuid.NewString(),
		UserID:         spec.FromUserID,
		Kind:           spec.Kind,
		Direction:      DirectionDebit,
		AmountCoins:    spec.AmountCoins,
		Provider:       ProviderInternal,
		Status:         StatusSuccess,
		ChapterID:      spec.ChapterID,
		NovelID:        spec.NovelID,
		CounterpartyID: spec.ToUserID,
		PairID:         pairID,
		Metadata:       make(map[string]json.RawMessage),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	credit := debit
	credit.ID = uuid.NewString()
	credit.UserID = spec.ToUserID
	credit.Direction = DirectionCredit
	credit.CounterpartyID = spec.FromUserID
	credit.Metadata = make(map[string]json.RawMessage)

	for _, e := range []Entry{debit, credit} {
		stored := e
		s.entries[e.ID] = &stored
		s.sequence = append(s.sequence, e.ID)
	}

	return TransferResult{Debit: debit, Credit: credit, FromBalance: fromBalance, ToBalance: toBalance}, nil
}

func (s *inMemoryStore) List(_ context.Context, filter Filter) ([]Entry, Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		CountByStatus:   make(map[string]int64),
		CountByProvider: make(map[string]int64),
	}

	matched := make([]Entry, 0)
	for _, id := range s.sequence {
		e := s.entries[id]
		if !matches(e, filter, s.penNames) {
			continue
		}
		summary.CountByStatus[e.Status]++
		summary.CountByProvider[e.Provider]++
		if e.Status == StatusSuccess {
			summary.TotalSettledFiat += e.AmountFiat
		}
		matched = append(matched, cloneEntry(e))
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := paginate(matched, filter.Limit, filter.Offset)
	return page, summary, nil
}

func (s *inMemoryStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Entry, 0)
	for i := len(s.sequence) - 1; i >= 0; i-- {
		e := s.entries[s.sequence[i]]
		if e.UserID == userID {
			matched = append(matched, cloneEntry(e))
		}
	}
	return paginate(matched, limit, offset), nil
}

func matches(e *Entry, f Filter, penNames map[string]string) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Provider != "" && e.Provider != f.Provider {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Search != "" {
		if e.OrderCode != f.Search && e.UserID != f.Search && penNames[e.UserID] != f.Search {
			return false
		}
	}
	if !f.From.IsZero() && e.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func paginate(entries []Entry, limit, offset int) []Entry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

func cloneEntry(e *Entry) Entry {
	out := *e
	out.Metadata = make(map[string]json.RawMessage, len(e.Metadata))
	for k, v := range e.Metadata {
		out.Metadata[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
