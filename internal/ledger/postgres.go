package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists ledger entries and user balances in PostgreSQL. The
// entry status flip and the balance delta always share one transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const entryColumns = `
	e.id, e.user_id, e.kind, COALESCE(e.direction, ''), e.amount_coins,
	e.amount_fiat, e.provider, e.status, COALESCE(e.status_reason, ''),
	COALESCE(e.order_code, ''), COALESCE(e.session_ref, ''),
	COALESCE(e.charge_ref, ''), COALESCE(e.chapter_id::text, ''),
	COALESCE(e.novel_id::text, ''), COALESCE(e.counterparty_id::text, ''),
	COALESCE(e.pair_id::text, ''), e.metadata, e.created_at, e.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e         Entry
		id        uuid.UUID
		userID    uuid.UUID
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &userID, &e.Kind, &e.Direction, &e.AmountCoins,
		&e.AmountFiat, &e.Provider, &e.Status, &e.StatusReason,
		&e.OrderCode, &e.SessionRef, &e.ChargeRef, &e.ChapterID,
		&e.NovelID, &e.CounterpartyID, &e.PairID, &e.Metadata,
		&createdAt, &updatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id.String()
	e.UserID = userID.String()
	e.CreatedAt = createdAt.UTC()
	e.UpdatedAt = updatedAt.UTC()
	if e.Metadata == nil {
		e.Metadata = make(map[string]json.RawMessage)
	}
	return e, nil
}

// Create inserts a validated entry and assigns its identity.
func (s *PostgresStore) Create(ctx context.Context, entry Entry) (Entry, error) {
	if err := validate(entry); err != nil {
		return Entry{}, err
	}

	userID, err := uuid.Parse(entry.UserID)
	if err != nil {
		return Entry{}, ErrInvalidEntry
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = make(map[string]json.RawMessage)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Entry{}, err
	}

	id := uuid.New()
	if entry.ID != "" {
		// Callers may pre-assign identity so it can be embedded in provider
		// correlation metadata before the row exists.
		parsed, err := uuid.Parse(entry.ID)
		if err != nil {
			return Entry{}, ErrInvalidEntry
		}
		id = parsed
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			id, user_id, kind, direction, amount_coins, amount_fiat, provider,
			status, status_reason, order_code, session_ref, charge_ref,
			chapter_id, novel_id, counterparty_id, pair_id, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''),
			NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''),
			NULLIF($13, '')::uuid, NULLIF($14, '')::uuid,
			NULLIF($15, '')::uuid, NULLIF($16, '')::uuid, $17, now(), now()
		)
		RETURNING created_at, updated_at`,
		id, userID, entry.Kind, entry.Direction, entry.AmountCoins,
		entry.AmountFiat, entry.Provider, entry.Status, entry.StatusReason,
		entry.OrderCode, entry.SessionRef, entry.ChargeRef, entry.ChapterID,
		entry.NovelID, entry.CounterpartyID, entry.PairID, metaJSON)

	var createdAt, updatedAt time.Time
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Entry{}, ErrDuplicateOrderCode
		}
		return Entry{}, err
	}

	entry.ID = id.String()
	entry.Metadata = metadata
	entry.CreatedAt = createdAt.UTC()
	entry.UpdatedAt = updatedAt.UTC()
	return entry, nil
}

// Get fetches an entry by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, ErrEntryNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries e WHERE e.id = $1`, entryID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return entry, err
}

// FindByOrderCode fetches the topup attempt matching a correlation code.
func (s *PostgresStore) FindByOrderCode(ctx context.Context, code string) (Entry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries e WHERE e.order_code = $1`, code)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return entry, err
}

// Transition moves an entry forward, treating a repeated terminal status as a
// read of the current row.
func (s *PostgresStore) Transition(ctx context.Context, id, status, reason string, metaKey string, metaPayload json.RawMessage) (Entry, error) {
	if !validStatus(status) {
		return Entry{}, ErrInvalidTransition
	}
	entryID, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, ErrEntryNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := lockEntry(ctx, tx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if current.Terminal() {
		if current.Status == status {
			return current, nil
		}
		return Entry{}, ErrInvalidTransition
	}

	updated, err := updateEntryStatus(ctx, tx, entryID, status, reason, "", metaKey, metaPayload)
	if err != nil {
		return Entry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return updated, nil
}

// AppendMetadata merges one keyed payload into the entry's metadata snapshot.
func (s *PostgresStore) AppendMetadata(ctx context.Context, id, key string, payload json.RawMessage) error {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return ErrEntryNotFound
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE ledger_entries
		SET metadata = metadata || jsonb_build_object($2::text, $3::jsonb), updated_at = now()
		WHERE id = $1`, entryID, key, payload)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Balance returns a user's current coin balance.
func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}
	var balance int64
	if err := s.db.QueryRow(ctx, `SELECT coin_balance FROM users WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

// AdjustBalance applies the delta with a conditional update so concurrent
// debits can never overdraw.
func (s *PostgresStore) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}
	return adjustBalance(ctx, s.db, id, delta)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func adjustBalance(ctx context.Context, q execQuerier, userID uuid.UUID, delta int64) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `
		UPDATE users SET coin_balance = coin_balance + $2
		WHERE id = $1 AND coin_balance + $2 >= 0
		RETURNING coin_balance`, userID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	// Distinguish a missing user from a rejected overdraft.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return 0, ErrInsufficientFunds
}

// SettleTopup credits the owner and flips the entry to success in one
// transaction. Replays observe the terminal row and current balance only;
// the returned flag reports whether this call performed the credit.
func (s *PostgresStore) SettleTopup(ctx context.Context, id, chargeRef, metaKey string, metaPayload json.RawMessage) (Entry, int64, bool, error) {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, 0, false, ErrEntryNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, 0, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	current, err := lockEntry(ctx, tx, entryID)
	if err != nil {
		return Entry{}, 0, false, err
	}
	if current.Kind != KindTopup {
		return Entry{}, 0, false, ErrInvalidEntry
	}

	userID, err := uuid.Parse(current.UserID)
	if err != nil {
		return Entry{}, 0, false, ErrUserNotFound
	}

	if current.Status == StatusSuccess {
		var balance int64
		if err := tx.QueryRow(ctx, `SELECT coin_balance FROM users WHERE id = $1`, userID).Scan(&balance); err != nil {
			return Entry{}, 0, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Entry{}, 0, false, err
		}
		return current, balance, false, nil
	}
	if current.Terminal() {
		return Entry{}, 0, false, ErrInvalidTransition
	}

	balance, err := adjustBalance(ctx, tx, userID, current.AmountCoins)
	if err != nil {
		return Entry{}, 0, false, err
	}
	updated, err := updateEntryStatus(ctx, tx, entryID, StatusSuccess, "", chargeRef, metaKey, metaPayload)
	if err != nil {
		return Entry{}, 0, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, 0, false, err
	}
	return updated, balance, true, nil
}

// Transfer debits, credits and writes the linked pair inside one transaction,
// locking the two user rows in deterministic order.
func (s *PostgresStore) Transfer(ctx context.Context, spec TransferSpec) (TransferResult, error) {
	if spec.AmountCoins <= 0 {
		return TransferResult{}, ErrInvalidEntry
	}
	if spec.Kind != KindPurchase && spec.Kind != KindGift {
		return TransferResult{}, ErrInvalidEntry
	}
	fromID, err := uuid.Parse(spec.FromUserID)
	if err != nil {
		return TransferResult{}, ErrUserNotFound
	}
	toID, err := uuid.Parse(spec.ToUserID)
	if err != nil {
		return TransferResult{}, ErrUserNotFound
	}
	if fromID == toID {
		return TransferResult{}, ErrInvalidEntry
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	// Lock in id order to prevent deadlocks between crossing transfers.
	first, second := fromID, toID
	if second.String() < first.String() {
		first, second = second, first
	}
	for _, id := range []uuid.UUID{first, second} {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT coin_balance FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return TransferResult{}, ErrUserNotFound
			}
			return TransferResult{}, err
		}
	}

	fromBalance, err := adjustBalance(ctx, tx, fromID, -spec.AmountCoins)
	if err != nil {
		return TransferResult{}, err
	}
	toBalance, err := adjustBalance(ctx, tx, toID, spec.AmountCoins)
	if err != nil {
		return TransferResult{}, err
	}

	pairID := uuid.New()
	debit, err := insertTransferLeg(ctx, tx, spec, pairID, fromID, toID, DirectionDebit)
	if err != nil {
		return TransferResult{}, err
	}
	credit, err := insertTransferLeg(ctx, tx, spec, pairID, toID, fromID, DirectionCredit)
	if err != nil {
		return TransferResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Debit: debit, Credit: credit, FromBalance: fromBalance, ToBalance: toBalance}, nil
}

func insertTransferLeg(ctx context.Context, tx pgx.Tx, spec TransferSpec, pairID, owner, counterparty uuid.UUID, direction string) (Entry, error) {
	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			id, user_id, kind, direction, amount_coins, amount_fiat, provider,
			status, chapter_id, novel_id, counterparty_id, pair_id, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, 0, $6, $7,
			NULLIF($8, '')::uuid, NULLIF($9, '')::uuid, $10, $11, '{}'::jsonb,
			now(), now()
		)
		RETURNING created_at, updated_at`,
		id, owner, spec.Kind, direction, spec.AmountCoins, ProviderInternal,
		StatusSuccess, spec.ChapterID, spec.NovelID, counterparty, pairID)

	var createdAt, updatedAt time.Time
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:             id.String(),
		UserID:         owner.String(),
		Kind:           spec.Kind,
		Direction:      direction,
		AmountCoins:    spec.AmountCoins,
		Provider:       ProviderInternal,
		Status:         StatusSuccess,
		ChapterID:      spec.ChapterID,
		NovelID:        spec.NovelID,
		CounterpartyID: counterparty.String(),
		PairID:         pairID.String(),
		Metadata:       make(map[string]json.RawMessage),
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}, nil
}

// List returns a filtered page of entries plus aggregates computed over the
// same filtered set.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Entry, Summary, error) {
	where, args := buildFilter(filter)

	query := `SELECT ` + entryColumns + `
		FROM ledger_entries e
		JOIN users u ON u.id = e.user_id` + where + `
		ORDER BY e.created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, Summary{}, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, Summary{}, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, Summary{}, err
	}

	summary, err := s.summarize(ctx, filter)
	if err != nil {
		return nil, Summary{}, err
	}
	return entries, summary, nil
}

func (s *PostgresStore) summarize(ctx context.Context, filter Filter) (Summary, error) {
	where, args := buildFilter(filter)

	summary := Summary{
		CountByStatus:   make(map[string]int64),
		CountByProvider: make(map[string]int64),
	}

	rows, err := s.db.Query(ctx, `
		SELECT e.status, e.provider, COUNT(*),
			COALESCE(SUM(e.amount_fiat) FILTER (WHERE e.status = 'success'), 0)
		FROM ledger_entries e
		JOIN users u ON u.id = e.user_id`+where+`
		GROUP BY e.status, e.provider`, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var status, provider string
		var count, settled int64
		if err := rows.Scan(&status, &provider, &count, &settled); err != nil {
			return Summary{}, err
		}
		summary.CountByStatus[status] += count
		summary.CountByProvider[provider] += count
		summary.TotalSettledFiat += settled
	}
	return summary, rows.Err()
}

func buildFilter(filter Filter) (string, []any) {
	clauses := make([]string, 0, 6)
	args := make([]any, 0, 6)

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("e.status = $%d", filter.Status)
	}
	if filter.Provider != "" {
		add("e.provider = $%d", filter.Provider)
	}
	if filter.Kind != "" {
		add("e.kind = $%d", filter.Kind)
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		clauses = append(clauses, fmt.Sprintf("(e.order_code = $%d OR u.pen_name ILIKE $%d)", len(args), len(args)))
	}
	if !filter.From.IsZero() {
		add("e.created_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("e.created_at <= $%d", filter.To.UTC())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListByUser returns a user's own statement, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+`
		FROM ledger_entries e
		WHERE e.user_id = $1
		ORDER BY e.created_at DESC
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func lockEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Entry, error) {
	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries e WHERE e.id = $1 FOR UPDATE`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return entry, err
}

func updateEntryStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, reason, chargeRef string, metaKey string, metaPayload json.RawMessage) (Entry, error) {
	if metaKey == "" || metaPayload == nil {
		metaKey = ""
		metaPayload = json.RawMessage(`null`)
	}
	row := tx.QueryRow(ctx, `
		UPDATE ledger_entries e SET
			status = $2,
			status_reason = COALESCE(NULLIF($3, ''), status_reason),
			charge_ref = COALESCE(NULLIF($4, ''), charge_ref),
			metadata = CASE WHEN $5 = '' THEN metadata
				ELSE metadata || jsonb_build_object($5::text, $6::jsonb) END,
			updated_at = now()
		WHERE e.id = $1
		RETURNING `+entryColumns, id, status, reason, chargeRef, metaKey, metaPayload)
	return scanEntry(row)
}
