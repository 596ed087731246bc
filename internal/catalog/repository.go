package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the chapter or novel does not exist.
var ErrNotFound = errors.New("catalog record not found")

// Repository exposes the catalog reads the coin core depends on, plus the
// unlock grant written on a successful chapter purchase.
type Repository interface {
	GetChapter(ctx context.Context, id string) (Chapter, error)
	GetNovel(ctx context.Context, id string) (Novel, error)
	IsUnlocked(ctx context.Context, userID, chapterID string) (bool, error)
	GrantUnlock(ctx context.Context, userID, chapterID string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed catalog repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetChapter fetches a chapter with its current lock price.
func (r *PostgresRepository) GetChapter(ctx context.Context, id string) (Chapter, error) {
	chapterID, err := uuid.Parse(id)
	if err != nil {
		return Chapter{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `
		SELECT c.id, c.novel_id, n.poster_id, c.title, c.price_coins, c.locked, c.created_at
		FROM chapters c
		JOIN novels n ON n.id = c.novel_id
		WHERE c.id = $1`, chapterID)

	var (
		ch        Chapter
		cid       uuid.UUID
		novelID   uuid.UUID
		posterID  uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&cid, &novelID, &posterID, &ch.Title, &ch.PriceCoins, &ch.Locked, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chapter{}, ErrNotFound
		}
		return Chapter{}, err
	}
	ch.ID = cid.String()
	ch.NovelID = novelID.String()
	ch.PosterID = posterID.String()
	ch.CreatedAt = createdAt.UTC()
	return ch, nil
}

// GetNovel fetches novel display data.
func (r *PostgresRepository) GetNovel(ctx context.Context, id string) (Novel, error) {
	novelID, err := uuid.Parse(id)
	if err != nil {
		return Novel{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, poster_id, title FROM novels WHERE id = $1`, novelID)

	var (
		n        Novel
		nid      uuid.UUID
		posterID uuid.UUID
	)
	if err := row.Scan(&nid, &posterID, &n.Title); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Novel{}, ErrNotFound
		}
		return Novel{}, err
	}
	n.ID = nid.String()
	n.PosterID = posterID.String()
	return n, nil
}

// IsUnlocked reports whether the user already holds access to the chapter.
func (r *PostgresRepository) IsUnlocked(ctx context.Context, userID, chapterID string) (bool, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return false, ErrNotFound
	}
	cid, err := uuid.Parse(chapterID)
	if err != nil {
		return false, ErrNotFound
	}
	var unlocked bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM chapter_unlocks WHERE user_id = $1 AND chapter_id = $2)`, uid, cid).Scan(&unlocked)
	return unlocked, err
}

// GrantUnlock records the buyer's access. Replays are absorbed by the
// conflict clause so a retried purchase stays idempotent.
func (r *PostgresRepository) GrantUnlock(ctx context.Context, userID, chapterID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ErrNotFound
	}
	cid, err := uuid.Parse(chapterID)
	if err != nil {
		return ErrNotFound
	}
	_, err = r.db.Exec(ctx, `INSERT INTO chapter_unlocks (user_id, chapter_id, created_at)
		VALUES ($1, $2, now()) ON CONFLICT (user_id, chapter_id) DO NOTHING`, uid, cid)
	return err
}
