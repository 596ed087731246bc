package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreNotifier persists notification rows for the platform's inbox UI.
type StoreNotifier struct {
	db *pgxpool.Pool
}

// NewStoreNotifier builds a Postgres-backed notifier.
func NewStoreNotifier(db *pgxpool.Pool) *StoreNotifier {
	return &StoreNotifier{db: db}
}

// Send inserts one notification row.
func (n *StoreNotifier) Send(ctx context.Context, message Message) error {
	recipientID, err := uuid.Parse(message.RecipientID)
	if err != nil {
		return err
	}
	_, err = n.db.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, kind, title, body, novel_id, chapter_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, NULLIF($7, '')::uuid, now())`,
		uuid.New(), recipientID, message.Kind, message.Title, message.Body,
		message.NovelID, message.ChapterID)
	return err
}
