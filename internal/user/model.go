package user

import "time"

const (
	RoleReader = "reader"
	RoleAuthor = "author"
	RoleAdmin  = "admin"
)

// User represents a platform member who owns a coin balance. The balance
// column itself is mutated only through the ledger store.
type User struct {
	ID          string
	PenName     string
	Role        string
	CoinBalance int64
	CreatedAt   time.Time
}
