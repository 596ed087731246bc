package catalog

import "time"

// Chapter carries the catalog data the coin core consumes: the lock price and
// the poster who receives purchase and gift coins.
type Chapter struct {
	ID         string
	NovelID    string
	PosterID   string
	Title      string
	PriceCoins int64
	Locked     bool
	CreatedAt  time.Time
}

// Novel is referenced for notification text and entry display only.
type Novel struct {
	ID       string
	PosterID string
	Title    string
}
