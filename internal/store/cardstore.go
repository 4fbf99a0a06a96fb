package store

import "context"

// CardStore is the document store for day sets and the anonymous demo quota.
// Keys are (identity, date); values are treated as opaque documents.
type CardStore interface {
	// GetDaySet returns the stored set, or nil if none exists for the key.
	GetDaySet(ctx context.Context, identity, date string) (*DaySet, error)
	// CreateDaySet stores the set only if no set exists for its key. It
	// returns the set that ended up stored and whether this call created it:
	// the loser of a near-simultaneous race receives the winner's set.
	CreateDaySet(ctx context.Context, set *DaySet) (*DaySet, bool, error)
	// DeleteDaySet removes the set for the key, if any.
	DeleteDaySet(ctx context.Context, identity, date string) error
	// UpdateCardQuestion rewrites one card's question and highlights in
	// place, leaving its answer and metadata untouched. Missing sets or
	// cards are not an error: regeneration responses stand on their own.
	UpdateCardQuestion(ctx context.Context, identity, date, cardID, question string, highlights []string) error

	// ReserveDemoQuota atomically claims one demo regeneration slot for the
	// hashed device id and date, returning false at the ceiling.
	ReserveDemoQuota(ctx context.Context, deviceHash, date string, ceiling int) (bool, error)
	// RefundDemoQuota releases a claimed slot, best effort.
	RefundDemoQuota(ctx context.Context, deviceHash, date string) error
}
