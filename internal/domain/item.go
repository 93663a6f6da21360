package domain

import "github.com/shopspring/decimal"

// Item is the catalog's view of a rentable product, as far as booking needs it.
type Item struct {
	ID int32 `json:"id"`
	// OwnerID is nil for catalog entries that lost their owner reference.
	OwnerID   *int32          `json:"owner_id,omitempty"`
	Name      string          `json:"name"`
	DailyRate decimal.Decimal `json:"daily_rate"`
	Available bool            `json:"available"`
}

func (i *Item) IsOwnedBy(userID int32) bool {
	return i != nil && i.OwnerID != nil && *i.OwnerID == userID
}
