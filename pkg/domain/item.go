package domain

import "time"

// Category classifies a deposited item.
type Category string

// Item categories.
const (
	CategoryDocuments Category = "documents"
	CategoryPhotos    Category = "photos"
	CategoryMaps      Category = "maps"
	CategoryOther     Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryDocuments, CategoryPhotos, CategoryMaps, CategoryOther:
		return true
	default:
		return false
	}
}

// Status is the position of an item in the ledger.
type Status string

// Item statuses.
const (
	StatusStored Status = "stored"
	StatusIssued Status = "issued"
)

// Item is a physical item deposited at the counter.
type Item struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      Category   `json:"category"`
	ClientName    string     `json:"client_name"`
	ClientPhone   string     `json:"client_phone"`
	ClientEmail   string     `json:"client_email,omitempty"`
	DepositDate   time.Time  `json:"deposit_date"`
	PickupDate    *time.Time `json:"pickup_date,omitempty"`
	DepositAmount int64      `json:"deposit_amount"`
	PickupAmount  int64      `json:"pickup_amount"`
	Status        Status     `json:"status"`
	QRCode        string     `json:"qr_code"`
}

// ItemDraft carries the caller-supplied fields of a new item.
type ItemDraft struct {
	Name          string     `json:"name"`
	Category      Category   `json:"category"`
	ClientName    string     `json:"client_name"`
	ClientPhone   string     `json:"client_phone"`
	ClientEmail   string     `json:"client_email,omitempty"`
	DepositDate   time.Time  `json:"deposit_date"`
	PickupDate    *time.Time `json:"pickup_date,omitempty"`
	DepositAmount int64      `json:"deposit_amount"`
	PickupAmount  int64      `json:"pickup_amount"`
}
