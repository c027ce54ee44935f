package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string {
	return string(s)
}

func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return Status(value), nil
	default:
		return "", fmt.Errorf("order: unknown status %q", value)
	}
}

// Item snapshots product data at validation time. Price and Title come
// from the catalog, never from the caller.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order is the aggregate root. Version starts at 0 on creation and is
// incremented exactly once per successfully persisted mutation.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	UserFullName string          `json:"user_full_name"`
	UserEmail    string          `json:"user_email"`
	Status       Status          `json:"status"`
	Currency     string          `json:"currency"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Notes        string          `json:"notes,omitempty"`
	Items        []Item          `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Version      int64           `json:"version"`
}

// Mutable reports whether the aggregate still accepts item/notes changes.
// CANCELLED is the terminal tombstone state.
func (o *Order) Mutable() bool {
	return o.Status != StatusCancelled
}

// Snapshot returns a copy decoupled from the live aggregate, safe to hand
// to best-effort publishers.
func (o *Order) Snapshot() Order {
	copied := *o
	copied.Items = make([]Item, len(o.Items))
	copy(copied.Items, o.Items)
	return copied
}

// Page is a server-side page of orders, creation-descending.
type Page struct {
	Content       []Order `json:"content"`
	Page          int     `json:"page"`
	Size          int     `json:"size"`
	TotalElements int64   `json:"total_elements"`
	TotalPages    int     `json:"total_pages"`
}
