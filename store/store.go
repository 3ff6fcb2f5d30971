// Package store defines the menu and order records the support agent reads,
// the adapter contracts over the document store, and the pure helpers shared
// by every adapter implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by adapters that have no backing store.
var ErrUnavailable = errors.New("store: unavailable")

// MenuItem is a dish on the menu.
type MenuItem struct {
	ID          string  `bson:"-" json:"id"`
	Name        string  `bson:"name" json:"name"`
	Category    string  `bson:"category" json:"category"`
	Price       float64 `bson:"price" json:"price"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
	Orders      int64   `bson:"orders" json:"orders"`
}

// OrderLine is one item of a historical order.
type OrderLine struct {
	Name string
	Qty  int
}

// PaymentStatus is the normalized outcome recorded by the payment provider.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentUnknown   PaymentStatus = "unknown"
)

// PaymentRecord is the payment sub-record of an order.
type PaymentRecord struct {
	Status      PaymentStatus
	ErrorCode   string
	DeclineCode string
	Message     string
	IntentID    string
	ChargeID    string
}

// OrderRecord is a historical order decoded from a heterogeneous document.
type OrderRecord struct {
	ID           string
	UserID       string
	Items        []OrderLine
	Total        float64
	PlacedAt     time.Time
	HasTimestamp bool
	Status       string
	Paid         *bool
	Payment      *PaymentRecord
}

// Match is a fuzzy search hit.
type Match struct {
	Item  MenuItem
	Score float64
}

// Bump increments the popularity counter of the named item.
type Bump struct {
	Name string
	Qty  int
}

// MenuStore reads and updates the menu collection.
type MenuStore interface {
	ListByCategory(ctx context.Context, category string, limit int) ([]string, error)
	ListAllNames(ctx context.Context, limit int) ([]string, error)
	TopByPopularity(ctx context.Context, category string, limit int) ([]string, error)
	Search(ctx context.Context, query string, k int) ([]Match, error)
	Catalog(ctx context.Context, limit int) ([]MenuItem, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]MenuItem, error)
	BumpPopularity(ctx context.Context, bumps []Bump) error
	Bootstrap(ctx context.Context, seed []MenuItem) (int, error)
	Ping(ctx context.Context) error
}

// OrderStore reads the order history collection.
type OrderStore interface {
	RecentOrderIDs(ctx context.Context, userID string, limit int) ([]string, error)
	RecentOrders(ctx context.Context, userID string, limit int) ([]OrderRecord, error)
	LatestOrder(ctx context.Context, userID string) (*OrderRecord, error)
	TopOrderedItems(ctx context.Context, category string, limit int) ([]string, error)
}
