package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/almarky/almarky-backend/pkg/enums"
)

// OrderCreatedEvent signals a checkout accepted for cash-on-delivery fulfillment.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	City          string    `json:"city"`
	ItemCount     int       `json:"item_count"`
	TotalRupees   int64     `json:"total_rupees"`
	Summary       string    `json:"summary"`
	PlacedAt      time.Time `json:"placed_at"`
}

// OrderStatusChangedEvent is emitted when an admin moves an order through its lifecycle.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ChangedAt  time.Time         `json:"changed_at"`
}

// CatalogCommittedEvent reports a catalog document committed to the versioned store.
type CatalogCommittedEvent struct {
	Version      string    `json:"version"`
	ProductCount int       `json:"product_count"`
	Message      string    `json:"message"`
	CommittedAt  time.Time `json:"committed_at"`
}
