package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the snapshot of each cart line at checkout time.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      string    `gorm:"column:product_id;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPrice      int64     `gorm:"column:unit_price_rupees;not null"`
	DeliveryCharge int64     `gorm:"column:delivery_charge_rupees;not null;default:0"`
	Quantity       int       `gorm:"column:quantity;not null"`
	SelectedColor  *string   `gorm:"column:selected_color"`
	ImageURL       *string   `gorm:"column:image_url"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
