package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/almarky/almarky-backend/pkg/enums"
)

// Order is the durable record produced by checkout. Line items are frozen
// snapshots; later catalog edits never touch historical orders.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID         *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Status         enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Currency       enums.Currency    `gorm:"column:currency;type:text;not null;default:'PKR'"`
	SubtotalRupees int64             `gorm:"column:subtotal_rupees;not null"`
	DeliveryRupees int64             `gorm:"column:delivery_rupees;not null;default:0"`
	TotalRupees    int64             `gorm:"column:total_rupees;not null"`
	CustomerName   string            `gorm:"column:customer_name;not null"`
	CustomerEmail  string            `gorm:"column:customer_email;not null"`
	CustomerPhone  string            `gorm:"column:customer_phone;not null"`
	Address        string            `gorm:"column:address;not null"`
	City           string            `gorm:"column:city;not null"`
	Notes          *string           `gorm:"column:notes"`
	Summary        string            `gorm:"column:summary;not null;default:''"`
	Items          []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
