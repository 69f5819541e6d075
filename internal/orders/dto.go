package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/almarky/almarky-backend/pkg/db/models"
	"github.com/almarky/almarky-backend/pkg/enums"
)

// CheckoutRequest is the cash-on-delivery checkout payload. UserID is never
// read from the body; the controller fills it from the access token when the
// customer is signed in.
type CheckoutRequest struct {
	UserID       *uuid.UUID `json:"-"`
	SessionID    string     `json:"session_id" validate:"required"`
	CustomerName string     `json:"customer_name" validate:"required,min=2"`
	Email        string     `json:"email" validate:"required,email"`
	Phone        string     `json:"phone" validate:"required,pk_phone"`
	Address      string     `json:"address" validate:"required,min=5"`
	City         string     `json:"city" validate:"required"`
	Notes        *string    `json:"notes,omitempty"`
}

// UpdateStatusRequest moves an order through its lifecycle.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// TrackRequest looks up an order for an anonymous customer.
type TrackRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Phone   string `json:"phone" validate:"required,pk_phone"`
}

// ItemResponse is one frozen order line.
type ItemResponse struct {
	ProductID       string  `json:"product_id"`
	Name            string  `json:"name"`
	UnitPriceRupees int64   `json:"unit_price_rupees"`
	Quantity        int     `json:"quantity"`
	SelectedColor   *string `json:"selected_color,omitempty"`
	ImageURL        *string `json:"image_url,omitempty"`
}

// OrderResponse is the client-facing order shape.
type OrderResponse struct {
	ID             uuid.UUID         `json:"id"`
	Status         enums.OrderStatus `json:"status"`
	Currency       enums.Currency    `json:"currency"`
	SubtotalRupees int64             `json:"subtotal_rupees"`
	DeliveryRupees int64             `json:"delivery_rupees"`
	TotalRupees    int64             `json:"total_rupees"`
	CustomerName   string            `json:"customer_name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	Address        string            `json:"address"`
	City           string            `json:"city"`
	Notes          *string           `json:"notes,omitempty"`
	Summary        string            `json:"summary"`
	Items          []ItemResponse    `json:"items"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	Status *enums.OrderStatus
	Limit  int
	Offset int
}

// FromModel maps a persisted order onto the response shape.
func FromModel(order *models.Order) *OrderResponse {
	if order == nil {
		return nil
	}
	items := make([]ItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemResponse{
			ProductID:       item.ProductID,
			Name:            item.Name,
			UnitPriceRupees: item.UnitPrice,
			Quantity:        item.Quantity,
			SelectedColor:   item.SelectedColor,
			ImageURL:        item.ImageURL,
		})
	}
	return &OrderResponse{
		ID:             order.ID,
		Status:         order.Status,
		Currency:       order.Currency,
		SubtotalRupees: order.SubtotalRupees,
		DeliveryRupees: order.DeliveryRupees,
		TotalRupees:    order.TotalRupees,
		CustomerName:   order.CustomerName,
		Email:          order.CustomerEmail,
		Phone:          order.CustomerPhone,
		Address:        order.Address,
		City:           order.City,
		Notes:          order.Notes,
		Summary:        order.Summary,
		Items:          items,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}
