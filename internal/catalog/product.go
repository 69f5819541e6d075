package catalog

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/almarky/almarky-backend/pkg/enums"
	"github.com/almarky/almarky-backend/pkg/errors"
)

// Product is one entry in the catalog document. Amounts are whole rupees.
type Product struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Price              int64    `json:"price"`
	OriginalPrice      int64    `json:"originalPrice"`
	DiscountPercentage int      `json:"discountPercentage"`
	Currency           string   `json:"currency"`
	Category           string   `json:"category"`
	Description        string   `json:"description"`
	Images             []string `json:"images"`
	InStock            bool     `json:"inStock"`
	Features           []string `json:"features"`
	Colors             []string `json:"colors,omitempty"`
	DeliveryCharge     int64    `json:"deliveryCharge"`
}

// ComputePrice derives the selling price from the pre-discount price. Rounds
// half up to whole rupees.
func ComputePrice(originalPrice int64, discountPercentage int) int64 {
	if discountPercentage <= 0 {
		return originalPrice
	}
	if discountPercentage >= 100 {
		return 0
	}
	original := decimal.NewFromInt(originalPrice)
	factor := decimal.NewFromInt(int64(100 - discountPercentage)).Div(decimal.NewFromInt(100))
	return original.Mul(factor).Round(0).IntPart()
}

// Normalize recomputes the derived price and fills defaults so hand-edited
// documents cannot leave stale values behind.
func (p *Product) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.Currency == "" {
		p.Currency = string(enums.CurrencyPKR)
	}
	if p.OriginalPrice <= 0 {
		p.OriginalPrice = p.Price
	}
	p.Price = ComputePrice(p.OriginalPrice, p.DiscountPercentage)
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Features == nil {
		p.Features = []string{}
	}
}

// Validate checks the fields required before a product can be committed.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New(errors.CodeValidation, "product id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New(errors.CodeValidation, "product name is required")
	}
	if p.OriginalPrice <= 0 {
		return errors.New(errors.CodeValidation, "product original price must be positive")
	}
	if p.DiscountPercentage < 0 || p.DiscountPercentage > 100 {
		return errors.New(errors.CodeValidation, "discount percentage must be between 0 and 100")
	}
	if p.DeliveryCharge < 0 {
		return errors.New(errors.CodeValidation, "delivery charge cannot be negative")
	}
	return nil
}

// FindProduct returns the product with the given id, or nil.
func FindProduct(products []Product, id string) *Product {
	for i := range products {
		if products[i].ID == id {
			return &products[i]
		}
	}
	return nil
}
