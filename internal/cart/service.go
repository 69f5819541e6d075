package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
	redisclient "github.com/almarky/almarky-backend/pkg/redis"
)

const (
	defaultCartTTL  = 30 * 24 * time.Hour
	maxLineQuantity = 99
)

// Item is one cart line. Identity is (ProductID, SelectedColor); the same
// product in a different color is a separate line.
type Item struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	PriceRupees    int64   `json:"price_rupees"`
	DeliveryRupees int64   `json:"delivery_rupees"`
	Quantity       int     `json:"quantity"`
	SelectedColor  *string `json:"selected_color,omitempty"`
	ImageURL       *string `json:"image_url,omitempty"`
}

// Totals is the payable breakdown for a cart.
type Totals struct {
	SubtotalRupees int64 `json:"subtotal_rupees"`
	DeliveryRupees int64 `json:"delivery_rupees"`
	TotalRupees    int64 `json:"total_rupees"`
	ItemCount      int   `json:"item_count"`
}

// Cart is the session-scoped cart document stored in Redis.
type Cart struct {
	SessionID string    `json:"session_id"`
	Items     []Item    `json:"items"`
	Totals    Totals    `json:"totals"`
	UpdatedAt time.Time `json:"updated_at"`
}

type cartStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type cartKeyer interface {
	CartKey(sessionID string) string
}

type Service interface {
	Get(ctx context.Context, sessionID string) (Cart, error)
	Add(ctx context.Context, sessionID, productID string, quantity int, selectedColor *string) (Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, selectedColor *string, quantity int) (Cart, error)
	Remove(ctx context.Context, sessionID, productID string, selectedColor *string) (Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type service struct {
	store   cartStore
	keyer   cartKeyer
	catalog catalog.Service
	logg    *logger.Logger
	ttl     time.Duration
}

func NewService(client *redisclient.Client, catalogSvc catalog.Service, logg *logger.Logger) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		store:   client,
		keyer:   client,
		catalog: catalogSvc,
		logg:    logg,
		ttl:     defaultCartTTL,
	}, nil
}

func (s *service) Get(ctx context.Context, sessionID string) (Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Cart{}, errors.New(errors.CodeValidation, "cart session id is required")
	}
	return s.load(ctx, sessionID)
}

// Add resolves the product from the catalog and merges it into the cart.
// Adding an existing (product, color) pair increments its quantity.
func (s *service) Add(ctx context.Context, sessionID, productID string, quantity int, selectedColor *string) (Cart, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Cart{}, errors.New(errors.CodeValidation, "cart session id is required")
	}
	if quantity <= 0 {
		quantity = 1
	}

	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if !product.InStock {
		return Cart{}, errors.New(errors.CodeStateConflict, "product is out of stock")
	}
	if selectedColor != nil && !colorOffered(product, *selectedColor) {
		return Cart{}, errors.New(errors.CodeValidation, "selected color is not offered for this product")
	}

	current, err := s.load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}

	merged := false
	for i := range current.Items {
		if sameLine(current.Items[i], product.ID, selectedColor) {
			current.Items[i].Quantity = clampQuantity(current.Items[i].Quantity + quantity)
			merged = true
			break
		}
	}
	if !merged {
		item := Item{
			ProductID:      product.ID,
			Name:           product.Name,
			PriceRupees:    product.Price,
			DeliveryRupees: product.DeliveryCharge,
			Quantity:       clampQuantity(quantity),
			SelectedColor:  normalizeColor(selectedColor),
		}
		if len(product.Images) > 0 {
			image := product.Images[0]
			item.ImageURL = &image
		}
		current.Items = append(current.Items, item)
	}

	return s.save(ctx, current)
}

// UpdateQuantity sets the quantity for one line; zero or less removes it.
func (s *service) UpdateQuantity(ctx context.Context, sessionID, productID string, selectedColor *string, quantity int) (Cart, error) {
	current, err := s.Get(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}

	for i := range current.Items {
		if sameLine(current.Items[i], productID, selectedColor) {
			if quantity <= 0 {
				current.Items = append(current.Items[:i], current.Items[i+1:]...)
			} else {
				current.Items[i].Quantity = clampQuantity(quantity)
			}
			return s.save(ctx, current)
		}
	}
	return Cart{}, errors.New(errors.CodeNotFound, "cart line not found")
}

func (s *service) Remove(ctx context.Context, sessionID, productID string, selectedColor *string) (Cart, error) {
	return s.UpdateQuantity(ctx, sessionID, productID, selectedColor, 0)
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New(errors.CodeValidation, "cart session id is required")
	}
	return s.store.Del(ctx, s.keyer.CartKey(sessionID))
}

func (s *service) load(ctx context.Context, sessionID string) (Cart, error) {
	raw, err := s.store.Get(ctx, s.keyer.CartKey(sessionID))
	if err != nil {
		if redisclient.IsNotFound(err) {
			return Cart{SessionID: sessionID, Items: []Item{}}, nil
		}
		return Cart{}, errors.Wrap(errors.CodeDependency, err, "loading cart")
	}
	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "discarding corrupt cart document")
		return Cart{SessionID: sessionID, Items: []Item{}}, nil
	}
	cart.SessionID = sessionID
	if cart.Items == nil {
		cart.Items = []Item{}
	}
	return cart, nil
}

func (s *service) save(ctx context.Context, cart Cart) (Cart, error) {
	cart.Totals = ComputeTotals(cart.Items)
	cart.UpdatedAt = time.Now()

	raw, err := json.Marshal(cart)
	if err != nil {
		return Cart{}, errors.Wrap(errors.CodeInternal, err, "marshal cart")
	}
	if err := s.store.Set(ctx, s.keyer.CartKey(cart.SessionID), string(raw), s.ttl); err != nil {
		return Cart{}, errors.Wrap(errors.CodeDependency, err, "saving cart")
	}
	return cart, nil
}

// ComputeTotals derives the payable amounts: every line contributes
// price*qty to the subtotal and deliveryCharge*qty to the delivery fee.
func ComputeTotals(items []Item) Totals {
	subtotal := decimal.Zero
	delivery := decimal.Zero
	count := 0
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(decimal.NewFromInt(item.PriceRupees).Mul(qty))
		delivery = delivery.Add(decimal.NewFromInt(item.DeliveryRupees).Mul(qty))
		count += item.Quantity
	}
	return Totals{
		SubtotalRupees: subtotal.IntPart(),
		DeliveryRupees: delivery.IntPart(),
		TotalRupees:    subtotal.Add(delivery).IntPart(),
		ItemCount:      count,
	}
}

func sameLine(item Item, productID string, selectedColor *string) bool {
	if item.ProductID != productID {
		return false
	}
	return colorKey(item.SelectedColor) == colorKey(normalizeColor(selectedColor))
}

func colorKey(color *string) string {
	if color == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*color))
}

func normalizeColor(color *string) *string {
	if color == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*color)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func colorOffered(product catalog.Product, color string) bool {
	if len(product.Colors) == 0 {
		return false
	}
	want := strings.ToLower(strings.TrimSpace(color))
	for _, offered := range product.Colors {
		if strings.ToLower(strings.TrimSpace(offered)) == want {
			return true
		}
	}
	return false
}

func clampQuantity(quantity int) int {
	if quantity > maxLineQuantity {
		return maxLineQuantity
	}
	return quantity
}
