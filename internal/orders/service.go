package orders

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/almarky/almarky-backend/internal/cart"
	"github.com/almarky/almarky-backend/pkg/db/models"
	"github.com/almarky/almarky-backend/pkg/enums"
	pkgerrors "github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/metrics"
	"github.com/almarky/almarky-backend/pkg/outbox"
	"github.com/almarky/almarky-backend/pkg/outbox/payloads"
)

// Pakistani mobile numbers: 11 digits starting 03.
var phoneRe = regexp.MustCompile(`^03\d{9}$`)

// ValidPhone reports whether the value is an acceptable Pakistani mobile number.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(strings.TrimSpace(phone))
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type cartReader interface {
	Get(ctx context.Context, sessionID string) (cart.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

// Service owns checkout and the order lifecycle.
type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*OrderResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*OrderResponse, error)
	Track(ctx context.Context, req TrackRequest) (*OrderResponse, error)
	List(ctx context.Context, filter ListFilter) ([]OrderResponse, error)
	ListMine(ctx context.Context, userID uuid.UUID) ([]OrderResponse, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (*OrderResponse, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	carts   cartReader
	events  eventEmitter
	metrics *metrics.StorefrontMetrics
	logg    *logger.Logger
}

// ServiceParams bundles the dependencies required to build the orders service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Carts   cartReader
	Events  eventEmitter
	Metrics *metrics.StorefrontMetrics
	Logger  *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart reader is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		carts:   params.Carts,
		events:  params.Events,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Checkout freezes the cart into a pending cash-on-delivery order. The order
// row and its outbox event commit atomically; downstream mirrors (sheet log,
// Pub/Sub) happen later and never block the customer.
func (s *service) Checkout(ctx context.Context, req CheckoutRequest) (*OrderResponse, error) {
	if !ValidPhone(req.Phone) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone must be 11 digits starting 03").
			WithDetails(map[string]any{"field": "phone"})
	}

	current, err := s.carts.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if len(current.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	totals := cart.ComputeTotals(current.Items)

	order := &models.Order{
		ID:             uuid.New(),
		UserID:         req.UserID,
		Status:         enums.OrderStatusPending,
		Currency:       enums.CurrencyPKR,
		SubtotalRupees: totals.SubtotalRupees,
		DeliveryRupees: totals.DeliveryRupees,
		TotalRupees:    totals.TotalRupees,
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.ToLower(strings.TrimSpace(req.Email)),
		CustomerPhone:  strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		City:           strings.TrimSpace(req.City),
		Notes:          req.Notes,
	}
	for _, line := range current.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			UnitPrice:      line.PriceRupees,
			DeliveryCharge: line.DeliveryRupees,
			Quantity:       line.Quantity,
			SelectedColor:  line.SelectedColor,
			ImageURL:       line.ImageURL,
		})
	}
	order.Summary = renderSummary(order.Items, totals)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, order); err != nil {
			return err
		}
		return s.emitCreated(ctx, tx, order)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}

	s.metrics.IncOrderPlaced("cod")
	orderCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(orderCtx, "total_rupees", order.TotalRupees), "order placed")

	if err := s.carts.Clear(ctx, req.SessionID); err != nil {
		s.logg.Warn(s.logg.WithField(orderCtx, "error", err.Error()), "cart not cleared after checkout")
	}

	return FromModel(order), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return FromModel(order), nil
}

// Track serves anonymous customers: the order id alone is not enough, the
// phone used at checkout must match.
func (s *service) Track(ctx context.Context, req TrackRequest) (*OrderResponse, error) {
	if !ValidPhone(req.Phone) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "phone must be 11 digits starting 03")
	}
	id, err := uuid.Parse(strings.TrimSpace(req.OrderID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	order, err := s.repo.FindByIDAndPhone(ctx, id, strings.TrimSpace(req.Phone))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return FromModel(order), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]OrderResponse, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]OrderResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// ListMine returns the signed-in customer's own order history.
func (s *service) ListMine(ctx context.Context, userID uuid.UUID) ([]OrderResponse, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	out := make([]OrderResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// UpdateStatus applies one lifecycle transition. Illegal jumps and edits to
// terminal orders are rejected; a concurrent admin winning the race surfaces
// as a state conflict, not a silent overwrite.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (*OrderResponse, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}

	from := order.Status
	if !from.CanTransitionTo(to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "status transition disallowed").
			WithDetails(map[string]any{"from": from, "to": to})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.UpdateStatusTx(tx, id, from, to)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed since last read")
		}
		return s.emitStatusChanged(ctx, tx, order.ID, from, to)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	s.metrics.IncStatusTransition(string(to))
	order.Status = to
	order.UpdatedAt = time.Now()
	return FromModel(order), nil
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if s.events == nil {
		return nil
	}
	itemCount := 0
	for _, item := range order.Items {
		itemCount += item.Quantity
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			CustomerName:  order.CustomerName,
			CustomerPhone: order.CustomerPhone,
			City:          order.City,
			ItemCount:     itemCount,
			TotalRupees:   order.TotalRupees,
			Summary:       order.Summary,
			PlacedAt:      time.Now(),
		},
	})
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.OrderStatus) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Version:       1,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:    orderID,
			FromStatus: from,
			ToStatus:   to,
			ChangedAt:  time.Now(),
		},
	})
}

// renderSummary produces the flattened text block mirrored to the sheet log.
func renderSummary(items []models.OrderItem, totals cart.Totals) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(fmt.Sprintf("%dx %s", item.Quantity, item.Name))
		if item.SelectedColor != nil {
			b.WriteString(fmt.Sprintf(" (%s)", *item.SelectedColor))
		}
		b.WriteString(fmt.Sprintf(" = Rs. %d\n", item.UnitPrice*int64(item.Quantity)))
	}
	b.WriteString(fmt.Sprintf("Delivery: Rs. %d\n", totals.DeliveryRupees))
	b.WriteString(fmt.Sprintf("Total: Rs. %d", totals.TotalRupees))
	return b.String()
}
