package orders

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/almarky/almarky-backend/internal/cart"
	"github.com/almarky/almarky-backend/pkg/db/models"
	"github.com/almarky/almarky-backend/pkg/enums"
	pkgerrors "github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/outbox"
)

type fakeOrderRepo struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeOrderRepo) CreateTx(tx *gorm.DB, order *models.Order) error {
	stored := *order
	f.orders[order.ID] = &stored
	return nil
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if order, ok := f.orders[id]; ok {
		copied := *order
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrderRepo) FindByIDAndPhone(ctx context.Context, id uuid.UUID, phone string) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok || order.CustomerPhone != phone {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		out = append(out, *order)
	}
	return out, nil
}

func (f *fakeOrderRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID != nil && *order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeCarts struct {
	carts   map[string]cart.Cart
	cleared []string
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[string]cart.Cart{}}
}

func (f *fakeCarts) Get(ctx context.Context, sessionID string) (cart.Cart, error) {
	if c, ok := f.carts[sessionID]; ok {
		return c, nil
	}
	return cart.Cart{SessionID: sessionID, Items: []cart.Item{}}, nil
}

func (f *fakeCarts) Clear(ctx context.Context, sessionID string) error {
	delete(f.carts, sessionID)
	f.cleared = append(f.cleared, sessionID)
	return nil
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
}

func newTestService(t *testing.T, repo *fakeOrderRepo, carts *fakeCarts, emitter *fakeEmitter) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Tx:     fakeTxRunner{},
		Carts:  carts,
		Events: emitter,
		Logger: testLogger(t),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seededCheckoutRequest(sessionID string) CheckoutRequest {
	return CheckoutRequest{
		SessionID:    sessionID,
		CustomerName: "Aisha Khan",
		Email:        "Aisha@Example.pk",
		Phone:        "03001234567",
		Address:      "House 12, Street 4, DHA",
		City:         "Lahore",
	}
}

func TestCheckoutCreatesPendingOrderWithDelivery(t *testing.T) {
	repo := newFakeOrderRepo()
	carts := newFakeCarts()
	emitter := &fakeEmitter{}
	blue := "Blue"
	carts.carts["sess-1"] = cart.Cart{
		SessionID: "sess-1",
		Items: []cart.Item{
			{ProductID: "almarky-aurora-lamp", Name: "Aurora Table Lamp", PriceRupees: 3600, DeliveryRupees: 150, Quantity: 1, SelectedColor: &blue},
		},
	}
	svc := newTestService(t, repo, carts, emitter)

	resp, err := svc.Checkout(context.Background(), seededCheckoutRequest("sess-1"))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if resp.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", resp.Status)
	}
	if resp.SubtotalRupees != 3600 || resp.DeliveryRupees != 150 || resp.TotalRupees != 3750 {
		t.Fatalf("unexpected totals: subtotal=%d delivery=%d total=%d",
			resp.SubtotalRupees, resp.DeliveryRupees, resp.TotalRupees)
	}
	if resp.Email != "aisha@example.pk" {
		t.Fatalf("email not normalized: %q", resp.Email)
	}
	if len(resp.Items) != 1 || resp.Items[0].UnitPriceRupees != 3600 {
		t.Fatalf("unexpected frozen items: %+v", resp.Items)
	}

	if len(emitter.events) != 1 {
		t.Fatalf("expected one outbox event, got %d", len(emitter.events))
	}
	event := emitter.events[0]
	if event.EventType != enums.EventOrderCreated || event.AggregateID != resp.ID {
		t.Fatalf("unexpected event: %+v", event)
	}

	if len(carts.cleared) != 1 || carts.cleared[0] != "sess-1" {
		t.Fatal("cart not cleared after checkout")
	}
}

func TestCheckoutAttachesSignedInCustomer(t *testing.T) {
	repo := newFakeOrderRepo()
	carts := newFakeCarts()
	carts.carts["sess-2"] = cart.Cart{
		SessionID: "sess-2",
		Items: []cart.Item{
			{ProductID: "sahar-kettle", Name: "Sahar Kettle", PriceRupees: 3200, Quantity: 1},
		},
	}
	svc := newTestService(t, repo, carts, &fakeEmitter{})

	userID := uuid.New()
	req := seededCheckoutRequest("sess-2")
	req.UserID = &userID

	resp, err := svc.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	mine, err := svc.ListMine(context.Background(), userID)
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != resp.ID {
		t.Fatalf("expected the placed order in the customer's history, got %+v", mine)
	}

	other, err := svc.ListMine(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("list mine: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty history for another customer, got %d orders", len(other))
	}
}

func TestCheckoutRejectsBadPhone(t *testing.T) {
	svc := newTestService(t, newFakeOrderRepo(), newFakeCarts(), &fakeEmitter{})

	for _, phone := range []string{"0300123456", "13001234567", "030012345678", "+923001234567"} {
		req := seededCheckoutRequest("sess-1")
		req.Phone = phone
		_, err := svc.Checkout(context.Background(), req)
		if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
			t.Fatalf("phone %q: expected VALIDATION, got %v", phone, err)
		}
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	repo := newFakeOrderRepo()
	emitter := &fakeEmitter{}
	svc := newTestService(t, repo, newFakeCarts(), emitter)

	_, err := svc.Checkout(context.Background(), seededCheckoutRequest("sess-empty"))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION for empty cart, got %v", err)
	}
	if len(repo.orders) != 0 || len(emitter.events) != 0 {
		t.Fatal("empty cart must not create orders or events")
	}
}

func TestCheckoutSummaryListsLinesAndTotal(t *testing.T) {
	repo := newFakeOrderRepo()
	carts := newFakeCarts()
	carts.carts["sess-2"] = cart.Cart{
		SessionID: "sess-2",
		Items: []cart.Item{
			{ProductID: "p1", Name: "Breeze Fan", PriceRupees: 5100, DeliveryRupees: 0, Quantity: 2},
			{ProductID: "p2", Name: "Sahar Kettle", PriceRupees: 3200, DeliveryRupees: 200, Quantity: 1},
		},
	}
	svc := newTestService(t, repo, carts, &fakeEmitter{})

	resp, err := svc.Checkout(context.Background(), seededCheckoutRequest("sess-2"))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	want := "2x Breeze Fan = Rs. 10200\n1x Sahar Kettle = Rs. 3200\nDelivery: Rs. 200\nTotal: Rs. 13600"
	if resp.Summary != want {
		t.Fatalf("summary mismatch:\ngot:  %q\nwant: %q", resp.Summary, want)
	}
}

func TestTrackRequiresMatchingPhone(t *testing.T) {
	repo := newFakeOrderRepo()
	carts := newFakeCarts()
	carts.carts["sess-3"] = cart.Cart{
		SessionID: "sess-3",
		Items:     []cart.Item{{ProductID: "p1", Name: "Lamp", PriceRupees: 3600, Quantity: 1}},
	}
	svc := newTestService(t, repo, carts, &fakeEmitter{})

	placed, err := svc.Checkout(context.Background(), seededCheckoutRequest("sess-3"))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	found, err := svc.Track(context.Background(), TrackRequest{OrderID: placed.ID.String(), Phone: "03001234567"})
	if err != nil {
		t.Fatalf("track with matching phone: %v", err)
	}
	if found.ID != placed.ID {
		t.Fatalf("tracked wrong order %s", found.ID)
	}

	_, err = svc.Track(context.Background(), TrackRequest{OrderID: placed.ID.String(), Phone: "03009999999"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND with wrong phone, got %v", err)
	}
}

func TestUpdateStatusFollowsLifecycle(t *testing.T) {
	repo := newFakeOrderRepo()
	emitter := &fakeEmitter{}
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending, CustomerPhone: "03001234567"}
	repo.orders[order.ID] = order
	svc := newTestService(t, repo, newFakeCarts(), emitter)

	resp, err := svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if resp.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", resp.Status)
	}

	if len(emitter.events) != 1 || emitter.events[0].EventType != enums.EventOrderStatusChanged {
		t.Fatalf("expected status change event, got %+v", emitter.events)
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	repo := newFakeOrderRepo()
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending}
	repo.orders[order.ID] = order
	svc := newTestService(t, repo, newFakeCarts(), &fakeEmitter{})

	_, err := svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusDelivered)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT for pending to delivered, got %v", err)
	}
}

func TestUpdateStatusRejectsTerminalOrders(t *testing.T) {
	repo := newFakeOrderRepo()
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusDelivered}
	repo.orders[order.ID] = order
	svc := newTestService(t, repo, newFakeCarts(), &fakeEmitter{})

	_, err := svc.UpdateStatus(context.Background(), order.ID, enums.OrderStatusCancelled)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT for delivered to cancelled, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.orders[uuid.New()] = &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending}
	confirmed := uuid.New()
	repo.orders[confirmed] = &models.Order{ID: confirmed, Status: enums.OrderStatusConfirmed}
	svc := newTestService(t, repo, newFakeCarts(), &fakeEmitter{})

	status := enums.OrderStatusConfirmed
	rows, err := svc.List(context.Background(), ListFilter{Status: &status})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != enums.OrderStatusConfirmed {
		t.Fatalf("unexpected filtered rows: %+v", rows)
	}
}
