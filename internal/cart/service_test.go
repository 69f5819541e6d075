package cart

import (
	"context"
	"io"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/almarky/almarky-backend/internal/catalog"
	"github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/outbox"
)

type fakeCartStore struct {
	data map[string]string
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{data: map[string]string{}}
}

func (f *fakeCartStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	return nil
}

func (f *fakeCartStore) Get(ctx context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redislib.Nil
}

func (f *fakeCartStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeCartStore) CartKey(sessionID string) string { return "alm:cart:" + sessionID }

type stubCatalog struct {
	products []catalog.Product
}

func (s *stubCatalog) List(ctx context.Context) []catalog.Product { return s.products }

func (s *stubCatalog) Get(ctx context.Context, id string) (catalog.Product, error) {
	if p := catalog.FindProduct(s.products, id); p != nil {
		return *p, nil
	}
	return catalog.Product{}, errors.New(errors.CodeNotFound, "product not found")
}

func (s *stubCatalog) Save(ctx context.Context, params catalog.SaveProductParams) (catalog.Product, error) {
	return catalog.Product{}, nil
}

func (s *stubCatalog) Delete(ctx context.Context, id string) error { return nil }

func (s *stubCatalog) ToggleStock(ctx context.Context, id string, actor *outbox.ActorRef) (catalog.Product, error) {
	return catalog.Product{}, nil
}

func (s *stubCatalog) SyncStatus() catalog.SyncStatus { return catalog.SyncStatus{} }

func strPtr(v string) *string { return &v }

func testService(t *testing.T) (Service, *fakeCartStore) {
	t.Helper()
	store := newFakeCartStore()
	cat := &stubCatalog{products: []catalog.Product{
		{
			ID:             "lamp",
			Name:           "Aurora Lamp",
			Price:          3600,
			OriginalPrice:  4500,
			InStock:        true,
			Colors:         []string{"#d4af37", "#c0c0c0"},
			DeliveryCharge: 150,
		},
		{
			ID:             "fan",
			Name:           "Breeze Fan",
			Price:          5100,
			OriginalPrice:  6000,
			InStock:        false,
			DeliveryCharge: 200,
		},
	}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc := &service{
		store:   store,
		keyer:   store,
		catalog: cat,
		logg:    logg,
		ttl:     time.Hour,
	}
	return svc, store
}

func TestAddMergesSameProductAndColor(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	cart, err := svc.Add(ctx, "sess-1", "lamp", 1, strPtr("#d4af37"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err = svc.Add(ctx, "sess-1", "lamp", 2, strPtr("#d4af37"))
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(cart.Items))
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", cart.Items[0].Quantity)
	}
}

func TestAddDifferentColorIsDistinctLine(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "sess-1", "lamp", 1, strPtr("#d4af37")); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.Add(ctx, "sess-1", "lamp", 1, strPtr("#c0c0c0"))
	if err != nil {
		t.Fatalf("add second color: %v", err)
	}

	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 distinct lines, got %d", len(cart.Items))
	}
}

func TestTotalsIncludePerUnitDelivery(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	cart, err := svc.Add(ctx, "sess-1", "lamp", 1, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if cart.Totals.SubtotalRupees != 3600 {
		t.Fatalf("expected subtotal 3600, got %d", cart.Totals.SubtotalRupees)
	}
	if cart.Totals.DeliveryRupees != 150 {
		t.Fatalf("expected delivery 150, got %d", cart.Totals.DeliveryRupees)
	}
	if cart.Totals.TotalRupees != 3750 {
		t.Fatalf("expected total 3750, got %d", cart.Totals.TotalRupees)
	}
}

func TestComputeTotalsScalesWithQuantity(t *testing.T) {
	totals := ComputeTotals([]Item{
		{ProductID: "a", PriceRupees: 1000, DeliveryRupees: 100, Quantity: 2},
		{ProductID: "b", PriceRupees: 500, DeliveryRupees: 50, Quantity: 3},
	})
	if totals.SubtotalRupees != 3500 {
		t.Fatalf("expected subtotal 3500, got %d", totals.SubtotalRupees)
	}
	if totals.DeliveryRupees != 350 {
		t.Fatalf("expected delivery 350, got %d", totals.DeliveryRupees)
	}
	if totals.TotalRupees != 3850 {
		t.Fatalf("expected total 3850, got %d", totals.TotalRupees)
	}
	if totals.ItemCount != 5 {
		t.Fatalf("expected item count 5, got %d", totals.ItemCount)
	}
}

func TestAddRejectsOutOfStockAndUnknownColor(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess-1", "fan", 1, nil)
	if errors.CodeOf(err) != errors.CodeStateConflict {
		t.Fatalf("expected STATE_CONFLICT for out of stock, got %v", err)
	}

	_, err = svc.Add(ctx, "sess-1", "lamp", 1, strPtr("#ff0000"))
	if errors.CodeOf(err) != errors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR for unknown color, got %v", err)
	}
}

func TestUpdateQuantityZeroRemovesLine(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "sess-1", "lamp", 2, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.UpdateQuantity(ctx, "sess-1", "lamp", nil, 0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Items))
	}

	_, err = svc.UpdateQuantity(ctx, "sess-1", "lamp", nil, 1)
	if errors.CodeOf(err) != errors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND for missing line, got %v", err)
	}
}

func TestClearDeletesCartDocument(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	if _, err := svc.Add(ctx, "sess-1", "lamp", 1, nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.Clear(ctx, "sess-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := store.data[store.CartKey("sess-1")]; ok {
		t.Fatal("expected cart key removed")
	}

	cart, err := svc.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatal("expected empty cart after clear")
	}
}
