package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/almarky/almarky-backend/pkg/db"
	"github.com/almarky/almarky-backend/pkg/enums"
	"github.com/almarky/almarky-backend/pkg/errors"
	"github.com/almarky/almarky-backend/pkg/logger"
	"github.com/almarky/almarky-backend/pkg/metrics"
	"github.com/almarky/almarky-backend/pkg/outbox"
	"github.com/almarky/almarky-backend/pkg/outbox/payloads"
)

// Sync stage strings surfaced to the admin dashboard while a save is running.
const (
	StageOptimizingMedia = "optimizing media assets"
	StageCommitting      = "committing to global inventory"
	StageRefreshing      = "refreshing local cache"
	MsgDeploySuccess     = "deployment successful"
)

// catalogAggregateID is the fixed aggregate for catalog commit events; the
// catalog is a single document, not a per-row aggregate.
var catalogAggregateID = uuid.MustParse("a1a27c0d-0000-4000-8000-000000000001")

// SyncStatus is the last-known state of the commit pipeline.
type SyncStatus struct {
	State     string    `json:"state"` // idle | syncing | success | failed
	Message   string    `json:"message"`
	Version   string    `json:"version,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Uploader pushes raw image payloads to the media CDN and returns public URLs.
type Uploader interface {
	Upload(ctx context.Context, data string) (string, error)
}

// SaveProductParams carries an add-or-update request from the admin dashboard.
// ImageData holds raw payloads (data URLs) that still need to be uploaded;
// Product.Images holds URLs that are already hosted.
type SaveProductParams struct {
	Product   Product
	ImageData []string
	Actor     *outbox.ActorRef
}

type Service interface {
	List(ctx context.Context) []Product
	Get(ctx context.Context, id string) (Product, error)
	Save(ctx context.Context, params SaveProductParams) (Product, error)
	ToggleStock(ctx context.Context, id string, actor *outbox.ActorRef) (Product, error)
	Delete(ctx context.Context, id string) error
	SyncStatus() SyncStatus
}

type service struct {
	store    VersionedStore
	cache    *SnapshotCache
	uploader Uploader
	db       *dbpkg.Client
	events   *outbox.Service
	metrics  *metrics.StorefrontMetrics
	logg     *logger.Logger

	mu   sync.RWMutex
	last SyncStatus
}

func NewService(
	store VersionedStore,
	cache *SnapshotCache,
	uploader Uploader,
	dbClient *dbpkg.Client,
	events *outbox.Service,
	m *metrics.StorefrontMetrics,
	logg *logger.Logger,
) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("versioned store is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		store:    store,
		cache:    cache,
		uploader: uploader,
		db:       dbClient,
		events:   events,
		metrics:  m,
		logg:     logg,
		last:     SyncStatus{State: "idle", UpdatedAt: time.Now()},
	}, nil
}

// List resolves the catalog from the remote store, falling back to the cached
// snapshot and finally the bundled seed. It never fails; storefront reads
// always get some catalog.
func (s *service) List(ctx context.Context) []Product {
	products, version, err := s.store.Read(ctx)
	if err == nil {
		if s.cache != nil {
			if cacheErr := s.cache.Save(ctx, products); cacheErr != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", cacheErr.Error()), "catalog snapshot refresh failed")
			}
		}
		s.logg.Debug(s.logg.WithField(ctx, "catalog_version", version), "catalog read from remote")
		return products
	}

	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "remote catalog unreachable, using fallback")

	if s.cache != nil {
		cached, ok, cacheErr := s.cache.Load(ctx)
		if cacheErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", cacheErr.Error()), "catalog snapshot load failed")
		} else if ok {
			return cached
		}
	}
	return SeedProducts()
}

func (s *service) Get(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, errors.New(errors.CodeValidation, "product id is required")
	}
	products := s.List(ctx)
	if product := FindProduct(products, id); product != nil {
		return *product, nil
	}
	return Product{}, errors.New(errors.CodeNotFound, "product not found")
}

// Save uploads any pending media, recomputes derived pricing, and commits the
// updated document with compare-and-swap. A stale version fails the save; the
// admin retries from a fresh read.
func (s *service) Save(ctx context.Context, params SaveProductParams) (Product, error) {
	product := params.Product
	start := time.Now()

	if len(params.ImageData) > 0 {
		s.setStatus("syncing", StageOptimizingMedia, "")
		if s.uploader == nil {
			return Product{}, s.failSync("save", errors.New(errors.CodeDependency, "asset optimization failed"))
		}
		for _, data := range params.ImageData {
			url, err := s.uploader.Upload(ctx, data)
			if err != nil {
				return Product{}, s.failSync("save", errors.Wrap(errors.CodeDependency, err, "asset optimization failed"))
			}
			product.Images = append(product.Images, url)
		}
	}

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	product.Normalize()
	if err := product.Validate(); err != nil {
		return Product{}, s.failSync("save", err)
	}

	s.setStatus("syncing", StageCommitting, "")
	products, version, err := s.store.Read(ctx)
	if err != nil {
		return Product{}, s.failSync("save", errors.Wrap(errors.CodeDependency, err, "reading catalog before commit"))
	}

	replaced := false
	for i := range products {
		if products[i].ID == product.ID {
			products[i] = product
			replaced = true
			break
		}
	}
	if !replaced {
		// New products go to the front so the storefront shows them first.
		products = append([]Product{product}, products...)
	}

	message := fmt.Sprintf("catalog: save product %s", product.ID)
	newVersion, err := s.store.WriteIfVersion(ctx, products, version, message)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return Product{}, s.failSync("save", errors.Wrap(errors.CodeConflict, err, "catalog changed since last read").
				WithDetails(map[string]any{"stale_version": version}))
		}
		return Product{}, s.failSync("save", errors.Wrap(errors.CodeDependency, err, "committing catalog"))
	}

	s.finishCommit(ctx, "save", newVersion, len(products), message, params.Actor, start)
	return product, nil
}

// ToggleStock flips availability for one product and commits the document.
func (s *service) ToggleStock(ctx context.Context, id string, actor *outbox.ActorRef) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, errors.New(errors.CodeValidation, "product id is required")
	}
	start := time.Now()

	s.setStatus("syncing", StageCommitting, "")
	products, version, err := s.store.Read(ctx)
	if err != nil {
		return Product{}, s.failSync("toggle_stock", errors.Wrap(errors.CodeDependency, err, "reading catalog before commit"))
	}

	var toggled *Product
	for i := range products {
		if products[i].ID == id {
			products[i].InStock = !products[i].InStock
			toggled = &products[i]
			break
		}
	}
	if toggled == nil {
		s.setStatus("idle", "", "")
		return Product{}, errors.New(errors.CodeNotFound, "product not found")
	}

	message := fmt.Sprintf("catalog: toggle stock %s", id)
	newVersion, err := s.store.WriteIfVersion(ctx, products, version, message)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return Product{}, s.failSync("toggle_stock", errors.Wrap(errors.CodeConflict, err, "catalog changed since last read"))
		}
		return Product{}, s.failSync("toggle_stock", errors.Wrap(errors.CodeDependency, err, "committing catalog"))
	}

	s.finishCommit(ctx, "toggle_stock", newVersion, len(products), message, actor, start)
	return *toggled, nil
}

// Delete removes the product and commits the shrunken document.
func (s *service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New(errors.CodeValidation, "product id is required")
	}
	start := time.Now()

	s.setStatus("syncing", StageCommitting, "")
	products, version, err := s.store.Read(ctx)
	if err != nil {
		return s.failSync("delete", errors.Wrap(errors.CodeDependency, err, "reading catalog before commit"))
	}

	remaining := make([]Product, 0, len(products))
	for _, p := range products {
		if p.ID != id {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == len(products) {
		s.setStatus("idle", "", "")
		return errors.New(errors.CodeNotFound, "product not found")
	}

	message := fmt.Sprintf("catalog: delete product %s", id)
	newVersion, err := s.store.WriteIfVersion(ctx, remaining, version, message)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return s.failSync("delete", errors.Wrap(errors.CodeConflict, err, "catalog changed since last read"))
		}
		return s.failSync("delete", errors.Wrap(errors.CodeDependency, err, "committing catalog"))
	}

	s.finishCommit(ctx, "delete", newVersion, len(remaining), message, nil, start)
	return nil
}

func (s *service) SyncStatus() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *service) finishCommit(ctx context.Context, operation, version string, count int, message string, actor *outbox.ActorRef, start time.Time) {
	s.setStatus("syncing", StageRefreshing, version)
	if s.cache != nil {
		products, _, err := s.store.Read(ctx)
		if err == nil {
			if cacheErr := s.cache.Save(ctx, products); cacheErr != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", cacheErr.Error()), "catalog snapshot refresh failed")
			}
		}
	}

	s.emitCommitted(ctx, version, count, message, actor)

	s.setStatus("success", MsgDeploySuccess, version)
	s.metrics.ObserveSyncDuration(operation, time.Since(start))
	s.metrics.IncSyncSuccess(operation)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"catalog_version": version,
		"product_count":   count,
	}), "catalog committed")
}

func (s *service) failSync(operation string, err error) error {
	s.setStatus("failed", fmt.Sprintf("deployment failed: %s", errors.PublicMessage(err)), "")
	s.metrics.IncSyncFailure(operation, string(errors.CodeOf(err)))
	return err
}

func (s *service) setStatus(state, message, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = SyncStatus{State: state, Message: message, Version: version, UpdatedAt: time.Now()}
}

// emitCommitted records the commit in the outbox so downstream consumers (the
// sheet log, analytics) hear about catalog changes. Best effort; a failed emit
// never fails the save.
func (s *service) emitCommitted(ctx context.Context, version string, count int, message string, actor *outbox.ActorRef) {
	if s.db == nil || s.events == nil {
		return
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCatalogCommitted,
			AggregateType: enums.AggregateCatalog,
			AggregateID:   catalogAggregateID,
			Actor:         actor,
			Version:       1,
			Data: payloads.CatalogCommittedEvent{
				Version:      version,
				ProductCount: count,
				Message:      message,
				CommittedAt:  time.Now(),
			},
		})
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "catalog commit event not recorded")
	}
}
