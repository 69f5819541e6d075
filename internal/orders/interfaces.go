package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/almarky/almarky-backend/pkg/db/models"
	"github.com/almarky/almarky-backend/pkg/enums"
)

// Repository exposes order persistence operations.
type Repository interface {
	CreateTx(tx *gorm.DB, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDAndPhone(ctx context.Context, id uuid.UUID, phone string) (*models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, from, to enums.OrderStatus) (bool, error)
}
