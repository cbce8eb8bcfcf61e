package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForBuyerInStatus(ctx context.Context, id, buyerID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	ListForUser(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error)
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next enums.OrderStatus) (bool, error)
	UpdateRequirements(ctx context.Context, id uuid.UUID, requirements string) error
	FindAbandonedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type listOrdersParams struct {
	UserID uuid.UUID
	Role   Role
	Status *enums.OrderStatus
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = enums.OrderStatusCreated
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForBuyerInStatus(ctx context.Context, id, buyerID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ? AND buyer_id = ? AND status = ?", id, buyerID, status).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListForUser(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	switch params.Role {
	case RoleBuyer:
		query = query.Where("buyer_id = ?", params.UserID)
	case RoleSeller:
		query = query.Where("seller_id = ?", params.UserID)
	default:
		query = query.Where("(buyer_id = ? OR seller_id = ?)", params.UserID, params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var rows []models.Order
	if err := pagination.Keyset(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(o models.Order) (time.Time, uuid.UUID) {
		return o.CreatedAt, o.ID
	})
	return page, next, nil
}

// UpdateStatusIf is the per-order guard: the write lands only while the row
// still holds the expected status.
func (r *repository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, next enums.OrderStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, expected).
		UpdateColumns(map[string]any{
			"status":     next,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateRequirements(ctx context.Context, id uuid.UUID, requirements string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"requirements": requirements,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// FindAbandonedBefore returns unpaid orders created before the cutoff, oldest first.
func (r *repository) FindAbandonedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	query := r.db.WithContext(ctx).
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusAwaitingPayment}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
