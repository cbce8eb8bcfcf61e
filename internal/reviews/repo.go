package reviews

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// Repository persists reviews and computes rating aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, review *models.Review) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error)
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	GigStats(ctx context.Context, gigID uuid.UUID) (RatingStats, error)
	SellerStats(ctx context.Context, sellerID uuid.UUID) (RatingStats, error)
	UpdateReply(ctx context.Context, id uuid.UUID, reply string, at time.Time) error
	ListByGig(ctx context.Context, gigID uuid.UUID, limit int) ([]models.Review, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Review, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reviews repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == uuid.Nil {
		review.ID = uuid.New()
	}
	now := time.Now().UTC()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

func (r *repository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) GigStats(ctx context.Context, gigID uuid.UUID) (RatingStats, error) {
	return r.stats(ctx, "gig_id", gigID)
}

func (r *repository) SellerStats(ctx context.Context, sellerID uuid.UUID) (RatingStats, error) {
	return r.stats(ctx, "seller_id", sellerID)
}

func (r *repository) stats(ctx context.Context, column string, id uuid.UUID) (RatingStats, error) {
	var stats RatingStats
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(SUM(rating), 0) AS total, COUNT(*) AS count").
		Where(column+" = ?", id).
		Scan(&stats).Error
	return stats, err
}

func (r *repository) UpdateReply(ctx context.Context, id uuid.UUID, reply string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"seller_reply":    reply,
			"seller_reply_at": at,
			"updated_at":      at,
		}).Error
}

func (r *repository) ListByGig(ctx context.Context, gigID uuid.UUID, limit int) ([]models.Review, error) {
	return r.list(ctx, "gig_id", gigID, limit)
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.Review, error) {
	return r.list(ctx, "seller_id", sellerID, limit)
}

func (r *repository) list(ctx context.Context, column string, id uuid.UUID, limit int) ([]models.Review, error) {
	rows := []models.Review{}
	err := r.db.WithContext(ctx).
		Where(column+" = ?", id).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
