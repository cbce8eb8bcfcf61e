package users

import (
	"context"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateSellerRating overwrites the cached seller aggregate.
func (r *Repository) UpdateSellerRating(ctx context.Context, sellerID uuid.UUID, avg float64, count int) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", sellerID).
		UpdateColumns(map[string]any{
			"seller_rating_avg":   avg,
			"seller_review_count": count,
			"updated_at":          time.Now().UTC(),
		}).Error
}
