package gigs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

// Repository exposes gig reads and the cached rating write.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a gigs repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a gig. Listing management lives outside this service; Create
// exists for seeding.
func (r *Repository) Create(ctx context.Context, gig *models.Gig) error {
	if gig.ID == uuid.Nil {
		gig.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(gig).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error) {
	var gig models.Gig
	if err := r.db.WithContext(ctx).First(&gig, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gig, nil
}

// UpdateRating overwrites the cached gig aggregate.
func (r *Repository) UpdateRating(ctx context.Context, gigID uuid.UUID, avg float64, count int) error {
	return r.db.WithContext(ctx).
		Model(&models.Gig{}).
		Where("id = ?", gigID).
		UpdateColumns(map[string]any{
			"rating_avg":   avg,
			"rating_count": count,
			"updated_at":   time.Now().UTC(),
		}).Error
}
