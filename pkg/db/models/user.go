package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a marketplace participant. Seller rating columns are cached aggregates
// maintained by the review aggregator.
type User struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username          string    `gorm:"column:username;not null;uniqueIndex"`
	DisplayName       *string   `gorm:"column:display_name"`
	SellerRatingAvg   float64   `gorm:"column:seller_rating_avg;not null;default:0"`
	SellerReviewCount int       `gorm:"column:seller_review_count;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
