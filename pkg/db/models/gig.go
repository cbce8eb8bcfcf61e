package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gig is a seller's listed service offering.
type Gig struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID    uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Title       string          `gorm:"column:title;not null"`
	BasePrice   decimal.Decimal `gorm:"column:base_price;type:numeric(20,7);not null"`
	RatingAvg   float64         `gorm:"column:rating_avg;not null;default:0"`
	RatingCount int             `gorm:"column:rating_count;not null;default:0"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
