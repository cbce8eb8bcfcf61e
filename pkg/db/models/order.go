package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Order is a single buyer/seller/gig purchase. Amount is snapshotted from the gig
// price at creation and never rewritten.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	BuyerID      uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID     uuid.UUID         `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	GigID        uuid.UUID         `gorm:"column:gig_id;type:uuid;not null" json:"gig_id"`
	Amount       decimal.Decimal   `gorm:"column:amount;type:numeric(20,7);not null" json:"amount"`
	Status       enums.OrderStatus `gorm:"column:status;type:order_status;not null" json:"status"`
	Requirements string            `gorm:"column:requirements;not null" json:"requirements"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// IsParticipant reports whether the user is the buyer or the seller.
func (o *Order) IsParticipant(userID uuid.UUID) bool {
	if o == nil || userID == uuid.Nil {
		return false
	}
	return o.BuyerID == userID || o.SellerID == userID
}
