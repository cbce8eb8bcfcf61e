package models

import (
	"time"

	"github.com/google/uuid"
)

// Review is the buyer's rating of a completed order.
type Review struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	GigID         uuid.UUID  `gorm:"column:gig_id;type:uuid;not null" json:"gig_id"`
	BuyerID       uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID      uuid.UUID  `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	Rating        int        `gorm:"column:rating;not null" json:"rating"`
	Comment       *string    `gorm:"column:comment" json:"comment,omitempty"`
	SellerReply   *string    `gorm:"column:seller_reply" json:"seller_reply,omitempty"`
	SellerReplyAt *time.Time `gorm:"column:seller_reply_at" json:"seller_reply_at,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
