package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderPaidEvent is emitted when the provider confirms completion.
type OrderPaidEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	BuyerID           uuid.UUID       `json:"buyer_id"`
	SellerID          uuid.UUID       `json:"seller_id"`
	GigID             uuid.UUID       `json:"gig_id"`
	Amount            decimal.Decimal `json:"amount"`
	Provider          string          `json:"provider"`
	ExternalPaymentID string          `json:"external_payment_id"`
	TransactionID     string          `json:"transaction_id"`
}

// OrderCancelledEvent is emitted when a buyer cancels an order.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	PreviousStatus string    `json:"previous_status"`
	Reason         string    `json:"reason,omitempty"`
	CancelledAt    time.Time `json:"cancelled_at"`
}

// OrderExpiredEvent is emitted when an unpaid order is cancelled by the expiry job.
type OrderExpiredEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	PreviousStatus string    `json:"previous_status"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// ReviewSubmittedEvent carries the refreshed aggregates after a review lands.
type ReviewSubmittedEvent struct {
	ReviewID          uuid.UUID `json:"review_id"`
	OrderID           uuid.UUID `json:"order_id"`
	GigID             uuid.UUID `json:"gig_id"`
	SellerID          uuid.UUID `json:"seller_id"`
	Rating            int       `json:"rating"`
	GigRatingAvg      float64   `json:"gig_rating_avg"`
	GigRatingCount    int       `json:"gig_rating_count"`
	SellerRatingAvg   float64   `json:"seller_rating_avg"`
	SellerReviewCount int       `json:"seller_review_count"`
}
