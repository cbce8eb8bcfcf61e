package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Payment reconciles one order with the external provider. One row per order.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	Provider          enums.PaymentProvider `gorm:"column:provider;not null" json:"provider"`
	ExternalPaymentID string                `gorm:"column:external_payment_id;not null" json:"external_payment_id"`
	TransactionID     *string               `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(20,7);not null" json:"amount"`
	Status            enums.PaymentStatus   `gorm:"column:status;type:payment_status;not null" json:"status"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
