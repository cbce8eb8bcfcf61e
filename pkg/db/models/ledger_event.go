package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// LedgerEvent records an immutable lifecycle event tied to an order.
type LedgerEvent struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	ActorUserID *uuid.UUID            `gorm:"column:actor_user_id;type:uuid" json:"actor_user_id,omitempty"`
	Type        enums.LedgerEventType `gorm:"column:type;type:ledger_event_type;not null" json:"type"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(20,7);not null" json:"amount"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
