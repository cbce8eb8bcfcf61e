package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to a recipient.
type Notification struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RecipientID uuid.UUID              `gorm:"type:uuid;not null" json:"recipient_id"`
	ActorID     *uuid.UUID             `gorm:"type:uuid" json:"actor_id,omitempty"`
	Type        enums.NotificationType `gorm:"type:notification_type;not null" json:"type"`
	Title       string                 `gorm:"type:text;not null" json:"title"`
	Content     *string                `gorm:"type:text" json:"content,omitempty"`
	EntityID    *uuid.UUID             `gorm:"type:uuid" json:"entity_id,omitempty"`
	EntityType  *string                `gorm:"type:text" json:"entity_type,omitempty"`
	Metadata    json.RawMessage        `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReadAt      *time.Time             `gorm:"type:timestamptz" json:"read_at,omitempty"`
	CreatedAt   time.Time              `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}
