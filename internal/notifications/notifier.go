package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// NotifyInput describes one in-app notification.
type NotifyInput struct {
	RecipientID uuid.UUID
	Type        enums.NotificationType
	Title       string
	Content     string
	ActorID     *uuid.UUID
	EntityID    *uuid.UUID
	EntityType  enums.NotificationEntity
	Metadata    map[string]any
}

// Notifier is the fire-and-forget sink used after domain transactions commit.
// Failures are logged and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, input NotifyInput)
}

type notifier struct {
	repo Repository
	logg *logger.Logger
}

// NewNotifier persists notifications through the repository.
func NewNotifier(repo Repository, logg *logger.Logger) (Notifier, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &notifier{repo: repo, logg: logg}, nil
}

func (n *notifier) Notify(ctx context.Context, input NotifyInput) {
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"recipient_id":      input.RecipientID.String(),
		"notification_type": input.Type,
	})

	notification, err := buildNotification(input)
	if err != nil {
		n.logg.Warn(n.logg.WithField(logCtx, "error", err.Error()), "notification dropped")
		return
	}
	if err := n.repo.Create(ctx, notification); err != nil {
		n.logg.Error(logCtx, "notification write failed", err)
		return
	}
}

func buildNotification(input NotifyInput) (*models.Notification, error) {
	if input.RecipientID == uuid.Nil {
		return nil, fmt.Errorf("recipient id required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", input.Type)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title required")
	}

	notification := &models.Notification{
		RecipientID: input.RecipientID,
		ActorID:     input.ActorID,
		Type:        input.Type,
		Title:       title,
		EntityID:    input.EntityID,
	}
	if content := strings.TrimSpace(input.Content); content != "" {
		notification.Content = &content
	}
	if input.EntityType != "" {
		entityType := string(input.EntityType)
		notification.EntityType = &entityType
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		notification.Metadata = raw
	}
	return notification, nil
}
