// Package ledger keeps the money trail of every order: authorizations,
// completions, cancellations and expiries, each written in the transaction of
// the state change it records.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type Service interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

// RecordLedgerEventInput describes one entry. ActorUserID is nil for system
// writes such as provider callbacks and the expiry job.
type RecordLedgerEventInput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	ActorUserID *uuid.UUID            `json:"actor_user_id,omitempty"`
	Type        enums.LedgerEventType `json:"type"`
	Amount      decimal.Decimal       `json:"amount"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
}

func (in RecordLedgerEventInput) validate() error {
	switch {
	case in.OrderID == uuid.Nil:
		return errOrderRequired
	case in.ActorUserID != nil && *in.ActorUserID == uuid.Nil:
		return errors.New("actor user id must not be empty")
	case !in.Type.IsValid():
		return fmt.Errorf("invalid ledger event type %q", in.Type)
	case in.Amount.IsNegative():
		return fmt.Errorf("ledger amount %s is negative", in.Amount)
	}
	return nil
}

var errOrderRequired = errors.New("order id is required")

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// RecordEvent appends an entry through tx when given, otherwise through the
// repository's own connection.
func (s *service) RecordEvent(ctx context.Context, tx *gorm.DB, input RecordLedgerEventInput) (*models.LedgerEvent, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	event := &models.LedgerEvent{
		OrderID:     input.OrderID,
		ActorUserID: input.ActorUserID,
		Type:        input.Type,
		Amount:      input.Amount,
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode ledger metadata: %w", err)
		}
		event.Metadata = raw
	}

	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEvent, error) {
	if orderID == uuid.Nil {
		return nil, errOrderRequired
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

// HasEvent lets jobs check whether an order already carries an entry before
// writing a follow-up.
func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, errOrderRequired
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	return s.repo.Exists(ctx, orderID, eventType)
}
