package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/ledger"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
	"github.com/angelmondragon/gigmarket-backend/pkg/pagination"
)

// RequirementsPlaceholder is stored when the buyer has not described the work yet.
const RequirementsPlaceholder = "Waiting for requirements..."

const maxRequirementsLength = 10000

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gigReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

type ledgerRecorder interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// Service defines order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Get(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, params ListParams) (*ListResult, error)
	RequestTransition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	UpdateRequirements(ctx context.Context, input RequirementsInput) (*models.Order, error)
	ExpireAbandoned(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// ServiceParams wires the orders service.
type ServiceParams struct {
	Repo              Repository
	Gigs              gigReader
	TransactionRunner txRunner
	Ledger            ledgerRecorder
	Outbox            outbox.Emitter
	Notifier          notifications.Notifier
	Logger            *logger.Logger
	Metrics           *metrics.OrderTransitionMetrics
	AllowSelfPurchase bool
	Now               func() time.Time
}

type service struct {
	repo              Repository
	gigs              gigReader
	tx                txRunner
	ledger            ledgerRecorder
	outbox            outbox.Emitter
	notifier          notifications.Notifier
	logg              *logger.Logger
	metrics           *metrics.OrderTransitionMetrics
	allowSelfPurchase bool
	now               func() time.Time
}

// CreateInput carries a buyer's purchase of a gig.
type CreateInput struct {
	GigID        uuid.UUID
	BuyerID      uuid.UUID
	Requirements string
}

// ListParams configures the participant order list.
type ListParams struct {
	UserID uuid.UUID
	Role   Role
	Status *enums.OrderStatus
	Limit  int
	Cursor string
}

// ListResult wraps a page of orders and the cursor for the next one.
type ListResult struct {
	Items  []models.Order `json:"items"`
	Cursor string         `json:"cursor"`
}

// TransitionInput is a user-requested status change.
type TransitionInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Target  enums.OrderStatus
}

// CancelInput is a buyer cancellation.
type CancelInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
	Reason  string
}

// RequirementsInput replaces the order's requirements text.
type RequirementsInput struct {
	OrderID      uuid.UUID
	ActorID      uuid.UUID
	Requirements string
}

// NewService builds an orders service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gigs == nil {
		return nil, fmt.Errorf("gigs repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:              params.Repo,
		gigs:              params.Gigs,
		tx:                params.TransactionRunner,
		ledger:            params.Ledger,
		outbox:            params.Outbox,
		notifier:          params.Notifier,
		logg:              params.Logger,
		metrics:           params.Metrics,
		allowSelfPurchase: params.AllowSelfPurchase,
		now:               now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.GigID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gig id required")
	}
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	gig, err := s.gigs.FindByID(ctx, input.GigID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gig")
	}
	if gig.SellerID == input.BuyerID && !s.allowSelfPurchase {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot purchase your own gig")
	}

	requirements := strings.TrimSpace(input.Requirements)
	if requirements == "" {
		requirements = RequirementsPlaceholder
	}
	if len(requirements) > maxRequirementsLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requirements too long")
	}

	order := &models.Order{
		BuyerID:      input.BuyerID,
		SellerID:     gig.SellerID,
		GigID:        gig.ID,
		Amount:       gig.BasePrice,
		Status:       enums.OrderStatusCreated,
		Requirements: requirements,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "gig_id", gig.ID.String()), "order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if !order.IsParticipant(actorID) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	role := params.Role
	if role == "" {
		role = RoleAny
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	query := listOrdersParams{
		UserID: params.UserID,
		Role:   role,
		Status: params.Status,
		Limit:  pagination.NormalizeLimit(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListForUser(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	if rows == nil {
		rows = []models.Order{}
	}
	result := &ListResult{Items: rows}
	if next != nil {
		result.Cursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) RequestTransition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	from := order.Status
	if err := checkTransition(order, input.ActorID, input.Target); err != nil {
		s.metrics.Observe(string(from), string(input.Target), metrics.OutcomeRejected)
		return nil, err
	}

	applied, err := s.repo.UpdateStatusIf(ctx, order.ID, from, input.Target)
	if err != nil {
		s.metrics.Observe(string(from), string(input.Target), metrics.OutcomeFailed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !applied {
		s.metrics.Observe(string(from), string(input.Target), metrics.OutcomeRejected)
		return nil, invalidTransition(from, input.Target)
	}
	s.metrics.Observe(string(from), string(input.Target), metrics.OutcomeApplied)

	order.Status = input.Target
	order.UpdatedAt = s.now().UTC()

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"from":     from,
		"to":       input.Target,
		"actor_id": input.ActorID.String(),
	})
	s.logg.Info(logCtx, "order status changed")
	return order, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := strings.TrimSpace(input.Reason)

	var (
		cancelled *models.Order
		from      enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if !order.IsParticipant(input.BuyerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this order")
		}
		if order.BuyerID != input.BuyerID {
			return pkgerrors.New(pkgerrors.CodeForbiddenRole, "only the buyer can cancel an order")
		}
		from = order.Status
		if from.IsTerminal() {
			return invalidTransition(from, enums.OrderStatusCancelled)
		}

		applied, err := repo.UpdateStatusIf(ctx, order.ID, from, enums.OrderStatusCancelled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !applied {
			return invalidTransition(from, enums.OrderStatusCancelled)
		}

		metadata := map[string]any{"previous_status": string(from)}
		if reason != "" {
			metadata["reason"] = reason
		}
		actor := input.BuyerID
		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:     order.ID,
			ActorUserID: &actor,
			Type:        enums.LedgerEventOrderCancelled,
			Amount:      order.Amount,
			Metadata:    metadata,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation")
		}

		now := s.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: &actor, Role: string(RoleBuyer)},
			OccurredAt:    now,
			Data: outbox.OrderCancelledEvent{
				OrderID:        order.ID,
				BuyerID:        order.BuyerID,
				SellerID:       order.SellerID,
				PreviousStatus: string(from),
				Reason:         reason,
				CancelledAt:    now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cancellation event")
		}

		order.Status = enums.OrderStatusCancelled
		order.UpdatedAt = now
		cancelled = order
		return nil
	})
	if err != nil {
		outcome := metrics.OutcomeRejected
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			outcome = metrics.OutcomeFailed
		}
		s.metrics.Observe(string(from), string(enums.OrderStatusCancelled), outcome)
		return nil, err
	}
	s.metrics.Observe(string(from), string(enums.OrderStatusCancelled), metrics.OutcomeApplied)

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, cancelled.ID.String()), map[string]any{
		"from":     from,
		"buyer_id": input.BuyerID.String(),
	})
	s.logg.Info(logCtx, "order cancelled")

	content := "The buyer cancelled this order."
	if reason != "" {
		content = fmt.Sprintf("The buyer cancelled this order: %s", reason)
	}
	buyer := input.BuyerID
	s.notifier.Notify(ctx, notifications.NotifyInput{
		RecipientID: cancelled.SellerID,
		Type:        enums.NotificationTypeOrderCancelled,
		Title:       "Order cancelled",
		Content:     content,
		ActorID:     &buyer,
		EntityID:    &cancelled.ID,
		EntityType:  enums.NotificationEntityOrder,
		Metadata:    map[string]any{"previous_status": string(from)},
	})
	return cancelled, nil
}

func (s *service) UpdateRequirements(ctx context.Context, input RequirementsInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	requirements := strings.TrimSpace(input.Requirements)
	if requirements == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requirements required")
	}
	if len(requirements) > maxRequirementsLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requirements too long")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, mapLoadError(err)
	}
	if !order.IsParticipant(input.ActorID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this order")
	}
	if err := s.repo.UpdateRequirements(ctx, order.ID, requirements); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update requirements")
	}
	order.Requirements = requirements
	order.UpdatedAt = s.now().UTC()
	return order, nil
}

// ExpireAbandoned cancels an unpaid order on behalf of the system. It reports
// false when the order already moved on.
func (s *service) ExpireAbandoned(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var (
		expired *models.Order
		from    enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return mapLoadError(err)
		}
		from = order.Status
		if from != enums.OrderStatusCreated && from != enums.OrderStatusAwaitingPayment {
			return nil
		}
		applied, err := repo.UpdateStatusIf(ctx, order.ID, from, enums.OrderStatusCancelled)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire order")
		}
		if !applied {
			return nil
		}

		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID:  order.ID,
			Type:     enums.LedgerEventOrderExpired,
			Amount:   order.Amount,
			Metadata: map[string]any{"previous_status": string(from)},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record expiry")
		}

		now := s.now().UTC()
		event := outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: "system"},
			OccurredAt:    now,
			Data: outbox.OrderExpiredEvent{
				OrderID:        order.ID,
				BuyerID:        order.BuyerID,
				SellerID:       order.SellerID,
				PreviousStatus: string(from),
				ExpiredAt:      now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue expiry event")
		}
		order.Status = enums.OrderStatusCancelled
		expired = order
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired == nil {
		return false, nil
	}
	s.metrics.Observe(string(from), string(enums.OrderStatusCancelled), metrics.OutcomeApplied)

	s.notifier.Notify(ctx, notifications.NotifyInput{
		RecipientID: expired.BuyerID,
		Type:        enums.NotificationTypeOrderCancelled,
		Title:       "Order expired",
		Content:     "This order was cancelled because payment was never completed.",
		EntityID:    &expired.ID,
		EntityType:  enums.NotificationEntityOrder,
	})
	return true, nil
}

func checkTransition(order *models.Order, actorID uuid.UUID, target enums.OrderStatus) error {
	if !order.IsParticipant(actorID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this order")
	}
	if !mayRequest(order, actorID, target) {
		return pkgerrors.New(pkgerrors.CodeForbiddenRole, fmt.Sprintf("your role cannot move an order to %s", target))
	}
	if !CanTransition(order.Status, target) {
		return invalidTransition(order.Status, target)
	}
	return nil
}

func invalidTransition(current, requested enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot move order from %s to %s", current, requested)).
		WithDetails(map[string]any{
			"current":   string(current),
			"requested": string(requested),
		})
}

func mapLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

// StatusNotification addresses a status change to the participant who did
// not make it.
func StatusNotification(order *models.Order, actorID uuid.UUID) notifications.NotifyInput {
	recipient := order.BuyerID
	if actorID == order.BuyerID {
		recipient = order.SellerID
	}
	actor := actorID
	return notifications.NotifyInput{
		RecipientID: recipient,
		Type:        enums.NotificationTypeOrderStatus,
		Title:       fmt.Sprintf("Order %s", humanStatus(order.Status)),
		Content:     fmt.Sprintf("Order for %s is now %s.", order.Amount.String(), humanStatus(order.Status)),
		ActorID:     &actor,
		EntityID:    &order.ID,
		EntityType:  enums.NotificationEntityOrder,
		Metadata:    map[string]any{"status": string(order.Status)},
	}
}

func humanStatus(status enums.OrderStatus) string {
	return strings.ToLower(strings.ReplaceAll(string(status), "_", " "))
}
