package payments

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
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

const (
	phaseApprove  = "approve"
	phaseComplete = "complete"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gigReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Gig, error)
}

type ledgerRecorder interface {
	RecordEvent(ctx context.Context, tx *gorm.DB, input ledger.RecordLedgerEventInput) (*models.LedgerEvent, error)
}

// Service reconciles provider callbacks with local order and payment state.
type Service interface {
	OnApprovalRequested(ctx context.Context, event ApprovalEvent) error
	OnCompletionConfirmed(ctx context.Context, event CompletionEvent) error
	GetForOrder(ctx context.Context, orderID, actorID uuid.UUID) (*models.Payment, error)
}

// ServiceParams wires the payments service.
type ServiceParams struct {
	Repo              Repository
	Orders            orders.Repository
	Gigs              gigReader
	Provider          Provider
	TransactionRunner txRunner
	Ledger            ledgerRecorder
	Outbox            outbox.Emitter
	Notifier          notifications.Notifier
	Logger            *logger.Logger
	Metrics           *metrics.PaymentCallbackMetrics
}

type service struct {
	repo     Repository
	orders   orders.Repository
	gigs     gigReader
	provider Provider
	tx       txRunner
	ledger   ledgerRecorder
	outbox   outbox.Emitter
	notifier notifications.Notifier
	logg     *logger.Logger
	metrics  *metrics.PaymentCallbackMetrics
}

// NewService builds a payments service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gigs == nil {
		return nil, fmt.Errorf("gigs repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
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
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		gigs:     params.Gigs,
		provider: params.Provider,
		tx:       params.TransactionRunner,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) OnApprovalRequested(ctx context.Context, event ApprovalEvent) error {
	externalID := strings.TrimSpace(event.ExternalPaymentID)
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if event.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
		"phase":               phaseApprove,
		"provider":            s.provider.Name(),
		"external_payment_id": externalID,
	})

	order, payment, err := s.loadState(ctx, event.OrderID, event.ActorID)
	if err != nil {
		s.metrics.IncCallback(phaseApprove, outcomeFor(err))
		return err
	}

	switch decideApproval(order, payment, externalID) {
	case decisionReplay:
		s.metrics.IncCallback(phaseApprove, metrics.OutcomeReplay)
		s.logg.Info(s.logg.WithField(logCtx, "order_status", order.Status), "approval callback replayed")
		return nil
	case decisionStale:
		s.metrics.IncCallback(phaseApprove, metrics.OutcomeRejected)
		s.logg.Warn(s.logg.WithField(logCtx, "order_status", order.Status), "stale approval callback")
		return staleCallback(order.Status, phaseApprove)
	}

	if err := s.callProvider(ctx, phaseApprove, func(ctx context.Context) error {
		return s.provider.Approve(ctx, externalID)
	}); err != nil {
		s.metrics.IncCallback(phaseApprove, metrics.OutcomeFailed)
		return err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		current, err := orderRepo.FindByID(ctx, order.ID)
		if err != nil {
			return mapOrderLoadError(err)
		}
		if current.Status != enums.OrderStatusCreated && current.Status != enums.OrderStatusAwaitingPayment {
			return staleCallback(current.Status, phaseApprove)
		}

		// The check-and-set also runs for AWAITING_PAYMENT so a completion
		// committed after the read above turns this approval stale.
		applied, err := orderRepo.UpdateStatusIf(ctx, current.ID, current.Status, enums.OrderStatusAwaitingPayment)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order awaiting payment")
		}
		if !applied {
			return staleCallback(current.Status, phaseApprove)
		}

		stored, err := s.repo.WithTx(tx).Upsert(ctx, &models.Payment{
			OrderID:           current.ID,
			Provider:          s.provider.Name(),
			ExternalPaymentID: externalID,
			Amount:            current.Amount,
			Status:            enums.PaymentStatusAuthorized,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert payment")
		}
		if stored.Status == enums.PaymentStatusCompleted {
			return staleCallback(current.Status, phaseApprove)
		}

		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID: current.ID,
			Type:    enums.LedgerEventPaymentAuthorized,
			Amount:  current.Amount,
			Metadata: map[string]any{
				"provider":            string(s.provider.Name()),
				"external_payment_id": externalID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record authorization")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncCallback(phaseApprove, outcomeFor(err))
		if pkgerrors.IsCode(err, pkgerrors.CodeStaleCallback) {
			s.logg.Warn(logCtx, "order moved while approving payment")
		}
		return err
	}

	s.metrics.IncCallback(phaseApprove, metrics.OutcomeApplied)
	s.logg.Info(logCtx, "payment authorized")
	return nil
}

func (s *service) OnCompletionConfirmed(ctx context.Context, event CompletionEvent) error {
	externalID := strings.TrimSpace(event.ExternalPaymentID)
	txid := strings.TrimSpace(event.TransactionID)
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if txid == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if event.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
		"phase":               phaseComplete,
		"provider":            s.provider.Name(),
		"external_payment_id": externalID,
		"txid":                txid,
	})

	order, payment, err := s.loadState(ctx, event.OrderID, event.ActorID)
	if err != nil {
		s.metrics.IncCallback(phaseComplete, outcomeFor(err))
		return err
	}

	switch decideCompletion(order, payment, txid) {
	case decisionReplay:
		s.metrics.IncCallback(phaseComplete, metrics.OutcomeReplay)
		s.logg.Info(s.logg.WithField(logCtx, "order_status", order.Status), "completion callback replayed")
		return nil
	case decisionStale:
		s.metrics.IncCallback(phaseComplete, metrics.OutcomeRejected)
		s.logg.Warn(s.logg.WithField(logCtx, "order_status", order.Status), "stale completion callback")
		return staleCallback(order.Status, phaseComplete)
	}
	if order.Status == enums.OrderStatusCreated {
		s.logg.Warn(logCtx, "completion arrived before approval")
	}

	if err := s.callProvider(ctx, phaseComplete, func(ctx context.Context) error {
		return s.provider.Complete(ctx, externalID, txid)
	}); err != nil {
		s.metrics.IncCallback(phaseComplete, metrics.OutcomeFailed)
		return err
	}

	var (
		paid     *models.Order
		replayed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		paymentRepo := s.repo.WithTx(tx)

		current, err := orderRepo.FindByID(ctx, order.ID)
		if err != nil {
			return mapOrderLoadError(err)
		}
		stored, err := paymentRepo.FindByOrderID(ctx, current.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		switch decideCompletion(current, stored, txid) {
		case decisionReplay:
			replayed = true
			return nil
		case decisionStale:
			return staleCallback(current.Status, phaseComplete)
		}

		applied, err := orderRepo.UpdateStatusIf(ctx, current.ID, current.Status, enums.OrderStatusPaid)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !applied {
			return staleCallback(current.Status, phaseComplete)
		}

		if _, err := paymentRepo.Upsert(ctx, &models.Payment{
			OrderID:           current.ID,
			Provider:          s.provider.Name(),
			ExternalPaymentID: externalID,
			TransactionID:     &txid,
			Amount:            current.Amount,
			Status:            enums.PaymentStatusCompleted,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert payment")
		}

		if _, err := s.ledger.RecordEvent(ctx, tx, ledger.RecordLedgerEventInput{
			OrderID: current.ID,
			Type:    enums.LedgerEventPaymentCompleted,
			Amount:  current.Amount,
			Metadata: map[string]any{
				"provider":            string(s.provider.Name()),
				"external_payment_id": externalID,
				"txid":                txid,
				"previous_status":     string(current.Status),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record completion")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         &outbox.ActorRef{Role: "system"},
			Data: outbox.OrderPaidEvent{
				OrderID:           current.ID,
				BuyerID:           current.BuyerID,
				SellerID:          current.SellerID,
				GigID:             current.GigID,
				Amount:            current.Amount,
				Provider:          string(s.provider.Name()),
				ExternalPaymentID: externalID,
				TransactionID:     txid,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order paid event")
		}

		current.Status = enums.OrderStatusPaid
		paid = current
		return nil
	})
	if err != nil {
		s.metrics.IncCallback(phaseComplete, outcomeFor(err))
		if pkgerrors.IsCode(err, pkgerrors.CodeStaleCallback) {
			s.logg.Warn(logCtx, "order moved while completing payment")
		}
		return err
	}
	if replayed {
		s.metrics.IncCallback(phaseComplete, metrics.OutcomeReplay)
		s.logg.Info(logCtx, "completion callback replayed")
		return nil
	}

	s.metrics.IncCallback(phaseComplete, metrics.OutcomeApplied)
	s.logg.Info(logCtx, "payment completed")
	s.notifyPaid(ctx, paid)
	return nil
}

func (s *service) GetForOrder(ctx context.Context, orderID, actorID uuid.UUID) (*models.Payment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, mapOrderLoadError(err)
	}
	if !order.IsParticipant(actorID) {
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

// loadState reads the order and its payment. Only the buyer may relay
// callbacks for an order.
func (s *service) loadState(ctx context.Context, orderID, actorID uuid.UUID) (*models.Order, *models.Payment, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, mapOrderLoadError(err)
	}
	if order.BuyerID != actorID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can relay payment callbacks")
	}
	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order, nil, nil
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return order, payment, nil
}

func (s *service) callProvider(ctx context.Context, phase string, call func(ctx context.Context) error) error {
	start := time.Now()
	err := call(ctx)
	s.metrics.ObserveProvider(string(s.provider.Name()), phase, time.Since(start))
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeExternalProvider {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeExternalProvider, err, fmt.Sprintf("payment provider %s failed", phase))
}

func (s *service) notifyPaid(ctx context.Context, order *models.Order) {
	title := "your gig"
	gig, err := s.gigs.FindByID(ctx, order.GigID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "gig lookup for payment notification failed")
	} else {
		title = gig.Title
	}
	amount := order.Amount.String()
	metadata := map[string]any{"amount": amount, "gig_title": title}

	s.notifier.Notify(ctx, notifications.NotifyInput{
		RecipientID: order.BuyerID,
		Type:        enums.NotificationTypePaymentCompleted,
		Title:       "Payment confirmed",
		Content:     fmt.Sprintf("You paid %s for %q.", amount, title),
		EntityID:    &order.ID,
		EntityType:  enums.NotificationEntityOrder,
		Metadata:    metadata,
	})
	buyer := order.BuyerID
	s.notifier.Notify(ctx, notifications.NotifyInput{
		RecipientID: order.SellerID,
		Type:        enums.NotificationTypePaymentCompleted,
		Title:       "New paid order",
		Content:     fmt.Sprintf("%q was purchased for %s.", title, amount),
		ActorID:     &buyer,
		EntityID:    &order.ID,
		EntityType:  enums.NotificationEntityOrder,
		Metadata:    metadata,
	})
}

func mapOrderLoadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func staleCallback(status enums.OrderStatus, phase string) error {
	return pkgerrors.New(pkgerrors.CodeStaleCallback, fmt.Sprintf("%s callback does not apply to a %s order", phase, status)).
		WithDetails(map[string]any{"current": string(status), "phase": phase})
}

func outcomeFor(err error) string {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.IsCode(err, pkgerrors.CodeExternalProvider) {
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeRejected
}
