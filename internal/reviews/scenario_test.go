package reviews

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/internal/ledger"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/payments"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

type okProvider struct{}

func (okProvider) Name() enums.PaymentProvider { return enums.PaymentProviderPi }

func (okProvider) Approve(ctx context.Context, externalPaymentID string) error { return nil }

func (okProvider) Complete(ctx context.Context, externalPaymentID, transactionID string) error {
	return nil
}

func TestScenario_PurchaseToReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(h.db))
	require.NoError(t, err)
	emitter := outbox.NewService(h.outbox, nil)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:              h.orders,
		Gigs:              h.gigs,
		TransactionRunner: h.client,
		Ledger:            ledgerSvc,
		Outbox:            emitter,
		Notifier:          h.notifier,
		Logger:            testLogger(),
	})
	require.NoError(t, err)
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:              payments.NewRepository(h.db),
		Orders:            h.orders,
		Gigs:              h.gigs,
		Provider:          okProvider{},
		TransactionRunner: h.client,
		Ledger:            ledgerSvc,
		Outbox:            emitter,
		Notifier:          h.notifier,
		Logger:            testLogger(),
	})
	require.NoError(t, err)

	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)
	buyer := h.seedSeller(t)

	order, err := orderSvc.Create(ctx, orders.CreateInput{GigID: gig.ID, BuyerID: buyer.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCreated, order.Status)
	assert.Equal(t, orders.RequirementsPlaceholder, order.Requirements)

	_, err = orderSvc.UpdateRequirements(ctx, orders.RequirementsInput{OrderID: order.ID, ActorID: buyer.ID, Requirements: "Blue palette, 10 slides"})
	require.NoError(t, err)

	require.NoError(t, paymentSvc.OnApprovalRequested(ctx, payments.ApprovalEvent{ExternalPaymentID: "pi_1", OrderID: order.ID, ActorID: buyer.ID}))
	require.NoError(t, paymentSvc.OnCompletionConfirmed(ctx, payments.CompletionEvent{ExternalPaymentID: "pi_1", TransactionID: "tx_1", OrderID: order.ID, ActorID: buyer.ID}))

	_, err = h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: buyer.ID, Rating: 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReviewNotAllowed))

	steps := []struct {
		actor  string
		target enums.OrderStatus
	}{
		{"seller", enums.OrderStatusInProgress},
		{"seller", enums.OrderStatusDelivered},
		{"buyer", enums.OrderStatusCompleted},
	}
	for _, step := range steps {
		actor := seller.ID
		if step.actor == "buyer" {
			actor = buyer.ID
		}
		updated, err := orderSvc.RequestTransition(ctx, orders.TransitionInput{OrderID: order.ID, ActorID: actor, Target: step.target})
		require.NoError(t, err, "transition to %s", step.target)
		assert.Equal(t, step.target, updated.Status)
	}

	_, err = orderSvc.Cancel(ctx, orders.CancelInput{OrderID: order.ID, BuyerID: buyer.ID, Reason: "changed my mind"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	review, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: buyer.ID, Rating: 5, Comment: strPtr("Fast and clean")})
	require.NoError(t, err)
	_, err = h.svc.AddSellerReply(ctx, ReplyInput{ReviewID: review.ID, SellerID: seller.ID, Reply: "Thank you"})
	require.NoError(t, err)

	loadedGig, err := h.gigs.FindByID(ctx, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loadedGig.RatingCount)
	assert.InDelta(t, 5.0, loadedGig.RatingAvg, 1e-9)

	loadedSeller, err := h.users.FindByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loadedSeller.SellerReviewCount)

	events, err := ledgerSvc.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	types := make([]enums.LedgerEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []enums.LedgerEventType{enums.LedgerEventPaymentAuthorized, enums.LedgerEventPaymentCompleted}, types)

	orderEvents, err := h.outbox.ListByAggregate(h.db, order.ID)
	require.NoError(t, err)
	require.Len(t, orderEvents, 1)
	assert.Equal(t, enums.EventOrderPaid, orderEvents[0].EventType)

	byType := map[enums.NotificationType]int{}
	for _, n := range h.notifier.sent() {
		byType[n.Type]++
	}
	assert.Equal(t, 2, byType[enums.NotificationTypePaymentCompleted])
	assert.Equal(t, 3, byType[enums.NotificationTypeOrderStatus])
	assert.Equal(t, 1, byType[enums.NotificationTypeReviewReceived])
	assert.Equal(t, 1, byType[enums.NotificationTypeReviewReply])
}
