package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

func TestCreate_SnapshotsGigPrice(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	gig := h.seedGig(t, uuid.New(), "12.5000001")
	buyer := uuid.New()

	order, err := h.svc.Create(ctx, CreateInput{GigID: gig.ID, BuyerID: buyer})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCreated, order.Status)
	assert.Equal(t, RequirementsPlaceholder, order.Requirements)
	assert.Equal(t, gig.SellerID, order.SellerID)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("12.5000001")))

	// later price edits must not touch the order
	require.NoError(t, h.db.Model(&models.Gig{}).Where("id = ?", gig.ID).Update("base_price", decimal.NewFromInt(99)).Error)
	loaded, err := h.svc.Get(ctx, order.ID, buyer)
	require.NoError(t, err)
	assert.True(t, loaded.Amount.Equal(decimal.RequireFromString("12.5000001")))
}

func TestCreate_SelfPurchaseGuard(t *testing.T) {
	seller := uuid.New()

	h := newHarness(t, false)
	gig := h.seedGig(t, seller, "10")
	_, err := h.svc.Create(context.Background(), CreateInput{GigID: gig.ID, BuyerID: seller})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	allowed := newHarness(t, true)
	gig = allowed.seedGig(t, seller, "10")
	order, err := allowed.svc.Create(context.Background(), CreateInput{GigID: gig.ID, BuyerID: seller, Requirements: "a logo"})
	require.NoError(t, err)
	assert.Equal(t, "a logo", order.Requirements)
}

func TestCreate_UnknownGig(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.svc.Create(context.Background(), CreateInput{GigID: uuid.New(), BuyerID: uuid.New()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGet_HidesOrderFromOutsiders(t *testing.T) {
	h := newHarness(t, false)
	order := h.seedOrder(t, enums.OrderStatusCreated)

	_, err := h.svc.Get(context.Background(), order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))

	got, err := h.svc.Get(context.Background(), order.ID, order.SellerID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestListForUser_PaginatesByRole(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	gig := h.seedGig(t, seller, "3")

	base := time.Now().UTC().Add(-time.Hour)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		order := &models.Order{
			BuyerID:      buyer,
			SellerID:     seller,
			GigID:        gig.ID,
			Amount:       gig.BasePrice,
			Requirements: RequirementsPlaceholder,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, h.repo.Create(ctx, order))
		ids = append(ids, order.ID)
	}
	// unrelated order
	h.seedOrder(t, enums.OrderStatusCreated)

	page, err := h.svc.ListForUser(ctx, ListParams{UserID: buyer, Role: RoleBuyer, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)
	require.NotEmpty(t, page.Cursor)

	rest, err := h.svc.ListForUser(ctx, ListParams{UserID: buyer, Role: RoleBuyer, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, ids[0], rest.Items[0].ID)
	assert.Empty(t, rest.Cursor)

	asBuyerOnSellerSide, err := h.svc.ListForUser(ctx, ListParams{UserID: buyer, Role: RoleSeller})
	require.NoError(t, err)
	assert.Empty(t, asBuyerOnSellerSide.Items)

	created := enums.OrderStatusCreated
	bySeller, err := h.svc.ListForUser(ctx, ListParams{UserID: seller, Status: &created})
	require.NoError(t, err)
	assert.Len(t, bySeller.Items, 3)

	_, err = h.svc.ListForUser(ctx, ListParams{UserID: buyer, Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestScenario_IllegalCreatedToDelivered(t *testing.T) {
	h := newHarness(t, false)
	order := h.seedOrder(t, enums.OrderStatusCreated)

	_, err := h.svc.RequestTransition(context.Background(), TransitionInput{OrderID: order.ID, ActorID: order.SellerID, Target: enums.OrderStatusDelivered})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	_, err = h.svc.RequestTransition(context.Background(), TransitionInput{OrderID: order.ID, ActorID: order.BuyerID, Target: enums.OrderStatusDelivered})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbiddenRole))

	loaded, err := h.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCreated, loaded.Status)
}

func TestScenario_CancelFromCompleted(t *testing.T) {
	h := newHarness(t, false)
	order := h.seedOrder(t, enums.OrderStatusCompleted)

	_, err := h.svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, BuyerID: order.BuyerID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	loaded, err := h.repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, loaded.Status)

	events, err := h.ledger.ListByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCancel_WritesLedgerAndOutboxAtomically(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	order := h.seedOrder(t, enums.OrderStatusPaid)

	cancelled, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, BuyerID: order.BuyerID, Reason: "found someone else"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	events, err := h.ledger.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.LedgerEventOrderCancelled, events[0].Type)
	assert.Equal(t, order.BuyerID, *events[0].ActorUserID)

	rows, err := h.outbox.ListByAggregate(nil, order.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderCancelled, rows[0].EventType)

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, order.SellerID, sent[0].RecipientID)
	assert.Equal(t, enums.NotificationTypeOrderCancelled, sent[0].Type)
}

func TestUpdateRequirements(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	order := h.seedOrder(t, enums.OrderStatusDelivered)

	updated, err := h.svc.UpdateRequirements(ctx, RequirementsInput{OrderID: order.ID, ActorID: order.SellerID, Requirements: " need the SVG too "})
	require.NoError(t, err)
	assert.Equal(t, "need the SVG too", updated.Requirements)

	_, err = h.svc.UpdateRequirements(ctx, RequirementsInput{OrderID: order.ID, ActorID: uuid.New(), Requirements: "x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.UpdateRequirements(ctx, RequirementsInput{OrderID: order.ID, ActorID: order.BuyerID, Requirements: "   "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	loaded, err := h.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "need the SVG too", loaded.Requirements)
	assert.Equal(t, enums.OrderStatusDelivered, loaded.Status)
}

func TestExpireAbandoned(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	unpaid := h.seedOrder(t, enums.OrderStatusAwaitingPayment)
	paid := h.seedOrder(t, enums.OrderStatusPaid)

	expired, err := h.svc.ExpireAbandoned(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	loaded, err := h.repo.FindByID(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, loaded.Status)

	events, err := h.ledger.ListByOrderID(ctx, unpaid.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.LedgerEventOrderExpired, events[0].Type)
	assert.Nil(t, events[0].ActorUserID)

	rows, err := h.outbox.ListByAggregate(nil, unpaid.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventOrderExpired, rows[0].EventType)

	again, err := h.svc.ExpireAbandoned(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.False(t, again)

	skipped, err := h.svc.ExpireAbandoned(ctx, paid.ID)
	require.NoError(t, err)
	assert.False(t, skipped)
}

func TestRepository_FindAbandonedBefore(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	gig := h.seedGig(t, uuid.New(), "1")

	old := time.Now().UTC().Add(-100 * time.Hour)
	statuses := []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaid}
	for _, status := range statuses {
		require.NoError(t, h.repo.Create(ctx, &models.Order{
			BuyerID:      uuid.New(),
			SellerID:     gig.SellerID,
			GigID:        gig.ID,
			Amount:       gig.BasePrice,
			Status:       status,
			Requirements: RequirementsPlaceholder,
			CreatedAt:    old,
		}))
	}
	h.seedOrder(t, enums.OrderStatusCreated)

	rows, err := h.repo.FindAbandonedBefore(ctx, time.Now().UTC().Add(-72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Contains(t, []enums.OrderStatus{enums.OrderStatusCreated, enums.OrderStatusAwaitingPayment}, row.Status)
	}
}
