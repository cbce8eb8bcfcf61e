package payments

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/ledger"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type fakeProvider struct {
	mu          sync.Mutex
	approvals   []string
	completions []string
	approveErr  error
	completeErr error
}

func (f *fakeProvider) Name() enums.PaymentProvider { return enums.PaymentProviderPi }

func (f *fakeProvider) Approve(ctx context.Context, externalPaymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, externalPaymentID)
	return f.approveErr
}

func (f *fakeProvider) Complete(ctx context.Context, externalPaymentID, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, externalPaymentID+":"+transactionID)
	return f.completeErr
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.approvals), len(f.completions)
}

func providerDown() error {
	return pkgerrors.Wrap(pkgerrors.CodeExternalProvider, errors.New("connection refused"), "pi request failed")
}

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []notifications.NotifyInput
}

func (r *recordingNotifier) Notify(ctx context.Context, input notifications.NotifyInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, input)
}

func (r *recordingNotifier) sent() []notifications.NotifyInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.NotifyInput, len(r.inputs))
	copy(out, r.inputs)
	return out
}

type harness struct {
	db       *gorm.DB
	svc      Service
	repo     Repository
	orders   orders.Repository
	gigs     *gigs.Repository
	ledger   ledger.Service
	outbox   *outbox.Repository
	provider *fakeProvider
	notifier *recordingNotifier
	tx       txRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	h := &harness{
		db:       conn,
		repo:     NewRepository(conn),
		orders:   orders.NewRepository(conn),
		gigs:     gigs.NewRepository(conn),
		ledger:   ledgerSvc,
		outbox:   outboxRepo,
		provider: &fakeProvider{},
		notifier: &recordingNotifier{},
		tx:       client,
	}
	h.svc = h.serviceWith(t, h.orders)
	return h
}

// serviceWith builds a service over the harness state that reads orders
// through repo.
func (h *harness) serviceWith(t *testing.T, repo orders.Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:              h.repo,
		Orders:            repo,
		Gigs:              h.gigs,
		Provider:          h.provider,
		TransactionRunner: h.tx,
		Ledger:            h.ledger,
		Outbox:            outbox.NewService(h.outbox, nil),
		Notifier:          h.notifier,
		Logger:            testLogger(),
	})
	require.NoError(t, err)
	return svc
}

func (h *harness) seedOrder(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	ctx := context.Background()
	gig := &models.Gig{SellerID: uuid.New(), Title: "Landing page", BasePrice: decimal.RequireFromString("3.1415926")}
	require.NoError(t, h.gigs.Create(ctx, gig))

	order := &models.Order{
		BuyerID:      uuid.New(),
		SellerID:     gig.SellerID,
		GigID:        gig.ID,
		Amount:       gig.BasePrice,
		Status:       status,
		Requirements: "Waiting for requirements...",
	}
	require.NoError(t, h.orders.Create(ctx, order))
	return order
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := h.orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) countPayments(t *testing.T, orderID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Payment{}).Where("order_id = ?", orderID).Count(&n).Error)
	return n
}

func (h *harness) ledgerTypes(t *testing.T, orderID uuid.UUID) []enums.LedgerEventType {
	t.Helper()
	events, err := h.ledger.ListByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	out := make([]enums.LedgerEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func (h *harness) outboxTypes(t *testing.T, orderID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	rows, err := h.outbox.ListByAggregate(h.db, orderID)
	require.NoError(t, err)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.EventType)
	}
	return out
}
