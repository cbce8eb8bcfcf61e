package orders

import (
	"context"
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
	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
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
	gigs     *gigs.Repository
	ledger   ledger.Service
	outbox   *outbox.Repository
	notifier *recordingNotifier
}

func newHarness(t *testing.T, allowSelfPurchase bool) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	notifier := &recordingNotifier{}
	repo := NewRepository(conn)
	gigRepo := gigs.NewRepository(conn)

	svc, err := NewService(ServiceParams{
		Repo:              repo,
		Gigs:              gigRepo,
		TransactionRunner: client,
		Ledger:            ledgerSvc,
		Outbox:            outbox.NewService(outboxRepo, nil),
		Notifier:          notifier,
		Logger:            testLogger(),
		AllowSelfPurchase: allowSelfPurchase,
	})
	require.NoError(t, err)

	return &harness{
		db:       conn,
		svc:      svc,
		repo:     repo,
		gigs:     gigRepo,
		ledger:   ledgerSvc,
		outbox:   outboxRepo,
		notifier: notifier,
	}
}

func (h *harness) seedGig(t *testing.T, sellerID uuid.UUID, price string) *models.Gig {
	t.Helper()
	gig := &models.Gig{SellerID: sellerID, Title: "Logo design", BasePrice: decimal.RequireFromString(price)}
	require.NoError(t, h.gigs.Create(context.Background(), gig))
	return gig
}

// seedOrder creates an order through the service and forces it into status.
func (h *harness) seedOrder(t *testing.T, status enums.OrderStatus) *models.Order {
	t.Helper()
	gig := h.seedGig(t, uuid.New(), "100")
	order, err := h.svc.Create(context.Background(), CreateInput{GigID: gig.ID, BuyerID: uuid.New()})
	require.NoError(t, err)
	if status != order.Status {
		require.NoError(t, h.db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", status).Error)
		order.Status = status
	}
	return order
}
