package reviews

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
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
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
	client   *db.Client
	db       *gorm.DB
	svc      Service
	repo     Repository
	orders   orders.Repository
	gigs     *gigs.Repository
	users    *users.Repository
	outbox   *outbox.Repository
	notifier *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client, conn := dbtest.OpenClient(t)

	h := &harness{
		client:   client,
		db:       conn,
		repo:     NewRepository(conn),
		orders:   orders.NewRepository(conn),
		gigs:     gigs.NewRepository(conn),
		users:    users.NewRepository(conn),
		outbox:   outbox.NewRepository(conn),
		notifier: &recordingNotifier{},
	}
	svc, err := NewService(ServiceParams{
		Repo:              h.repo,
		Orders:            h.orders,
		Gigs:              h.gigs,
		Users:             h.users,
		TransactionRunner: client,
		Outbox:            outbox.NewService(h.outbox, nil),
		Notifier:          h.notifier,
		Logger:            testLogger(),
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seedSeller(t *testing.T) *models.User {
	t.Helper()
	seller := &models.User{Username: "seller_" + uuid.NewString()[:8]}
	require.NoError(t, h.users.Create(context.Background(), seller))
	return seller
}

func (h *harness) seedGig(t *testing.T, sellerID uuid.UUID) *models.Gig {
	t.Helper()
	gig := &models.Gig{SellerID: sellerID, Title: "Pitch deck", BasePrice: decimal.RequireFromString("25")}
	require.NoError(t, h.gigs.Create(context.Background(), gig))
	return gig
}

func (h *harness) seedOrder(t *testing.T, gig *models.Gig, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerID:      uuid.New(),
		SellerID:     gig.SellerID,
		GigID:        gig.ID,
		Amount:       gig.BasePrice,
		Status:       status,
		Requirements: orders.RequirementsPlaceholder,
	}
	require.NoError(t, h.orders.Create(context.Background(), order))
	return order
}

func (h *harness) countReviews(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Review{}).Count(&n).Error)
	return n
}
