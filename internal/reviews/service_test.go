package reviews

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

func strPtr(s string) *string { return &s }

// existsBlind hides existing reviews from the pre-check.
type existsBlind struct {
	Repository
}

func (existsBlind) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return false, nil
}

func (e existsBlind) WithTx(tx *gorm.DB) Repository {
	return existsBlind{Repository: e.Repository.WithTx(tx)}
}

func TestSubmitReview_UpdatesAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)
	other := h.seedGig(t, seller.ID)

	first := h.seedOrder(t, gig, enums.OrderStatusCompleted)
	second := h.seedOrder(t, gig, enums.OrderStatusCompleted)
	third := h.seedOrder(t, other, enums.OrderStatusCompleted)

	review, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: first.ID, BuyerID: first.BuyerID, Rating: 5, Comment: strPtr("  great work  ")})
	require.NoError(t, err)
	require.NotNil(t, review.Comment)
	assert.Equal(t, "great work", *review.Comment)
	assert.Equal(t, seller.ID, review.SellerID)

	_, err = h.svc.SubmitReview(ctx, SubmitInput{OrderID: second.ID, BuyerID: second.BuyerID, Rating: 2, Comment: strPtr("   ")})
	require.NoError(t, err)
	_, err = h.svc.SubmitReview(ctx, SubmitInput{OrderID: third.ID, BuyerID: third.BuyerID, Rating: 4})
	require.NoError(t, err)

	loadedGig, err := h.gigs.FindByID(ctx, gig.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, loadedGig.RatingAvg, 1e-9)
	assert.Equal(t, 2, loadedGig.RatingCount)

	loadedOther, err := h.gigs.FindByID(ctx, other.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, loadedOther.RatingAvg, 1e-9)
	assert.Equal(t, 1, loadedOther.RatingCount)

	loadedSeller, err := h.users.FindByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.InDelta(t, 11.0/3.0, loadedSeller.SellerRatingAvg, 1e-9)
	assert.Equal(t, 3, loadedSeller.SellerReviewCount)

	list, err := h.svc.ListByGig(ctx, gig.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	comments := 0
	for _, r := range list {
		if r.Comment != nil {
			comments++
		}
	}
	assert.Equal(t, 1, comments)

	events, err := h.outbox.ListByAggregate(h.db, review.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventReviewSubmitted, events[0].EventType)

	sent := h.notifier.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, seller.ID, sent[0].RecipientID)
	assert.Equal(t, enums.NotificationTypeReviewReceived, sent[0].Type)
}

func TestSubmitReview_AggregatesForRandomSequences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)
	rng := rand.New(rand.NewSource(7))

	var total int
	for i := 0; i < 25; i++ {
		rating := 1 + rng.Intn(5)
		total += rating
		order := h.seedOrder(t, gig, enums.OrderStatusCompleted)
		_, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: order.BuyerID, Rating: rating})
		require.NoError(t, err)

		loaded, err := h.gigs.FindByID(ctx, gig.ID)
		require.NoError(t, err)
		require.Equal(t, i+1, loaded.RatingCount)
		require.InDelta(t, float64(total)/float64(i+1), loaded.RatingAvg, 1e-9)
	}
}

func TestSubmitReview_OnlyOncePerOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)
	order := h.seedOrder(t, gig, enums.OrderStatusCompleted)

	_, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: order.BuyerID, Rating: 4})
	require.NoError(t, err)

	_, err = h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: order.BuyerID, Rating: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReviewAlreadyExists))

	assert.Equal(t, int64(1), h.countReviews(t))
	loaded, err := h.gigs.FindByID(ctx, gig.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, loaded.RatingAvg, 1e-9)
	assert.Equal(t, 1, loaded.RatingCount)
	loadedSeller, err := h.users.FindByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loadedSeller.SellerReviewCount)
}

func TestSubmitReview_UniqueIndexRaceMapsToAlreadyExists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)
	order := h.seedOrder(t, gig, enums.OrderStatusCompleted)

	// the competing review lands after the existence check has already passed
	require.NoError(t, h.repo.Create(ctx, &models.Review{OrderID: order.ID, GigID: gig.ID, BuyerID: order.BuyerID, SellerID: seller.ID, Rating: 3}))

	svc := h.svc.(*service)
	svc.repo = existsBlind{Repository: h.repo}

	_, err := svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: order.BuyerID, Rating: 5})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReviewAlreadyExists))

	loaded, err := h.gigs.FindByID(ctx, gig.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.RatingCount)
}

func TestSubmitReview_NotAllowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)

	delivered := h.seedOrder(t, gig, enums.OrderStatusDelivered)
	_, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: delivered.ID, BuyerID: delivered.BuyerID, Rating: 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReviewNotAllowed))

	completed := h.seedOrder(t, gig, enums.OrderStatusCompleted)
	_, err = h.svc.SubmitReview(ctx, SubmitInput{OrderID: completed.ID, BuyerID: seller.ID, Rating: 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReviewNotAllowed))

	_, err = h.svc.SubmitReview(ctx, SubmitInput{OrderID: uuid.New(), BuyerID: completed.BuyerID, Rating: 5})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeReviewNotAllowed))

	assert.Zero(t, h.countReviews(t))
}

func TestSubmitReview_InvalidRating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gig := h.seedGig(t, h.seedSeller(t).ID)
	order := h.seedOrder(t, gig, enums.OrderStatusCompleted)

	for _, rating := range []int{0, 6, -1} {
		_, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: order.BuyerID, Rating: rating})
		assert.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidRating), "rating %d", rating)
	}
	assert.Zero(t, h.countReviews(t))
}

func TestAddSellerReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)
	order := h.seedOrder(t, gig, enums.OrderStatusCompleted)
	review, err := h.svc.SubmitReview(ctx, SubmitInput{OrderID: order.ID, BuyerID: order.BuyerID, Rating: 4})
	require.NoError(t, err)

	svc := h.svc.(*service)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	updated, err := h.svc.AddSellerReply(ctx, ReplyInput{ReviewID: review.ID, SellerID: seller.ID, Reply: "  Thanks!  "})
	require.NoError(t, err)
	assert.Equal(t, "Thanks!", *updated.SellerReply)

	_, err = h.svc.AddSellerReply(ctx, ReplyInput{ReviewID: review.ID, SellerID: seller.ID, Reply: "Thanks again"})
	require.NoError(t, err)

	stored, err := h.repo.FindByID(ctx, review.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SellerReply)
	assert.Equal(t, "Thanks again", *stored.SellerReply)
	require.NotNil(t, stored.SellerReplyAt)
	assert.True(t, stored.SellerReplyAt.Equal(fixed))

	_, err = h.svc.AddSellerReply(ctx, ReplyInput{ReviewID: review.ID, SellerID: order.BuyerID, Reply: "hijack"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.AddSellerReply(ctx, ReplyInput{ReviewID: uuid.New(), SellerID: seller.ID, Reply: "hello"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = h.svc.AddSellerReply(ctx, ReplyInput{ReviewID: review.ID, SellerID: seller.ID, Reply: "   "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	replies := 0
	for _, n := range h.notifier.sent() {
		if n.Type == enums.NotificationTypeReviewReply {
			replies++
			assert.Equal(t, order.BuyerID, n.RecipientID)
		}
	}
	assert.Equal(t, 2, replies)
}

func TestListBySeller_NewestFirstAndCapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller := h.seedSeller(t)
	gig := h.seedGig(t, seller.ID)

	for i := 0; i < ListLimit+3; i++ {
		order := h.seedOrder(t, gig, enums.OrderStatusCompleted)
		row := &models.Review{
			OrderID:   order.ID,
			GigID:     gig.ID,
			BuyerID:   order.BuyerID,
			SellerID:  seller.ID,
			Rating:    3,
			CreatedAt: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		}
		require.NoError(t, h.repo.Create(ctx, row))
	}

	list, err := h.svc.ListBySeller(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, list, ListLimit)
	for i := 1; i < len(list); i++ {
		assert.True(t, list[i-1].CreatedAt.After(list[i].CreatedAt))
	}

	_, err = h.svc.ListBySeller(ctx, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
