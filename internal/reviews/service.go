package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/internal/gigs"
	"github.com/angelmondragon/gigmarket-backend/internal/notifications"
	"github.com/angelmondragon/gigmarket-backend/internal/orders"
	"github.com/angelmondragon/gigmarket-backend/internal/users"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox"
)

const (
	// ListLimit caps the gig and seller review listings.
	ListLimit = 50

	minRating      = 1
	maxRating      = 5
	maxReplyLength = 5000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the review and rating operations.
type Service interface {
	SubmitReview(ctx context.Context, input SubmitInput) (*models.Review, error)
	AddSellerReply(ctx context.Context, input ReplyInput) (*models.Review, error)
	ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Review, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Review, error)
}

type SubmitInput struct {
	OrderID uuid.UUID
	BuyerID uuid.UUID
	Rating  int
	Comment *string
}

type ReplyInput struct {
	ReviewID uuid.UUID
	SellerID uuid.UUID
	Reply    string
}

// ServiceParams wires the reviews service.
type ServiceParams struct {
	Repo              Repository
	Orders            orders.Repository
	Gigs              *gigs.Repository
	Users             *users.Repository
	TransactionRunner txRunner
	Outbox            outbox.Emitter
	Notifier          notifications.Notifier
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	repo     Repository
	orders   orders.Repository
	gigs     *gigs.Repository
	users    *users.Repository
	tx       txRunner
	outbox   outbox.Emitter
	notifier notifications.Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gigs == nil {
		return nil, fmt.Errorf("gigs repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
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
		repo:     params.Repo,
		orders:   params.Orders,
		gigs:     params.Gigs,
		users:    params.Users,
		tx:       params.TransactionRunner,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// SubmitReview records the buyer's rating of a completed order and refreshes
// the cached gig and seller aggregates in the same transaction.
func (s *service) SubmitReview(ctx context.Context, input SubmitInput) (*models.Review, error) {
	if input.OrderID == uuid.Nil || input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and buyer id are required")
	}

	order, err := s.orders.FindForBuyerInStatus(ctx, input.OrderID, input.BuyerID, enums.OrderStatusCompleted)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeReviewNotAllowed, "order not found, not completed, or access denied")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if input.Rating < minRating || input.Rating > maxRating {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRating, "rating must be between 1 and 5").
			WithDetails(map[string]any{"rating": input.Rating})
	}

	exists, err := s.repo.ExistsForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing review")
	}
	if exists {
		return nil, alreadyReviewed()
	}

	review := &models.Review{
		OrderID:  order.ID,
		GigID:    order.GigID,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
		Rating:   input.Rating,
		Comment:  normalizeComment(input.Comment),
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"gig_id":    order.GigID.String(),
		"seller_id": order.SellerID.String(),
		"rating":    input.Rating,
	})

	var gigTitle string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		gigRepo := s.gigs.WithTx(tx)

		gig, err := gigRepo.FindByID(ctx, order.GigID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gig")
		}
		gigTitle = gig.Title

		if err := repo.Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, "") {
				return alreadyReviewed()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
		}

		gigStats, err := repo.GigStats(ctx, order.GigID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate gig rating")
		}
		sellerStats, err := repo.SellerStats(ctx, order.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate seller rating")
		}

		if int64(gig.RatingCount)+1 == gigStats.Count {
			expected := IncrementalMean(gig.RatingAvg, gig.RatingCount, input.Rating)
			if drifted(expected, gigStats.Average()) {
				s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
					"cached_avg":     expected,
					"recomputed_avg": gigStats.Average(),
				}), "gig rating cache drifted")
			}
		}

		if err := gigRepo.UpdateRating(ctx, order.GigID, gigStats.Average(), int(gigStats.Count)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update gig rating")
		}
		if err := s.users.WithTx(tx).UpdateSellerRating(ctx, order.SellerID, sellerStats.Average(), int(sellerStats.Count)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update seller rating")
		}

		buyer := order.BuyerID
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReviewSubmitted,
			AggregateType: enums.AggregateReview,
			AggregateID:   review.ID,
			Actor:         &outbox.ActorRef{UserID: &buyer, Role: string(orders.RoleBuyer)},
			Data: outbox.ReviewSubmittedEvent{
				ReviewID:          review.ID,
				OrderID:           order.ID,
				GigID:             order.GigID,
				SellerID:          order.SellerID,
				Rating:            review.Rating,
				GigRatingAvg:      gigStats.Average(),
				GigRatingCount:    int(gigStats.Count),
				SellerRatingAvg:   sellerStats.Average(),
				SellerReviewCount: int(sellerStats.Count),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue review submitted event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(logCtx, "review_id", review.ID.String()), "review submitted")

	buyer := order.BuyerID
	s.notifier.Notify(ctx, notifications.NotifyInput{
		RecipientID: order.SellerID,
		Type:        enums.NotificationTypeReviewReceived,
		Title:       "New review",
		Content:     fmt.Sprintf("You received a %d-star review for %q.", review.Rating, gigTitle),
		ActorID:     &buyer,
		EntityID:    &review.ID,
		EntityType:  enums.NotificationEntityReview,
		Metadata:    map[string]any{"rating": review.Rating, "order_id": order.ID.String()},
	})
	return review, nil
}

// AddSellerReply sets or replaces the seller's public reply on a review.
func (s *service) AddSellerReply(ctx context.Context, input ReplyInput) (*models.Review, error) {
	if input.ReviewID == uuid.Nil || input.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review id and seller id are required")
	}
	reply := strings.TrimSpace(input.Reply)
	if reply == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reply is required")
	}
	if len(reply) > maxReplyLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reply is too long")
	}

	review, err := s.repo.FindByID(ctx, input.ReviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "review not found or access denied")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review")
	}
	if review.SellerID != input.SellerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "review not found or access denied")
	}

	at := s.now().UTC()
	if err := s.repo.UpdateReply(ctx, review.ID, reply, at); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save reply")
	}
	review.SellerReply = &reply
	review.SellerReplyAt = &at
	review.UpdatedAt = at

	seller := input.SellerID
	s.notifier.Notify(ctx, notifications.NotifyInput{
		RecipientID: review.BuyerID,
		Type:        enums.NotificationTypeReviewReply,
		Title:       "The seller replied to your review",
		Content:     reply,
		ActorID:     &seller,
		EntityID:    &review.ID,
		EntityType:  enums.NotificationEntityReview,
	})
	return review, nil
}

func (s *service) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Review, error) {
	if gigID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gig id is required")
	}
	rows, err := s.repo.ListByGig(ctx, gigID, ListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gig reviews")
	}
	return rows, nil
}

func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Review, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	rows, err := s.repo.ListBySeller(ctx, sellerID, ListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller reviews")
	}
	return rows, nil
}

func alreadyReviewed() error {
	return pkgerrors.New(pkgerrors.CodeReviewAlreadyExists, "review already exists for this order")
}

func normalizeComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*comment)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
