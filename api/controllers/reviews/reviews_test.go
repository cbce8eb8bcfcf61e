package reviews

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	internalreviews "github.com/angelmondragon/gigmarket-backend/internal/reviews"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

type stubReviewsService struct {
	submit       func(ctx context.Context, input internalreviews.SubmitInput) (*models.Review, error)
	reply        func(ctx context.Context, input internalreviews.ReplyInput) (*models.Review, error)
	listByGig    func(ctx context.Context, gigID uuid.UUID) ([]models.Review, error)
	listBySeller func(ctx context.Context, sellerID uuid.UUID) ([]models.Review, error)
}

func (s *stubReviewsService) SubmitReview(ctx context.Context, input internalreviews.SubmitInput) (*models.Review, error) {
	return s.submit(ctx, input)
}

func (s *stubReviewsService) AddSellerReply(ctx context.Context, input internalreviews.ReplyInput) (*models.Review, error) {
	return s.reply(ctx, input)
}

func (s *stubReviewsService) ListByGig(ctx context.Context, gigID uuid.UUID) ([]models.Review, error) {
	return s.listByGig(ctx, gigID)
}

func (s *stubReviewsService) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Review, error) {
	return s.listBySeller(ctx, sellerID)
}

func request(method, body string, actorID uuid.UUID, param, value string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(param, value)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if actorID != uuid.Nil {
		ctx = middleware.WithUserID(ctx, actorID.String())
	}
	return req.WithContext(ctx)
}

func TestSubmitPassesRatingThrough(t *testing.T) {
	buyerID := uuid.New()
	orderID := uuid.New()
	svc := &stubReviewsService{
		submit: func(_ context.Context, input internalreviews.SubmitInput) (*models.Review, error) {
			assert.Equal(t, orderID, input.OrderID)
			assert.Equal(t, buyerID, input.BuyerID)
			assert.Equal(t, 4, input.Rating)
			require.NotNil(t, input.Comment)
			assert.Equal(t, "solid work", *input.Comment)
			return &models.Review{ID: uuid.New(), OrderID: orderID, Rating: 4}, nil
		},
	}

	resp := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(resp, request(http.MethodPost, `{"rating":4,"comment":"solid work"}`, buyerID, "orderId", orderID.String()))

	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestSubmitSurfacesInvalidRating(t *testing.T) {
	svc := &stubReviewsService{
		submit: func(_ context.Context, input internalreviews.SubmitInput) (*models.Review, error) {
			assert.Equal(t, 9, input.Rating)
			return nil, pkgerrors.New(pkgerrors.CodeInvalidRating, "rating must be between 1 and 5")
		},
	}

	resp := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(resp, request(http.MethodPost, `{"rating":9}`, uuid.New(), "orderId", uuid.NewString()))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), string(pkgerrors.CodeInvalidRating))
}

func TestSubmitMapsDuplicate(t *testing.T) {
	svc := &stubReviewsService{
		submit: func(context.Context, internalreviews.SubmitInput) (*models.Review, error) {
			return nil, pkgerrors.New(pkgerrors.CodeReviewAlreadyExists, "review already exists")
		},
	}

	resp := httptest.NewRecorder()
	Submit(svc, nil).ServeHTTP(resp, request(http.MethodPost, `{"rating":5}`, uuid.New(), "orderId", uuid.NewString()))

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestSubmitRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	Submit(&stubReviewsService{}, nil).ServeHTTP(resp, request(http.MethodPost, `{"rating":5}`, uuid.Nil, "orderId", uuid.NewString()))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestReplyRequiresText(t *testing.T) {
	resp := httptest.NewRecorder()
	Reply(&stubReviewsService{}, nil).ServeHTTP(resp, request(http.MethodPost, `{"reply":""}`, uuid.New(), "reviewId", uuid.NewString()))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReplyForwardsSeller(t *testing.T) {
	sellerID := uuid.New()
	reviewID := uuid.New()
	svc := &stubReviewsService{
		reply: func(_ context.Context, input internalreviews.ReplyInput) (*models.Review, error) {
			assert.Equal(t, sellerID, input.SellerID)
			assert.Equal(t, reviewID, input.ReviewID)
			assert.Equal(t, "thanks!", input.Reply)
			return &models.Review{ID: reviewID, SellerReply: &input.Reply}, nil
		},
	}

	resp := httptest.NewRecorder()
	Reply(svc, nil).ServeHTTP(resp, request(http.MethodPost, `{"reply":"thanks!"}`, sellerID, "reviewId", reviewID.String()))

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestListByGigReturnsEmptyArray(t *testing.T) {
	gigID := uuid.New()
	svc := &stubReviewsService{
		listByGig: func(_ context.Context, id uuid.UUID) ([]models.Review, error) {
			assert.Equal(t, gigID, id)
			return []models.Review{}, nil
		},
	}

	resp := httptest.NewRecorder()
	ListByGig(svc, nil).ServeHTTP(resp, request(http.MethodGet, "", uuid.New(), "gigId", gigID.String()))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":[]}`, resp.Body.String())
}

func TestListBySellerRejectsBadID(t *testing.T) {
	resp := httptest.NewRecorder()
	ListBySeller(&stubReviewsService{}, nil).ServeHTTP(resp, request(http.MethodGet, "", uuid.New(), "sellerId", "seller"))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
