package gigs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db/dbtest"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
)

func TestRepository_FindAndUpdateRating(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	gig := &models.Gig{SellerID: uuid.New(), Title: "Logo design", BasePrice: decimal.RequireFromString("12.5")}
	require.NoError(t, repo.Create(ctx, gig))

	require.NoError(t, repo.UpdateRating(ctx, gig.ID, 4.5, 2))

	loaded, err := repo.FindByID(ctx, gig.ID)
	require.NoError(t, err)
	require.Equal(t, "Logo design", loaded.Title)
	require.True(t, loaded.BasePrice.Equal(decimal.RequireFromString("12.5")))
	require.InDelta(t, 4.5, loaded.RatingAvg, 1e-9)
	require.Equal(t, 2, loaded.RatingCount)
}

func TestRepository_FindByIDMissing(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	_, err := repo.FindByID(context.Background(), uuid.New())
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}
