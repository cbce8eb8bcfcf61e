package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/pi"
	"github.com/angelmondragon/gigmarket-backend/pkg/square"
)

// Provider is the server side of a two-phase external payment.
type Provider interface {
	Name() enums.PaymentProvider
	Approve(ctx context.Context, externalPaymentID string) error
	Complete(ctx context.Context, externalPaymentID, transactionID string) error
}

// ApprovalEvent is delivered when the payer's SDK asks the server to approve.
// ActorID is the authenticated user relaying it and must be the order's buyer.
type ApprovalEvent struct {
	ExternalPaymentID string
	OrderID           uuid.UUID
	ActorID           uuid.UUID
}

// CompletionEvent is delivered once the provider reports the on-chain transaction.
type CompletionEvent struct {
	ExternalPaymentID string
	TransactionID     string
	OrderID           uuid.UUID
	ActorID           uuid.UUID
}

// NewProvider builds the provider selected by GIGMARKET_PAYMENTS_PROVIDER.
func NewProvider(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Provider, error) {
	switch cfg.Payments.ProviderName() {
	case config.PaymentProviderPi:
		client, err := pi.NewClient(cfg.Pi, logg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.PaymentProviderSquare:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unsupported payment provider %q", cfg.Payments.Provider)
}
