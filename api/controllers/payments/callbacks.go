package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gigmarket-backend/api/middleware"
	"github.com/angelmondragon/gigmarket-backend/api/responses"
	"github.com/angelmondragon/gigmarket-backend/api/validators"
	internalpayments "github.com/angelmondragon/gigmarket-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// Guard runs a callback at most once per success marker.
type Guard interface {
	Run(ctx context.Context, keyParts []string, fn func(ctx context.Context) error) (bool, error)
}

type approveRequest struct {
	PaymentID string `json:"paymentId" validate:"required,max=128"`
	OrderID   string `json:"orderId" validate:"required,uuid"`
}

type completeRequest struct {
	PaymentID string `json:"paymentId" validate:"required,max=128"`
	TxID      string `json:"txid" validate:"required,max=256"`
	OrderID   string `json:"orderId" validate:"required,uuid"`
}

type callbackResponse struct {
	OrderID   string `json:"orderId"`
	Phase     string `json:"phase"`
	Duplicate bool   `json:"duplicate"`
}

// Approve handles the server-approval phase relayed by the payer's client.
// The authenticated user must be the order's buyer.
func Approve(svc internalpayments.Service, guard Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actorID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload approveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event := internalpayments.ApprovalEvent{
			ExternalPaymentID: strings.TrimSpace(payload.PaymentID),
			OrderID:           uuid.MustParse(payload.OrderID),
			ActorID:           actorID,
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
				"external_payment_id": event.ExternalPaymentID,
				"phase":               "approve",
			})
		}

		call := func(ctx context.Context) error { return svc.OnApprovalRequested(ctx, event) }
		duplicate, err := run(ctx, guard, internalpayments.ApprovalKey(event), call)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, callbackResponse{OrderID: event.OrderID.String(), Phase: "approve", Duplicate: duplicate})
	}
}

// Complete handles the server-completion phase once the provider reports a txid.
func Complete(svc internalpayments.Service, guard Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actorID, err := middleware.ActorID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload completeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		event := internalpayments.CompletionEvent{
			ExternalPaymentID: strings.TrimSpace(payload.PaymentID),
			TransactionID:     strings.TrimSpace(payload.TxID),
			OrderID:           uuid.MustParse(payload.OrderID),
			ActorID:           actorID,
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
				"external_payment_id": event.ExternalPaymentID,
				"txid":                event.TransactionID,
				"phase":               "complete",
			})
		}

		call := func(ctx context.Context) error { return svc.OnCompletionConfirmed(ctx, event) }
		duplicate, err := run(ctx, guard, internalpayments.CompletionKey(event), call)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, callbackResponse{OrderID: event.OrderID.String(), Phase: "complete", Duplicate: duplicate})
	}
}

func run(ctx context.Context, guard Guard, key []string, fn func(ctx context.Context) error) (bool, error) {
	if guard == nil {
		return false, fn(ctx)
	}
	return guard.Run(ctx, key, fn)
}
