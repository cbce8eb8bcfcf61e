package payments

import (
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

type decision int

const (
	decisionApply decision = iota
	decisionReplay
	decisionStale
)

// decideApproval classifies an approval callback against the current state.
// A nil payment means no callback has been applied yet.
func decideApproval(order *models.Order, payment *models.Payment, externalID string) decision {
	switch order.Status {
	case enums.OrderStatusCreated:
		return decisionApply
	case enums.OrderStatusAwaitingPayment:
		if payment != nil && payment.ExternalPaymentID == externalID {
			return decisionReplay
		}
		return decisionApply
	}
	if payment != nil && payment.ExternalPaymentID == externalID {
		return decisionReplay
	}
	return decisionStale
}

// decideCompletion classifies a completion callback. Completion before
// approval is accepted; the order moves straight to PAID.
func decideCompletion(order *models.Order, payment *models.Payment, txid string) decision {
	switch order.Status {
	case enums.OrderStatusCreated, enums.OrderStatusAwaitingPayment:
		return decisionApply
	case enums.OrderStatusPaid, enums.OrderStatusInProgress, enums.OrderStatusDelivered, enums.OrderStatusCompleted:
		if completedWith(payment, txid) {
			return decisionReplay
		}
	}
	return decisionStale
}

func completedWith(payment *models.Payment, txid string) bool {
	if payment == nil || payment.Status != enums.PaymentStatusCompleted || payment.TransactionID == nil {
		return false
	}
	return *payment.TransactionID == txid
}
