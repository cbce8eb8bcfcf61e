package enums

// LedgerEventType labels an append-only money movement on an order.
type LedgerEventType string

const (
	LedgerEventPaymentAuthorized LedgerEventType = "payment_authorized"
	LedgerEventPaymentCompleted  LedgerEventType = "payment_completed"
	LedgerEventOrderCancelled    LedgerEventType = "order_cancelled"
	LedgerEventOrderExpired      LedgerEventType = "order_expired"
)

var ledgerEventTypes = set[LedgerEventType]{
	LedgerEventPaymentAuthorized,
	LedgerEventPaymentCompleted,
	LedgerEventOrderCancelled,
	LedgerEventOrderExpired,
}

func (t LedgerEventType) IsValid() bool { return ledgerEventTypes.has(t) }

func ParseLedgerEventType(raw string) (LedgerEventType, error) {
	return ledgerEventTypes.parse("ledger event type", raw)
}
