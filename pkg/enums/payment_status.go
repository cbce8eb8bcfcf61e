package enums

// PaymentStatus is the local record of where a provider payment stands.
type PaymentStatus string

const (
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
)

var paymentStatuses = set[PaymentStatus]{PaymentStatusAuthorized, PaymentStatusCompleted}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	return paymentStatuses.parse("payment status", raw)
}

// PaymentProvider names the external system that settled a payment.
type PaymentProvider string

const (
	PaymentProviderPi     PaymentProvider = "pi"
	PaymentProviderSquare PaymentProvider = "square"
)

func (p PaymentProvider) IsValid() bool {
	return p == PaymentProviderPi || p == PaymentProviderSquare
}
