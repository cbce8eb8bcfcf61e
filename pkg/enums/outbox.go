package enums

// OutboxAggregateType is the aggregate_type_enum column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateReview OutboxAggregateType = "review"
)

var aggregateTypes = set[OutboxAggregateType]{AggregateOrder, AggregateReview}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", raw)
}

// OutboxEventType is the event_type_enum column. It doubles as the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventOrderPaid       OutboxEventType = "order_paid"
	EventOrderCancelled  OutboxEventType = "order_cancelled"
	EventOrderExpired    OutboxEventType = "order_expired"
	EventReviewSubmitted OutboxEventType = "review_submitted"
)

var outboxEventTypes = set[OutboxEventType]{
	EventOrderPaid,
	EventOrderCancelled,
	EventOrderExpired,
	EventReviewSubmitted,
}

func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return outboxEventTypes.parse("outbox event type", raw)
}
