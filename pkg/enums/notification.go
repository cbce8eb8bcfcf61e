package enums

type NotificationType string

const (
	NotificationTypePaymentCompleted NotificationType = "payment_completed"
	NotificationTypeOrderStatus      NotificationType = "order_status"
	NotificationTypeOrderCancelled   NotificationType = "order_cancelled"
	NotificationTypeReviewReceived   NotificationType = "review_received"
	NotificationTypeReviewReply      NotificationType = "review_reply"
)

var notificationTypes = set[NotificationType]{
	NotificationTypePaymentCompleted,
	NotificationTypeOrderStatus,
	NotificationTypeOrderCancelled,
	NotificationTypeReviewReceived,
	NotificationTypeReviewReply,
}

func (n NotificationType) IsValid() bool { return notificationTypes.has(n) }

func ParseNotificationType(raw string) (NotificationType, error) {
	return notificationTypes.parse("notification type", raw)
}

// NotificationEntity names the record a notification links to.
type NotificationEntity string

const (
	NotificationEntityOrder  NotificationEntity = "order"
	NotificationEntityReview NotificationEntity = "review"
)
