package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated   = "order.created"
	TopicUserRegistered = "user.registered"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderShipped   = "order.shipped"
	TopicOrderDelivered = "order.delivered"
)

// DefaultTopics returns the canonical list of topics notifiers may observe.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicUserRegistered,
		TopicOrderConfirmed,
		TopicOrderShipped,
		TopicOrderDelivered,
	}
}
