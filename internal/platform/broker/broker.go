// Package broker provides the topic based publish/subscribe primitive used
// for message fan-out. Delivery is best effort: only currently attached
// subscribers see a payload, there is no replay.
package broker

import "context"

// Subscription is a live attachment to one topic. Messages arrive on C until
// Close is called or the broker shuts down.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

// Broker publishes opaque payloads to named topics and hands out
// subscriptions on them.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// RoomTopic builds the broadcast topic name for a room.
func RoomTopic(roomID string) string {
	return "chat:room:" + roomID
}
