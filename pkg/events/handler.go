package events

import (
	"context"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// Handler reacts to a registration announced by some client.
type Handler func(ctx context.Context, ev RegistrationEvent) error

// HandleMessage processes a Pub/Sub message and returns true if it should be
// acked or false to Nack. Malformed payloads are acked and dropped; handler
// failures are retried through redelivery.
func HandleMessage(ctx context.Context, log *zap.Logger, handle Handler, msg *pubsub.Message) bool {
	ev, err := ParseRegistrationEvent(msg.Data)
	if err != nil {
		log.Warn("dropping malformed registration event", zap.String("msg_id", msg.ID), zap.Error(err))
		return true
	}

	if err := handle(ctx, ev); err != nil {
		log.Error("registration handler failed", zap.String("tid", ev.TID), zap.String("event_id", ev.EventID), zap.Error(err))
		return false
	}
	return true
}

// Listen receives registration events from sub until ctx is done.
func Listen(ctx context.Context, sub *pubsub.Subscription, log *zap.Logger, handle Handler) error {
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if HandleMessage(ctx, log, handle, msg) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}
