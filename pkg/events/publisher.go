package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

// Publisher announces registrations.
type Publisher interface {
	PublishRegistration(ctx context.Context, ev RegistrationEvent) error
}

// PubSubPublisher implements Publisher using a Pub/Sub topic.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubPublisher constructs a publisher for the given topic. If the
// topic is nil, publishes are treated as no-ops.
func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

// PublishRegistration sends ev and waits for the server ack.
func (p *PubSubPublisher) PublishRegistration(ctx context.Context, ev RegistrationEvent) error {
	if p.topic == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": "registration",
			"event_id":   ev.EventID,
			"tid":        ev.TID,
		},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish registration %s: %w", ev.TID, err)
	}
	return nil
}

// NoopPublisher is used when no registration topic is configured.
type NoopPublisher struct{}

func (n *NoopPublisher) PublishRegistration(ctx context.Context, ev RegistrationEvent) error {
	return nil
}
