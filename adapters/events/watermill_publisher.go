package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

// TopicSession is the topic session lifecycle events are published to
const TopicSession = "faucetadmin.session"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     TopicSession,
	}
}

// PublishSessionEvent publishes a session event as JSON
func (p *WatermillPublisher) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set("type", string(event.Type))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// DecodeSessionEvent parses a message produced by PublishSessionEvent
func DecodeSessionEvent(msg *message.Message) (core.SessionEvent, error) {
	var event core.SessionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return core.SessionEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops every event
func NewNopPublisher() ports.EventPublisher { return nopPublisher{} }

func (nopPublisher) PublishSessionEvent(context.Context, core.SessionEvent) error { return nil }
