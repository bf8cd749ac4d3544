// Package bridge forwards mediator notifications onto a Watermill pub/sub
// topic. It lets in-process events feed message-driven consumers without the
// publishing side knowing about messaging at all: the bridge subscribes as a
// broadcast recipient and re-emits every notification as a Watermill message.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/relay"
	loggingpkg "github.com/drblury/relay/internal/mediator/logging"
)

// Metadata keys stamped on every forwarded message.
const (
	MetadataKeyNotificationType = "relay_notification_type"
	MetadataKeyCorrelationID    = "relay_correlation_id"
)

// ErrTopicRequired is returned when a Bridge is created without a topic.
var ErrTopicRequired = errors.New("relay/bridge: topic is required")

// Bridge is a broadcast subscriber that re-publishes notifications as JSON
// messages on an in-memory Go channel topic.
type Bridge struct {
	topic  string
	pubsub *gochannel.GoChannel
}

// New creates a Bridge publishing to the given topic.
func New(topic string, logger relay.ServiceLogger) (*Bridge, error) {
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if logger == nil {
		logger = relay.NopLogger()
	}

	return &Bridge{
		topic:  topic,
		pubsub: gochannel.NewGoChannel(gochannel.Config{}, loggingpkg.NewWatermillAdapter(logger)),
	}, nil
}

// Attach registers the bridge as a broadcast subscriber on the mediator.
func (b *Bridge) Attach(m *relay.Mediator) error {
	return relay.SubscribeBroadcast(m, b)
}

// Detach removes the bridge's subscription.
func (b *Bridge) Detach(m *relay.Mediator) error {
	return relay.Unsubscribe(m, b)
}

// Receive implements relay.BroadcastSubscriber. The notification is JSON
// encoded; its concrete type and the dispatch correlation ID travel as
// message metadata.
func (b *Bridge) Receive(ctx context.Context, notification any) error {
	payload, err := relay.Marshal(notification)
	if err != nil {
		return fmt.Errorf("relay/bridge: encoding %T: %w", notification, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataKeyNotificationType, reflect.TypeOf(notification).String())
	if id := relay.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set(MetadataKeyCorrelationID, id)
	}
	msg.SetContext(ctx)

	return b.pubsub.Publish(b.topic, msg)
}

// Subscribe returns the stream of forwarded messages. Consumers must Ack.
func (b *Bridge) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, b.topic)
}

// Close shuts the underlying pub/sub down.
func (b *Bridge) Close() error {
	return b.pubsub.Close()
}
