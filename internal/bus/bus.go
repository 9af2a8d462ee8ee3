// Package bus carries the presentation channel: an in-process pub/sub that
// fans published monitor payloads out to subscribers (history writer, live
// SSE stream) without ever blocking the execution thread.
package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"kernel-sentinel/pkg/lifecycle"
)

// Bus wraps a watermill gochannel pub/sub on the sentinel topic.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    zerolog.Logger
}

// New creates the bus. The output buffer soaks up bursts so a slow
// subscriber never backpressures the publisher.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, watermill.NopLogger{}),
		log: logger,
	}
}

// Publish sends one tagged payload. Implements the publisher's Sink.
func (b *Bus) Publish(contentType string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(lifecycle.ContentTypeMetadataKey, contentType)

	if err := b.pubsub.Publish(lifecycle.Topic, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", lifecycle.Topic, err)
	}
	return nil
}

// Subscribe returns a message stream for the sentinel topic. The stream
// closes when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := b.pubsub.Subscribe(ctx, lifecycle.Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", lifecycle.Topic, err)
	}
	return msgs, nil
}

// Close shuts the pub/sub down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// ContentType extracts the content-type tag from a bus message.
func ContentType(msg *message.Message) string {
	return msg.Metadata.Get(lifecycle.ContentTypeMetadataKey)
}
