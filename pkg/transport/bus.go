package transport

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DriverGoChannel = "gochannel"
	DriverRedis     = "redis"
)

// Settings holds the bus configuration.
type Settings struct {
	Driver   string `yaml:"driver" validate:"oneof=gochannel redis"`
	Addr     string `yaml:"addr" validate:"required_if=Driver redis"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Driver:   DriverGoChannel,
		Addr:     "localhost:6379",
		Group:    "agentcall",
		Consumer: "client-1",
	}
}

// Bus is a publisher/subscriber pair. Close releases both and the redis
// client, if any.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	settings Settings
	client   redis.UniversalClient
	closers  []func() error
}

func (b *Bus) Settings() Settings { return b.settings }

func (b *Bus) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildBus constructs the bus for s. With the gochannel driver publisher and
// subscriber are the same gochannel pubsub, and Publish returns only once the
// subscriber acked, so a topic is consumed in publish order.
func BuildBus(s Settings) (*Bus, error) {
	logger := NewWatermillLogger(log.Logger)
	switch s.Driver {
	case "", DriverGoChannel:
		ps := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{
			Publisher:  ps,
			Subscriber: ps,
			settings:   s,
			closers:    []func() error{ps.Close},
		}, nil
	case DriverRedis:
	default:
		return nil, errors.Errorf("unknown bus driver %q", s.Driver)
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}
	return &Bus{
		Publisher:  pub,
		Subscriber: sub,
		settings:   s,
		client:     client,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// EnsureGroupAtTail creates the consumer group for topic at the tail ($) so
// a new consumer does not replay the stream history. It is a no-op for the
// gochannel driver.
func (b *Bus) EnsureGroupAtTail(ctx context.Context, topic string) error {
	if b.client == nil {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, topic, b.settings.Group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", b.settings.Group, topic)
	}
	log.Info().Str("component", "transport").Str("stream", topic).Str("group", b.settings.Group).Msg("created redis consumer group at $ (tail)")
	return nil
}

// Publish encodes e and publishes it on topic.
func Publish(pub message.Publisher, topic string, e Envelope) error {
	payload, err := Encode(e)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	msg.Metadata.Set("session_id", e.SessionID)
	if err := pub.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}
