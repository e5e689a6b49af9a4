// Package nats provides the NATS Core transport. JetStream is disabled, so
// delivery is at-most-once and unordered across subscribers.
package nats

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/transflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

const (
	clientName       = "transflow"
	queueGroupPrefix = "transflow"
	reconnectWait    = 2 * time.Second
)

// ErrURLRequired is returned by Build when no NATS URL is configured.
var ErrURLRequired = errors.New("nats: url is required")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register adds the NATS transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// ConnectionOptions returns the client options shared by publisher and
// subscriber: a fixed client name and unlimited reconnects.
func ConnectionOptions() []nc.Option {
	return []nc.Option{
		nc.Name(clientName),
		nc.RetryOnFailedConnect(true),
		nc.MaxReconnects(-1),
		nc.ReconnectWait(reconnectWait),
	}
}

// Build creates a NATS Core transport. Subscribers join a queue group so a
// batch is handled by one service instance.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, ErrURLRequired
	}
	marshaler := &nats.NATSMarshaler{}
	options := ConnectionOptions()
	jetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:              url,
			QueueGroupPrefix: queueGroupPrefix,
			NatsOptions:      options,
			Unmarshaler:      marshaler,
			JetStream:        jetStream,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
