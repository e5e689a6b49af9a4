// Package channel provides the in-memory transport used for tests and
// single-process deployments.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/transflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// DefaultConfig makes Publish wait for subscriber acks. gochannel otherwise
// delivers each message on its own goroutine, which would reorder output
// lines.
var DefaultConfig = gochannel.Config{
	OutputChannelBuffer:            64,
	BlockPublishUntilSubscriberAck: true,
}

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds the channel transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates one pub/sub shared by the publisher and subscriber side.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(DefaultConfig, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
