package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/transflow/internal/runtime/config"
	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	registry "github.com/drblury/transflow/transport"

	// Registers every built-in transport.
	_ "github.com/drblury/transflow/transport/transports"
)

// Transport is the publisher/subscriber pair a Service runs on, together with
// what the backend guarantees.
type Transport struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Capabilities registry.Capabilities
}

// Factory abstracts how the Service obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds transports through the default registry.
func DefaultFactory() Factory {
	return registryFactory{registry: registry.DefaultRegistry}
}

// NewRegistryFactory builds transports through r.
func NewRegistryFactory(r *registry.Registry) Factory {
	return registryFactory{registry: r}
}

type registryFactory struct {
	registry *registry.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}

	t, caps, err := f.registry.Open(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:    t.Publisher,
		Subscriber:   t.Subscriber,
		Capabilities: caps,
	}, nil
}

// Ordered lists the registered transports that keep publish order.
func Ordered() []string {
	return registry.DefaultRegistry.Ordered()
}
