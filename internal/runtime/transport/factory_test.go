package transport

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/transflow/internal/runtime/config"
	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	"github.com/drblury/transflow/internal/runtime/logging"
	registry "github.com/drblury/transflow/transport"
)

func testLogger() watermill.LoggerAdapter {
	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return logging.NewWatermillAdapter(logging.NewSlogServiceLogger(slogger))
}

func TestDefaultFactoryBuildsChannel(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "channel"}, testLogger())
	require.NoError(t, err)

	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
	assert.Equal(t, "channel", tr.Capabilities.Name)
	assert.True(t, tr.Capabilities.SupportsOrdering)
	require.NoError(t, tr.Publisher.Close())
}

func TestDefaultFactoryNilConfig(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, testLogger())
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
}

func TestDefaultFactoryUnknownTransport(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "carrier-pigeon"}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestRegistryFactoryUsesGivenRegistry(t *testing.T) {
	r := registry.NewRegistry()
	r.RegisterWithCapabilities("memory", func(_ context.Context, _ registry.Config, logger watermill.LoggerAdapter) (registry.Transport, error) {
		ps := gochannel.NewGoChannel(gochannel.Config{}, logger)
		return registry.Transport{Publisher: ps, Subscriber: ps}, nil
	}, registry.Capabilities{Name: "memory", SupportsOrdering: false})

	tr, err := NewRegistryFactory(r).Build(context.Background(), &config.Config{PubSubSystem: "memory"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "memory", tr.Capabilities.Name)
	assert.False(t, tr.Capabilities.SupportsOrdering)
}

type describedPublisher struct {
	*gochannel.GoChannel
}

func (describedPublisher) Capabilities() registry.Capabilities {
	return registry.Capabilities{SupportsOrdering: true, MaxMessageSize: 512}
}

func TestRegistryFactoryPrefersPublisherCapabilities(t *testing.T) {
	r := registry.NewRegistry()
	r.RegisterWithCapabilities("memory", func(_ context.Context, _ registry.Config, logger watermill.LoggerAdapter) (registry.Transport, error) {
		ps := gochannel.NewGoChannel(gochannel.Config{}, logger)
		return registry.Transport{Publisher: describedPublisher{ps}, Subscriber: ps}, nil
	}, registry.Capabilities{})

	tr, err := NewRegistryFactory(r).Build(context.Background(), &config.Config{PubSubSystem: "memory"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "memory", tr.Capabilities.Name)
	assert.True(t, tr.Capabilities.SupportsOrdering)
	assert.True(t, tr.Capabilities.Fits(512))
	assert.False(t, tr.Capabilities.Fits(513))
	require.NoError(t, tr.Publisher.Close())
}

func TestOrderedListsBuiltinOrderedTransports(t *testing.T) {
	ordered := Ordered()
	assert.Contains(t, ordered, "channel")
	assert.Contains(t, ordered, "io")
	assert.NotContains(t, ordered, "aws")
}

func TestFactoryFunc(t *testing.T) {
	called := false
	f := FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (Transport, error) {
		called = true
		return Transport{}, nil
	})
	_, err := f.Build(context.Background(), &config.Config{}, testLogger())
	require.NoError(t, err)
	assert.True(t, called)
}
