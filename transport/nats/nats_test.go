package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/transflow/internal/runtime/config"
	"github.com/drblury/transflow/transport"
	"github.com/drblury/transflow/transport/transporttest"
)

const testURL = "nats://localhost:4222"

func stubFactories(t *testing.T) {
	t.Helper()
	originalPub := PublisherFactory
	originalSub := SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})
}

func TestRegister(t *testing.T) {
	orig := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = orig })
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, transport.NATSCapabilities, caps)
	assert.False(t, caps.SupportsOrdering)
}

func TestConnectionOptions(t *testing.T) {
	assert.Len(t, ConnectionOptions(), 4)
}

func TestBuild(t *testing.T) {
	t.Run("disables jetstream and joins queue group", func(t *testing.T) {
		stubFactories(t)
		pub := &transporttest.Publisher{}
		sub := &transporttest.Subscriber{}

		PublisherFactory = func(cfg nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, testURL, cfg.URL)
			assert.True(t, cfg.JetStream.Disabled)
			assert.NotEmpty(t, cfg.NatsOptions)
			return pub, nil
		}
		SubscriberFactory = func(cfg nats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.Equal(t, testURL, cfg.URL)
			assert.True(t, cfg.JetStream.Disabled)
			assert.Equal(t, "transflow", cfg.QueueGroupPrefix)
			return sub, nil
		}

		tr, err := Build(context.Background(), &config.Config{NATSURL: testURL}, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)
		assert.Same(t, sub, tr.Subscriber)
	})

	t.Run("requires url", func(t *testing.T) {
		_, err := Build(context.Background(), &config.Config{}, watermill.NopLogger{})
		assert.ErrorIs(t, err, ErrURLRequired)
	})

	t.Run("returns publisher error", func(t *testing.T) {
		stubFactories(t)
		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), &config.Config{NATSURL: testURL}, watermill.NopLogger{})
		assert.EqualError(t, err, "publisher error")
	})

	t.Run("closes publisher on subscriber error", func(t *testing.T) {
		stubFactories(t)
		pub := &transporttest.Publisher{}
		PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), &config.Config{NATSURL: testURL}, watermill.NopLogger{})
		assert.EqualError(t, err, "subscriber error")
		assert.True(t, pub.Closed)
	})
}
