package http

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/transflow/internal/runtime/config"
	"github.com/drblury/transflow/transport"
	"github.com/drblury/transflow/transport/transporttest"
)

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
	assert.Equal(t, "http", caps.Name)
	assert.False(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsTracing)
}

func TestTopicURL(t *testing.T) {
	tests := []struct {
		base, topic, want string
	}{
		{"http://localhost:8080", "transflow.batches", "http://localhost:8080/transflow.batches"},
		{"http://localhost:8080/", "transflow.batches", "http://localhost:8080/transflow.batches"},
		{"http://localhost:8080/", "/out", "http://localhost:8080/out"},
	}
	for _, tt := range tests {
		t.Run(tt.base+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicURL(tt.base, tt.topic))
		})
	}
}

func TestBuild(t *testing.T) {
	cfg := &config.Config{
		HTTPServerAddress: ":8080",
		HTTPPublisherURL:  "http://localhost:8080/",
	}

	t.Run("marshals messages to topic url", func(t *testing.T) {
		stubFactories(t)
		pub := &transporttest.Publisher{}
		sub := &transporttest.Subscriber{}

		PublisherFactory = func(pc watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			req, err := pc.MarshalMessageFunc("transflow.lines", message.NewMessage("1", []byte("x")))
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8080/transflow.lines", req.URL.String())
			return pub, nil
		}
		SubscriberFactory = func(addr string, _ watermillhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.Equal(t, ":8080", addr)
			return sub, nil
		}

		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
		require.NoError(t, err)
		assert.Same(t, pub, tr.Publisher)
		assert.Same(t, sub, tr.Subscriber)
	})

	t.Run("returns publisher error", func(t *testing.T) {
		stubFactories(t)
		PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}

		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.EqualError(t, err, "publisher error")
	})

	t.Run("closes publisher on subscriber error", func(t *testing.T) {
		stubFactories(t)
		pub := &transporttest.Publisher{}
		PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}

		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.EqualError(t, err, "subscriber error")
		assert.True(t, pub.Closed)
	})
}
