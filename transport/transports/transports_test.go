package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/transflow/transport"
)

func TestBuiltinTransportsRegistered(t *testing.T) {
	assert.Equal(t,
		[]string{"aws", "channel", "http", "io", "kafka", "nats", "rabbitmq"},
		transport.DefaultRegistry.Names(),
	)
	assert.True(t, transport.GetCapabilities("kafka").SupportsOrdering)
	assert.False(t, transport.GetCapabilities("nats").SupportsOrdering)
}
