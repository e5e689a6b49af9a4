package transport

// Capabilities describes what a transport guarantees. The Service uses it to
// warn about reordering and to refuse batches the broker would reject.
type Capabilities struct {
	// SupportsOrdering means messages on one topic arrive in publish order.
	// The collector emits lines in order, so only ordered transports keep
	// that order up to the consumer.
	SupportsOrdering bool

	// SupportsTracing means the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsBatching means the transport can batch multiple messages.
	SupportsBatching bool

	// SupportsAck means the transport supports explicit acknowledgment.
	SupportsAck bool

	// SupportsNack means a nacked message is redelivered.
	SupportsNack bool

	// SupportsPartitioning means a topic is split into partitions.
	SupportsPartitioning bool

	// Durable means published messages survive a process restart.
	Durable bool

	// MaxMessageSize is the largest payload in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the registered transport name.
	Name string
}

// SupportsReliableDelivery reports at-least-once delivery (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of size bytes is within MaxMessageSize.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                 "kafka",
		SupportsOrdering:     true,
		SupportsTracing:      true,
		SupportsBatching:     true,
		SupportsAck:          true,
		SupportsPartitioning: true,
		Durable:              true,
		MaxMessageSize:       1048576, // broker default message.max.bytes
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	// NATS core delivers at most once and does not order across reconnects.
	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsTracing:  true,
		SupportsBatching: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		MaxMessageSize:   262144, // 256KB SQS limit
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		Durable:          true,
	}
)

// GetCapabilities returns the capabilities registered for transportName in
// the default registry, or a zero set carrying only the name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
