// Package transports imports every built-in transport so each registers
// itself with the default registry.
package transports

import (
	_ "github.com/drblury/transflow/transport/aws"
	_ "github.com/drblury/transflow/transport/channel"
	_ "github.com/drblury/transflow/transport/http"
	_ "github.com/drblury/transflow/transport/io"
	_ "github.com/drblury/transflow/transport/kafka"
	_ "github.com/drblury/transflow/transport/nats"
	_ "github.com/drblury/transflow/transport/rabbitmq"
)
