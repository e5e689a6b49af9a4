// Package transflow dispatches batches of input sentences to a decoding
// engine and publishes every rendered result to an ordered sink keyed by the
// sentence's line number. Dispatches run concurrently and finish in any
// order; the Collector alone restores global line order.
//
// A Dispatcher needs a Search (the engine), a Printer and an OutputCollector.
// Decode faults are fatal: the Dispatcher classifies the fault, logs it,
// writes one line to stderr and exits with ExitCodeDecodeFault. It never
// retries and never returns a partial result.
//
// # Service mode
//
// Service hosts a Watermill router that consumes JSON batches from
// Config.InputTopic, dispatches each message on its own handler goroutine and
// publishes output lines, in line order, to Config.OutputTopic. Batches that
// fail schema validation go to Config.PoisonQueue when one is set.
//
// # Transports
//
// Transports register themselves by import:
//   - channel: in-memory Go channels
//   - kafka: one partition per topic, so lines stay ordered
//   - rabbitmq: durable AMQP work queues
//   - nats: NATS Core, unordered
//   - aws: SNS/SQS with LocalStack support, unordered
//   - http: POST per message, unordered
//   - io: append-only JSON lines file
//
// The Service logs a warning when the selected transport does not preserve
// order between the collector and downstream consumers.
//
// # Middleware
//
// The default chain adds correlation IDs, message logging, OpenTelemetry
// tracing, Prometheus router metrics, poison queue forwarding and panic
// recovery. There is deliberately no retry middleware: a batch is dispatched
// at most once per delivery. Custom middleware goes in
// ServiceDependencies.Middlewares and dispatch lifecycle callbacks in
// ServiceDependencies.Hooks.
package transflow
