/*
Package runtime implements dispatch and service mode for transflow.

# Dispatch (dispatch.go, fault.go, hooks.go)

A Dispatcher runs one batch through the engine (Decode) and hands every
rendered history to the output collector in batch order (Dispatch). Each
call moves through PENDING, DECODING, PUBLISHING and DONE. An engine error
or panic moves it to FATAL instead: the fault is classified, logged, written
to the diagnostics stream, reported to metrics, hooks and the active span,
and then the process exits with ExitCodeDecodeFault.

The Dispatcher keeps no per-call state and takes no locks of its own; the
collector is the only object shared between concurrent dispatches.

# Service (service.go, registration.go, middleware.go)

The Service wires a Watermill router on the configured transport:
  - input messages carry a JSON batch validated against schemas/batch.schema.json
  - one handler invocation per message, so dispatches run concurrently
  - output lines go through an ordered collector to a PublisherEmitter
  - correlation ID, logging, tracing, metrics, poison queue and recoverer
    middleware; no retries

# Stats & Monitoring (models.go, resources.go, dispatch_metrics.go, statsapi.go)

  - Prometheus dispatch metrics
  - decode latency percentiles, throughput and enqueue lag
  - resource usage sampled at fault time
  - GET /api/stats on the stats port

# Sub-packages

  - collector/: ordered output sink and emitters (writer, SQLite)
  - config/: configuration, YAML loading and validation
  - errors/: sentinel errors
  - ids/: ULID generation
  - jsoncodec/: sonic-backed JSON helpers
  - logging/: logger interface and Watermill adapters
  - metadata/: message metadata helpers
  - model/: sentences, histories and the engine, printer and collector interfaces
  - printer/: plain and n-best printers
  - transport/: builds the configured transport through the registry

# Usage Example

	cfg := &transflow.Config{
		PubSubSystem: "kafka",
		KafkaBrokers: []string{"localhost:9092"},
		InputTopic:   "transflow.batches",
		OutputTopic:  "transflow.lines",
	}

	svc := transflow.NewService(cfg, logger, ctx, transflow.ServiceDependencies{
		Search: engine,
	})

	svc.Start(ctx)
*/
package runtime
