package runtime

import (
	"errors"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/transflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/transflow/internal/runtime/metadata"
)

// MiddlewareBuilder constructs a handler middleware for a Service.
type MiddlewareBuilder func(*Service) (message.HandlerMiddleware, error)

// MiddlewareRegistration names a router middleware. Exactly one of
// Middleware and Builder is used; a Builder may return nil to opt out.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the chain registered by NewService. There is no
// retry middleware: a batch is dispatched at most once per delivery.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds Watermill router metrics and serves /metrics on the
// configured port.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			registerer := s.registerer
			if registerer == nil {
				registerer = prometheus.DefaultRegisterer
			}
			metricsBuilder := metrics.NewPrometheusMetricsBuilder(registerer, "transflow", s.Conf.PubSubSystem)
			metricsBuilder.AddPrometheusRouterMetrics(s.router)

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", metricsHandler(registerer))
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

func metricsHandler(registerer prometheus.Registerer) http.Handler {
	if gatherer, ok := registerer.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// CorrelationIDMiddleware stamps a correlation ID on messages that lack one.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "correlation_id",
		Middleware: correlationIDMiddleware,
	}
}

// LogMessagesMiddleware logs every input message at debug level. A nil
// logger falls back to the Service logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

// TracerMiddleware wraps message handling in an OpenTelemetry span; dispatch
// spans become its children.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "tracer",
		Middleware: tracerMiddleware(otel.Tracer(tracerName)),
	}
}

// PoisonQueueMiddleware moves messages whose handler error matches filter to
// the poison queue. The default filter matches *UnprocessableBatchError.
// Without a configured poison queue the middleware is skipped.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			if s.Conf.PoisonQueue == "" {
				return nil, nil
			}
			if s.publisher == nil {
				return nil, errors.New("publisher is required for poison queue middleware")
			}
			f := filter
			if f == nil {
				f = isUnprocessable
			}
			return middleware.PoisonQueueWithFilter(s.publisher, s.Conf.PoisonQueue, f)
		},
	}
}

func isUnprocessable(err error) bool {
	var target *UnprocessableBatchError
	return errors.As(err, &target)
}

// RecovererMiddleware turns handler panics outside the engine into errors.
// Engine panics never get here; the dispatcher treats them as fatal.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	if s.router == nil {
		return errors.New("router is not initialised")
	}

	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.router.AddMiddleware(mw)
	return nil
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(metadatapkg.KeyCorrelationID) == "" {
			msg.Metadata.Set(metadatapkg.KeyCorrelationID, ids.New())
		}
		return h(msg)
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing batch message", loggingpkg.LogFields{
				"message_uuid":   msg.UUID,
				"correlation_id": msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				"first_line":     msg.Metadata.Get(metadatapkg.KeyFirstLine),
				"batch_size":     msg.Metadata.Get(metadatapkg.KeyBatchSize),
				"payload_bytes":  len(msg.Payload),
			})
			return h(msg)
		}
	}
}

func tracerMiddleware(tracer trace.Tracer) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx, span := tracer.Start(msg.Context(), "transflow.ProcessMessage", trace.WithAttributes(
				attribute.String("messaging.message.id", msg.UUID),
				attribute.String("transflow.correlation_id", msg.Metadata.Get(metadatapkg.KeyCorrelationID)),
			))
			defer span.End()
			msg.SetContext(ctx)

			msgs, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return msgs, err
		}
	}
}
