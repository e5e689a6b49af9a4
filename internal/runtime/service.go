package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/transflow/internal/runtime/collector"
	configpkg "github.com/drblury/transflow/internal/runtime/config"
	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
	"github.com/drblury/transflow/internal/runtime/model"
	"github.com/drblury/transflow/internal/runtime/printer"
	transportpkg "github.com/drblury/transflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

const httpShutdownTimeout = 5 * time.Second

// ServiceDependencies holds the collaborators of a Service. Only Search is
// required.
type ServiceDependencies struct {
	Search model.Search
	// Printer defaults to printer.New(conf.NBest).
	Printer model.Printer
	// Emitter replaces the default emitter, which publishes to OutputTopic.
	Emitter collector.Emitter

	Hooks      DispatchHooks
	Classifier FaultClassifier

	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory

	// Registerer receives every Prometheus collector. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Exit replaces os.Exit on a fatal decode fault.
	Exit func(code int)
}

// Service consumes sentence batches from InputTopic, dispatches each one and
// publishes the rendered lines to OutputTopic in line order.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	router       *message.Router
	transport    transportpkg.Transport

	dispatcher *Dispatcher
	collector  *collector.Collector
	stats      *DispatchStats
	metrics    *DispatchMetrics
	registerer prometheus.Registerer

	httpServers   map[int]*http.ServeMux
	running       []*http.Server
	httpServersMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
	closeErr    error
}

// NewService is TryNewService that panics on error.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService builds the transport, router, collector and dispatcher for
// conf after filling its zero values with defaults. The dispatch handler on
// conf.InputTopic is registered; call Start to begin consuming.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if deps.Search == nil {
		return nil, errspkg.ErrSearchRequired
	}
	conf.ApplyDefaults()

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating dispatch service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		registerer: deps.Registerer,
		stats:      NewDispatchStats(),
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber
	s.transport = transport
	built := false
	defer func() {
		if !built {
			s.release(ctx)
		}
	}()
	if !transport.Capabilities.SupportsOrdering {
		log.Info("Transport does not guarantee ordering; output lines may be reordered in transit", loggingpkg.LogFields{
			"pubsub_system":      conf.PubSubSystem,
			"ordered_transports": transportpkg.Ordered(),
		})
	}

	s.metrics = NewDispatchMetrics(s.registerer)
	if err := s.metrics.Register(); err != nil {
		return nil, fmt.Errorf("register dispatch metrics: %w", err)
	}

	if err := s.buildCollector(ctx, deps); err != nil {
		return nil, err
	}

	p := deps.Printer
	if p == nil {
		p = printer.New(conf.NBest)
	}
	s.dispatcher, err = NewDispatcher(DispatcherDependencies{
		Search:     deps.Search,
		Printer:    p,
		Collector:  s.collector,
		Logger:     log.With(loggingpkg.LogFields{"component": "dispatcher"}),
		Hooks:      LoggingHooks(log).Merge(deps.Hooks),
		Metrics:    s.metrics,
		Stats:      s.stats,
		Classifier: deps.Classifier,
		Exit:       deps.Exit,
	})
	if err != nil {
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	if err := s.registerDispatchHandler(DispatchHandlerRegistration{InputTopic: conf.InputTopic}); err != nil {
		return nil, err
	}

	built = true
	return s, nil
}

// release closes what TryNewService built before it failed. The router never
// ran, so it is left alone.
func (s *Service) release(ctx context.Context) {
	if s.collector != nil {
		if err := s.collector.Close(ctx); err != nil {
			s.Logger.Error("Failed to close output during setup", err, nil)
		}
	}
	if err := s.publisher.Close(); err != nil {
		s.Logger.Error("Failed to close publisher during setup", err, nil)
	}
	if err := s.subscriber.Close(); err != nil {
		s.Logger.Error("Failed to close subscriber during setup", err, nil)
	}
}

func (s *Service) buildCollector(ctx context.Context, deps ServiceDependencies) error {
	emitter := deps.Emitter
	if emitter == nil {
		codec, err := LineCodecFor(s.Conf.OutputEncoding)
		if err != nil {
			return err
		}
		emitter, err = NewPublisherEmitter(s.publisher, s.Conf.OutputTopic, codec)
		if err != nil {
			return err
		}
	}
	if s.Conf.OutputSQLite != "" {
		store, err := collector.OpenSQLiteEmitter(ctx, s.Conf.OutputSQLite)
		if err != nil {
			return fmt.Errorf("open output database: %w", err)
		}
		emitter = collector.MultiEmitter{emitter, store}
	}

	collectorMetrics := collector.NewMetrics(s.registerer)
	if err := collectorMetrics.Register(); err != nil {
		_ = emitter.Close()
		return fmt.Errorf("register collector metrics: %w", err)
	}

	c, err := collector.New(emitter,
		collector.WithFirstLine(s.Conf.FirstLine),
		collector.WithLogger(s.Logger.With(loggingpkg.LogFields{"component": "collector"})),
		collector.WithMetrics(collectorMetrics),
	)
	if err != nil {
		_ = emitter.Close()
		return err
	}
	s.collector = c
	return nil
}

// Start runs the router until ctx is cancelled or Close is called. Call Close
// afterwards to flush buffered output. Start fails once Close was called.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if s.closed {
		s.lifecycleMu.Unlock()
		return errspkg.ErrServiceClosed
	}
	s.started = true
	s.lifecycleMu.Unlock()

	s.StartStatsServer()
	s.startHTTPServers()
	return routerRun(s.router, ctx)
}

// Running is closed once the router is consuming.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops consuming, waits for running dispatches, flushes the collector
// and releases the transport. It returns the collector's first emission
// error, if any. Later calls return the same result.
func (s *Service) Close(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true

	var errs []error
	// A router that never ran still counts its handlers and would wait out
	// its close timeout.
	if s.started {
		if err := s.router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close router: %w", err))
		}
	}
	if err := s.collector.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush output: %w", err))
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := s.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}
	s.stopHTTPServers(ctx)
	s.closeErr = errors.Join(errs...)
	return s.closeErr
}

// Dispatcher returns the dispatcher used for every input batch.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Collector returns the ordered output collector.
func (s *Service) Collector() *collector.Collector {
	return s.collector
}

// Stats returns the live dispatch statistics.
func (s *Service) Stats() *DispatchStats {
	return s.stats
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.running = append(s.running, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
}

func (s *Service) stopHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	servers := s.running
	s.running = nil
	s.httpServersMu.Unlock()

	for _, srv := range servers {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.Logger.Error("HTTP server shutdown failed", err, loggingpkg.LogFields{"address": srv.Addr})
		}
		cancel()
	}
}
