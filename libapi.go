package transflow

import (
	runtimepkg "github.com/drblury/transflow/internal/runtime"
	collectorpkg "github.com/drblury/transflow/internal/runtime/collector"
	configpkg "github.com/drblury/transflow/internal/runtime/config"
	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	idspkg "github.com/drblury/transflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/transflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/transflow/internal/runtime/metadata"
	modelpkg "github.com/drblury/transflow/internal/runtime/model"
	printerpkg "github.com/drblury/transflow/internal/runtime/printer"
	transportpkg "github.com/drblury/transflow/internal/runtime/transport"
	registrypkg "github.com/drblury/transflow/transport"
)

type (
	// Domain model
	Sentence        = modelpkg.Sentence
	SentenceBatch   = modelpkg.SentenceBatch
	Hypothesis      = modelpkg.Hypothesis
	History         = modelpkg.History
	Histories       = modelpkg.Histories
	RenderedLine    = modelpkg.RenderedLine
	Search          = modelpkg.Search
	SearchFunc      = modelpkg.SearchFunc
	Printer         = modelpkg.Printer
	PrinterFunc     = modelpkg.PrinterFunc
	OutputCollector = modelpkg.OutputCollector

	// Dispatch
	Dispatcher             = runtimepkg.Dispatcher
	DispatcherDependencies = runtimepkg.DispatcherDependencies
	DispatchState          = runtimepkg.DispatchState
	DispatchContext        = runtimepkg.DispatchContext
	DispatchHooks          = runtimepkg.DispatchHooks
	DispatchMetrics        = runtimepkg.DispatchMetrics
	DispatchStats          = runtimepkg.DispatchStats

	// Engine faults
	Fault            = runtimepkg.Fault
	FaultCategory    = runtimepkg.FaultCategory
	FaultClassifier  = runtimepkg.FaultClassifier
	AcceleratorFault = runtimepkg.AcceleratorFault

	// Ordered output
	Collector        = collectorpkg.Collector
	CollectorOption  = collectorpkg.Option
	CollectorStats   = collectorpkg.Stats
	CollectorMetrics = collectorpkg.Metrics
	Emitter          = collectorpkg.Emitter
	EmitterFunc      = collectorpkg.EmitterFunc
	WriterEmitter    = collectorpkg.WriterEmitter
	MultiEmitter     = collectorpkg.MultiEmitter
	SQLiteEmitter    = collectorpkg.SQLiteEmitter
	PublisherEmitter = runtimepkg.PublisherEmitter
	LineCodec        = runtimepkg.LineCodec

	// Service mode
	Config                      = configpkg.Config
	Service                     = runtimepkg.Service
	ServiceDependencies         = runtimepkg.ServiceDependencies
	DispatchHandlerRegistration = runtimepkg.DispatchHandlerRegistration
	MiddlewareBuilder           = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration      = runtimepkg.MiddlewareRegistration
	BatchPayload                = runtimepkg.BatchPayload
	StatsResponse               = runtimepkg.StatsResponse
	UnprocessableBatchError     = runtimepkg.UnprocessableBatchError
	ConfigValidationError       = errspkg.ConfigValidationError

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Transports
	Transport             = transportpkg.Transport
	TransportFactory      = transportpkg.Factory
	TransportFactoryFunc  = transportpkg.FactoryFunc
	TransportBuilder      = registrypkg.Builder
	TransportConfig       = registrypkg.Config
	TransportRegistry     = registrypkg.Registry
	TransportCapabilities = registrypkg.Capabilities
)

var (
	NewDispatcher          = runtimepkg.NewDispatcher
	DefaultFaultClassifier = runtimepkg.DefaultFaultClassifier
	LoggingHooks           = runtimepkg.LoggingHooks
	AlertingHooks          = runtimepkg.AlertingHooks
	NewDispatchMetrics     = runtimepkg.NewDispatchMetrics
	NewDispatchStats       = runtimepkg.NewDispatchStats

	NewCollector            = collectorpkg.New
	WithFirstLine           = collectorpkg.WithFirstLine
	WithCollectorLogger     = collectorpkg.WithLogger
	WithCollectorMetrics    = collectorpkg.WithMetrics
	NewCollectorMetrics     = collectorpkg.NewMetrics
	NewWriterEmitter        = collectorpkg.NewWriterEmitter
	NewFileEmitter          = collectorpkg.NewFileEmitter
	OpenSQLiteEmitter       = collectorpkg.OpenSQLiteEmitter
	NewPublisherEmitter     = runtimepkg.NewPublisherEmitter
	LineCodecFor            = runtimepkg.LineCodecFor
	IsCollectorClosed       = collectorpkg.IsClosed
	NewPrinter              = printerpkg.New
	NumberLines             = modelpkg.Number
	SplitBatches            = modelpkg.Split
	ValidateBatchPayload    = runtimepkg.ValidateBatchPayload
	DecodeBatch             = runtimepkg.DecodeBatch
	NewBatchMessage         = runtimepkg.NewBatchMessage
	PublishBatch            = runtimepkg.PublishBatch
	NewService              = runtimepkg.NewService
	TryNewService           = runtimepkg.TryNewService
	RegisterDispatchHandler = runtimepkg.RegisterDispatchHandler
	ValidateConfig          = configpkg.ValidateConfig
	LoadConfigFile          = configpkg.LoadFile

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Import transports via _ "github.com/drblury/transflow/transport/transports"
	// or one sub-package per transport.
	DefaultTransportRegistry = registrypkg.DefaultRegistry
	RegisterTransport        = registrypkg.Register
	BuildTransport           = registrypkg.Build
	GetCapabilities          = registrypkg.GetCapabilities
	NewRegistryFactory       = transportpkg.NewRegistryFactory

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrSearchRequired     = errspkg.ErrSearchRequired
	ErrPrinterRequired    = errspkg.ErrPrinterRequired
	ErrCollectorRequired  = errspkg.ErrCollectorRequired
	ErrEmitterRequired    = errspkg.ErrEmitterRequired
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrServiceRequired    = errspkg.ErrServiceRequired
	ErrCollectorClosed    = errspkg.ErrCollectorClosed
	ErrLineAlreadyWritten = errspkg.ErrLineAlreadyWritten
	ErrPositionalMismatch = errspkg.ErrPositionalMismatch
	ErrOutOfMemory        = errspkg.ErrOutOfMemory
	ErrBatchTooLarge      = errspkg.ErrBatchTooLarge
	ErrServiceClosed      = errspkg.ErrServiceClosed
	ErrUnknownTransport   = registrypkg.ErrUnknownTransport

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	DiscardLogger        = loggingpkg.Discard

	NewMetadata = metadatapkg.New

	NewID = idspkg.New
)

// Dispatch states, in lifecycle order.
const (
	StatePending    = runtimepkg.StatePending
	StateDecoding   = runtimepkg.StateDecoding
	StatePublishing = runtimepkg.StatePublishing
	StateDone       = runtimepkg.StateDone
	StateFatal      = runtimepkg.StateFatal
)

// Fault categories reported before a decode fault terminates the process.
const (
	FaultAccelerator  = runtimepkg.FaultAccelerator
	FaultMemory       = runtimepkg.FaultMemory
	FaultRuntime      = runtimepkg.FaultRuntime
	FaultUnclassified = runtimepkg.FaultUnclassified

	ExitCodeDecodeFault = runtimepkg.ExitCodeDecodeFault
)

// Metadata keys carried on batch and output line messages.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyDispatchID    = metadatapkg.KeyDispatchID
	MetadataKeyLineNum       = metadatapkg.KeyLineNum
	MetadataKeyFirstLine     = metadatapkg.KeyFirstLine
	MetadataKeyBatchSize     = metadatapkg.KeyBatchSize
	MetadataKeyEnqueuedAt    = metadatapkg.KeyEnqueuedAt
)
