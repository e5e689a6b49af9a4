// Command transflow translates a text file line by line with a reference
// engine. Lines are split into batches that a pool of workers dispatches
// concurrently; the output keeps the input's line order.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/transflow/engine/echo"
	"github.com/drblury/transflow/engine/flaky"
	runtimepkg "github.com/drblury/transflow/internal/runtime"
	"github.com/drblury/transflow/internal/runtime/collector"
	configpkg "github.com/drblury/transflow/internal/runtime/config"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
	"github.com/drblury/transflow/internal/runtime/model"
	"github.com/drblury/transflow/internal/runtime/printer"
)

const maxLineBytes = 1 << 20

var (
	osExit = os.Exit
	// decodeExit terminates the process on a fatal decode fault.
	decodeExit = os.Exit
)

func main() {
	osExit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	input       string
	output      string
	batchSize   int
	workers     int
	firstLine   int
	nbest       bool
	upper       bool
	metricsAddr string
	fault       string
	faultOn     int64
	verbose     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("transflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file")
	fs.StringVar(&opts.input, "input", "-", "input file, - for stdin")
	fs.StringVar(&opts.output, "output", "-", "output file, - for stdout")
	fs.IntVar(&opts.batchSize, "batch-size", 0, "sentences per batch (default from config)")
	fs.IntVar(&opts.workers, "workers", 0, "concurrent dispatches (default from config)")
	fs.IntVar(&opts.firstLine, "first-line", -1, "line number of the first input line (default from config)")
	fs.BoolVar(&opts.nbest, "nbest", false, "print every hypothesis as 'line ||| text ||| score'")
	fs.BoolVar(&opts.upper, "upper", false, "upper-case the echoed output")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&opts.fault, "inject-fault", "", "inject an engine fault: accelerator, memory, runtime or panic")
	fs.Int64Var(&opts.faultOn, "fault-batch", 1, "engine call that fails when -inject-fault is set")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func loadConfig(opts options) (*configpkg.Config, error) {
	conf := &configpkg.Config{}
	if opts.configPath != "" {
		loaded, err := configpkg.LoadFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		conf = loaded
	}
	if opts.batchSize > 0 {
		conf.BatchSize = opts.batchSize
	}
	if opts.workers > 0 {
		conf.Workers = opts.workers
	}
	if opts.firstLine >= 0 {
		conf.FirstLine = opts.firstLine
	}
	if opts.nbest {
		conf.NBest = true
	}
	conf.ApplyDefaults()
	return conf, nil
}

func newEngine(opts options) (model.Search, error) {
	var echoOpts []echo.Option
	if opts.upper {
		echoOpts = append(echoOpts, echo.Upper())
	}
	var engine model.Search = echo.New(echoOpts...)
	if opts.fault != "" {
		kind, err := flaky.ParseKind(opts.fault)
		if err != nil {
			return nil, err
		}
		engine = flaky.New(engine, kind, opts.faultOn)
	}
	return engine, nil
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}

func newEmitter(ctx context.Context, conf *configpkg.Config, path string, stdout io.Writer) (collector.Emitter, error) {
	var primary collector.Emitter
	switch {
	case path != "" && path != "-":
		f, err := collector.NewFileEmitter(path)
		if err != nil {
			return nil, err
		}
		primary = f
	case conf.OutputFile != "":
		f, err := collector.NewFileEmitter(conf.OutputFile)
		if err != nil {
			return nil, err
		}
		primary = f
	default:
		primary = collector.NewWriterEmitter(stdout)
	}

	if conf.OutputSQLite == "" {
		return primary, nil
	}
	db, err := collector.OpenSQLiteEmitter(ctx, conf.OutputSQLite)
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("open output database: %w", err)
	}
	return collector.MultiEmitter{primary, db}, nil
}

func readSentences(r io.Reader, firstLine int) ([]model.Sentence, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return model.Number(lines, firstLine), nil
}

func startMetricsServer(addr string, gatherer prometheus.Gatherer, logger loggingpkg.ServiceLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", err, loggingpkg.LogFields{"addr": addr})
		}
	}()
	return srv
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	conf, err := loadConfig(opts)
	if err != nil {
		logger.Error("Invalid configuration", err, nil)
		return 2
	}
	engine, err := newEngine(opts)
	if err != nil {
		logger.Error("Invalid engine options", err, nil)
		return 2
	}

	in, err := openInput(opts.input, stdin)
	if err != nil {
		logger.Error("Cannot open input", err, loggingpkg.LogFields{"input": opts.input})
		return 1
	}
	sentences, err := readSentences(in, conf.FirstLine)
	_ = in.Close()
	if err != nil {
		logger.Error("Cannot read input", err, loggingpkg.LogFields{"input": opts.input})
		return 1
	}

	registry := prometheus.NewRegistry()
	collectorMetrics := collector.NewMetrics(registry)
	dispatchMetrics := runtimepkg.NewDispatchMetrics(registry)
	if err := errors.Join(collectorMetrics.Register(), dispatchMetrics.Register()); err != nil {
		logger.Error("Cannot register metrics", err, nil)
		return 1
	}
	if opts.metricsAddr != "" {
		srv := startMetricsServer(opts.metricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	emitter, err := newEmitter(ctx, conf, opts.output, stdout)
	if err != nil {
		logger.Error("Cannot open output", err, loggingpkg.LogFields{"output": opts.output})
		return 1
	}
	coll, err := collector.New(emitter,
		collector.WithFirstLine(conf.FirstLine),
		collector.WithLogger(logger.With(loggingpkg.LogFields{"component": "collector"})),
		collector.WithMetrics(collectorMetrics),
	)
	if err != nil {
		logger.Error("Cannot create collector", err, nil)
		return 1
	}

	dispatcher, err := runtimepkg.NewDispatcher(runtimepkg.DispatcherDependencies{
		Search:      engine,
		Printer:     printer.New(conf.NBest),
		Collector:   coll,
		Logger:      logger.With(loggingpkg.LogFields{"component": "dispatcher"}),
		Metrics:     dispatchMetrics,
		Diagnostics: stderr,
		Exit:        decodeExit,
	})
	if err != nil {
		logger.Error("Cannot create dispatcher", err, nil)
		return 1
	}

	batches := model.Split(sentences, conf.BatchSize)
	logger.Info("Translating", loggingpkg.LogFields{
		"lines":   len(sentences),
		"batches": len(batches),
		"workers": conf.Workers,
	})

	queue := make(chan model.SentenceBatch)
	var wg sync.WaitGroup
	for i := 0; i < conf.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range queue {
				dispatcher.Dispatch(ctx, batch)
			}
		}()
	}
	for _, batch := range batches {
		queue <- batch
	}
	close(queue)
	wg.Wait()

	if err := coll.Close(ctx); err != nil {
		logger.Error("Writing output failed", err, nil)
		return 1
	}
	return 0
}
