// Package io provides a file transport: every message is appended as one JSON
// line to a shared log file, and subscribers tail that file.
package io

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/transflow/internal/runtime/jsoncodec"
	"github.com/drblury/transflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "transflow.log"

// DefaultPollInterval is how long a subscriber waits at end of file before
// reading again.
const DefaultPollInterval = 50 * time.Millisecond

// ErrClosed is returned when publishing or subscribing on a closed endpoint.
var ErrClosed = errors.New("io: transport closed")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(filePath, logger), nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return NewSubscriber(filePath, DefaultPollInterval, logger), nil
}

func init() {
	Register()
}

// Register adds the file transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a file transport on cfg.GetIOFile(), or DefaultFilePath.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

type storedMessage struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to a file.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

// NewPublisher returns a publisher appending to filePath.
func NewPublisher(filePath string, logger watermill.LoggerAdapter) *Publisher {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Publisher{filePath: filePath, logger: logger}
}

// Publish writes all messages of one call with a single write, so lines from
// concurrent publishers never interleave.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	var buf []byte
	for _, msg := range messages {
		b, err := jsoncodec.Marshal(storedMessage{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
	}

	f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Subscriber tails a file and delivers the messages of one topic, one at a
// time, waiting for each to be acked or nacked.
type Subscriber struct {
	filePath     string
	pollInterval time.Duration
	logger       watermill.LoggerAdapter

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

// NewSubscriber returns a subscriber reading filePath from the start.
func NewSubscriber(filePath string, pollInterval time.Duration, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Subscriber{
		filePath:     filePath,
		pollInterval: pollInterval,
		logger:       logger,
		closing:      make(chan struct{}),
	}
}

// Subscribe starts tailing the file. The returned channel is closed when ctx
// is done or the subscriber is closed.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.closing
		cancel()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, topic, out)
	}()

	return out, nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	logFields := watermill.LogFields{"file": s.filePath, "topic": topic}
	reader := bufio.NewReader(f)
	var offset int64

	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A partial line is re-read once its newline has been written.
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				s.logger.Error("Failed to seek file", err, logFields)
				return
			}
			reader.Reset(f)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}
		if err != nil {
			s.logger.Error("Failed to read file", err, logFields)
			return
		}
		offset += int64(len(line))

		if !s.deliver(ctx, out, line, topic) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, line []byte, topic string) bool {
	var sm storedMessage
	if err := jsoncodec.Unmarshal(line, &sm); err != nil {
		s.logger.Error("Skipping malformed line", err, watermill.LogFields{"file": s.filePath})
		return true
	}
	if sm.Topic != topic {
		return true
	}

	msg := message.NewMessage(sm.UUID, sm.Payload)
	if sm.Metadata != nil {
		msg.Metadata = sm.Metadata
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}

	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Message nacked", watermill.LogFields{"uuid": msg.UUID, "topic": topic})
	case <-ctx.Done():
		return false
	}
	return true
}

// Close stops every tailing goroutine and waits for them to exit.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
