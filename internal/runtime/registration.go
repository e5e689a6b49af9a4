package runtime

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/transflow/internal/runtime/logging"
)

const defaultDispatchHandlerName = "transflow-dispatch"

// DispatchHandlerRegistration attaches a dispatch handler to an input topic.
// Every registered handler feeds the same dispatcher and collector.
type DispatchHandlerRegistration struct {
	Name       string
	InputTopic string
	// Subscriber defaults to the Service transport.
	Subscriber message.Subscriber
}

// RegisterDispatchHandler consumes cfg.InputTopic in addition to the handler
// NewService registers on the configured input topic.
func RegisterDispatchHandler(svc *Service, cfg DispatchHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerDispatchHandler(cfg)
}

func (s *Service) registerDispatchHandler(cfg DispatchHandlerRegistration) error {
	if cfg.InputTopic == "" {
		return errspkg.ErrTopicRequired
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%s-%s", defaultDispatchHandlerName, cfg.InputTopic)
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = sharedSubscriber{s.subscriber}
	}

	s.router.AddNoPublisherHandler(cfg.Name, cfg.InputTopic, cfg.Subscriber, s.handleBatch)
	return nil
}

// handleBatch turns one input message into one dispatch. Malformed payloads
// are rejected without reaching the dispatcher.
func (s *Service) handleBatch(msg *message.Message) error {
	batch, err := DecodeBatch(msg)
	if err != nil {
		s.dispatcher.reject(msg.Context(), err)
		var unprocessable *UnprocessableBatchError
		if s.Conf.PoisonQueue == "" && errors.As(err, &unprocessable) {
			s.Logger.Error("Dropping unprocessable batch", err, loggingpkg.LogFields{
				"message_uuid": msg.UUID,
			})
			return nil
		}
		return err
	}

	s.dispatcher.dispatch(msg.Context(), batch, enqueueLagMillis(msg.Metadata))
	return nil
}

// sharedSubscriber keeps the router from closing a subscriber that the
// Service still needs, for example a gochannel pub/sub that also carries the
// collector output. Service.Close closes the real subscriber.
type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }
