package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
	"github.com/drblury/transflow/internal/runtime/ids"
	"github.com/drblury/transflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/transflow/internal/runtime/metadata"
	"github.com/drblury/transflow/internal/runtime/model"
)

// LineCodec encodes rendered lines for the output topic.
type LineCodec interface {
	ContentType() string
	Encode(line model.RenderedLine) ([]byte, error)
	Decode(payload []byte) (model.RenderedLine, error)
}

// JSONLineCodec encodes {"line_num":5,"text":"..."}.
type JSONLineCodec struct{}

func (JSONLineCodec) ContentType() string { return "application/json" }

func (JSONLineCodec) Encode(line model.RenderedLine) ([]byte, error) {
	return jsoncodec.Marshal(line)
}

func (JSONLineCodec) Decode(payload []byte) (model.RenderedLine, error) {
	var line model.RenderedLine
	err := jsoncodec.Unmarshal(payload, &line)
	return line, err
}

// ProtoLineCodec encodes each line as a binary google.protobuf.Struct with
// the fields line_num and text.
type ProtoLineCodec struct{}

func (ProtoLineCodec) ContentType() string { return "application/x-protobuf" }

func (ProtoLineCodec) Encode(line model.RenderedLine) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"line_num": line.LineNum,
		"text":     line.Text,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func (ProtoLineCodec) Decode(payload []byte) (model.RenderedLine, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(payload, &st); err != nil {
		return model.RenderedLine{}, err
	}
	fields := st.GetFields()
	num, ok := fields["line_num"]
	if !ok {
		return model.RenderedLine{}, errors.New("missing line_num")
	}
	return model.RenderedLine{
		LineNum: int(num.GetNumberValue()),
		Text:    fields["text"].GetStringValue(),
	}, nil
}

// LineCodecFor maps the output_encoding setting to a codec.
func LineCodecFor(encoding string) (LineCodec, error) {
	switch encoding {
	case "", "json":
		return JSONLineCodec{}, nil
	case "proto":
		return ProtoLineCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown output encoding %q", encoding)
	}
}

// PublisherEmitter publishes one message per line on the output topic. It
// satisfies collector.Emitter, so lines leave in collector order.
type PublisherEmitter struct {
	publisher message.Publisher
	topic     string
	codec     LineCodec
}

func NewPublisherEmitter(publisher message.Publisher, topic string, codec LineCodec) (*PublisherEmitter, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if codec == nil {
		codec = JSONLineCodec{}
	}
	return &PublisherEmitter{publisher: publisher, topic: topic, codec: codec}, nil
}

func (e *PublisherEmitter) Emit(lineNum int, text string) error {
	payload, err := e.codec.Encode(model.RenderedLine{LineNum: lineNum, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode line %d: %w", lineNum, err)
	}
	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata = metadatapkg.New(metadatapkg.KeyContentType, e.codec.ContentType()).
		WithLineNum(lineNum).
		ToWatermill()
	return e.publisher.Publish(e.topic, msg)
}

// Close is a no-op; the publisher belongs to whoever created it.
func (e *PublisherEmitter) Close() error {
	return nil
}

// PublishBatch enqueues batch on topic.
func PublishBatch(ctx context.Context, publisher message.Publisher, topic string, batch model.SentenceBatch, md metadatapkg.Metadata) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := NewBatchMessage(batch, md)
	if err != nil {
		return err
	}
	return publishBatchMessage(ctx, publisher, topic, msg)
}

func publishBatchMessage(ctx context.Context, publisher message.Publisher, topic string, msg *message.Message) error {
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}

// PublishBatch enqueues batch on the configured input topic. Batches larger
// than the transport's message size limit are rejected before publishing.
func (s *Service) PublishBatch(ctx context.Context, batch model.SentenceBatch, md metadatapkg.Metadata) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if s.publisher == nil {
		return errspkg.ErrPublisherRequired
	}

	msg, err := NewBatchMessage(batch, md)
	if err != nil {
		return err
	}
	if caps := s.transport.Capabilities; !caps.Fits(len(msg.Payload)) {
		return fmt.Errorf("%w: %d bytes exceeds the %s limit of %d; split the batch",
			errspkg.ErrBatchTooLarge, len(msg.Payload), caps.Name, caps.MaxMessageSize)
	}
	return publishBatchMessage(ctx, s.publisher, s.Conf.InputTopic, msg)
}
