package runtime

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/drblury/transflow/internal/runtime/ids"
	"github.com/drblury/transflow/internal/runtime/jsoncodec"
	metadatapkg "github.com/drblury/transflow/internal/runtime/metadata"
	"github.com/drblury/transflow/internal/runtime/model"
)

const batchSchemaURL = "https://github.com/drblury/transflow/schemas/batch.schema.json"

//go:embed schemas/batch.schema.json
var batchSchemaJSON []byte

var batchSchema = mustCompileBatchSchema()

func mustCompileBatchSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(batchSchemaURL, bytes.NewReader(batchSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add batch schema: %v", err))
	}
	schema, err := compiler.Compile(batchSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile batch schema: %v", err))
	}
	return schema
}

// BatchPayload is the wire form of a batch on the input topic:
//
//	{"sentences":[{"line_num":5,"text":"hello"}]}
type BatchPayload struct {
	Sentences []model.Sentence `json:"sentences"`
}

var errLinesNotIncreasing = errors.New("line numbers must be strictly increasing")

// ValidateBatchPayload checks payload against the batch schema and returns the
// decoded batch.
func ValidateBatchPayload(payload []byte) (model.SentenceBatch, error) {
	var doc any
	if err := jsoncodec.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := batchSchema.Validate(doc); err != nil {
		return nil, err
	}

	var decoded BatchPayload
	if err := jsoncodec.Unmarshal(payload, &decoded); err != nil {
		return nil, err
	}
	for i := 1; i < len(decoded.Sentences); i++ {
		if decoded.Sentences[i].LineNum <= decoded.Sentences[i-1].LineNum {
			return nil, fmt.Errorf("%w: %d follows %d", errLinesNotIncreasing, decoded.Sentences[i].LineNum, decoded.Sentences[i-1].LineNum)
		}
	}
	return model.SentenceBatch(decoded.Sentences), nil
}

// DecodeBatch turns an input message into a batch. Any failure is reported as
// an *UnprocessableBatchError.
func DecodeBatch(msg *message.Message) (model.SentenceBatch, error) {
	batch, err := ValidateBatchPayload(msg.Payload)
	if err != nil {
		return nil, &UnprocessableBatchError{MessageUUID: msg.UUID, err: err}
	}
	return batch, nil
}

// NewBatchMessage encodes batch for the input topic and stamps the batch
// bounds and enqueue time into the metadata.
func NewBatchMessage(batch model.SentenceBatch, md metadatapkg.Metadata) (*message.Message, error) {
	sentences := []model.Sentence(batch)
	if sentences == nil {
		sentences = []model.Sentence{}
	}
	payload, err := jsoncodec.Marshal(BatchPayload{Sentences: sentences})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	msg := message.NewMessage(ids.New(), payload)
	msg.Metadata = md.
		With(metadatapkg.KeyContentType, "application/json").
		With(metadatapkg.KeyFirstLine, strconv.Itoa(batch.FirstLine())).
		With(metadatapkg.KeyBatchSize, strconv.Itoa(len(batch))).
		With(metadatapkg.KeyEnqueuedAt, time.Now().UTC().Format(time.RFC3339Nano)).
		ToWatermill()
	return msg, nil
}
