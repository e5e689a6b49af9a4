package runtime

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadatapkg "github.com/drblury/transflow/internal/runtime/metadata"
	"github.com/drblury/transflow/internal/runtime/model"
)

func TestValidateBatchPayload(t *testing.T) {
	batch, err := ValidateBatchPayload([]byte(`{"sentences":[{"line_num":5,"text":"hello"},{"line_num":6,"text":"world"}]}`))
	require.NoError(t, err)
	assert.Equal(t, model.SentenceBatch{{LineNum: 5, Text: "hello"}, {LineNum: 6, Text: "world"}}, batch)

	empty, err := ValidateBatchPayload([]byte(`{"sentences":[]}`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestValidateBatchPayloadRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: `{`},
		{name: "missing sentences", payload: `{}`},
		{name: "sentences not array", payload: `{"sentences":"a"}`},
		{name: "negative line", payload: `{"sentences":[{"line_num":-1,"text":"a"}]}`},
		{name: "fractional line", payload: `{"sentences":[{"line_num":1.5,"text":"a"}]}`},
		{name: "missing text", payload: `{"sentences":[{"line_num":1}]}`},
		{name: "unknown field", payload: `{"sentences":[],"extra":true}`},
		{name: "duplicate line", payload: `{"sentences":[{"line_num":1,"text":"a"},{"line_num":1,"text":"b"}]}`},
		{name: "decreasing lines", payload: `{"sentences":[{"line_num":2,"text":"a"},{"line_num":1,"text":"b"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateBatchPayload([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestDecodeBatchWrapsErrors(t *testing.T) {
	_, err := DecodeBatch(message.NewMessage("m-9", []byte(`{}`)))

	var unprocessable *UnprocessableBatchError
	require.ErrorAs(t, err, &unprocessable)
	assert.Equal(t, "m-9", unprocessable.MessageUUID)
}

func TestNewBatchMessage(t *testing.T) {
	batch := model.SentenceBatch{{LineNum: 3, Text: "a"}, {LineNum: 4, Text: "b"}}
	md := metadatapkg.New(metadatapkg.KeyCorrelationID, "c-9")

	msg, err := NewBatchMessage(batch, md)
	require.NoError(t, err)

	assert.Equal(t, "3", msg.Metadata.Get(metadatapkg.KeyFirstLine))
	assert.Equal(t, "2", msg.Metadata.Get(metadatapkg.KeyBatchSize))
	assert.Equal(t, "application/json", msg.Metadata.Get(metadatapkg.KeyContentType))
	assert.Equal(t, "c-9", msg.Metadata.Get(metadatapkg.KeyCorrelationID))
	assert.NotEmpty(t, msg.Metadata.Get(metadatapkg.KeyEnqueuedAt))
	assert.NotContains(t, md, metadatapkg.KeyFirstLine)
	assert.JSONEq(t, `{"sentences":[{"line_num":3,"text":"a"},{"line_num":4,"text":"b"}]}`, string(msg.Payload))
}

func TestNewBatchMessageEmptyBatch(t *testing.T) {
	msg, err := NewBatchMessage(nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentences":[]}`, string(msg.Payload))
	assert.Equal(t, "-1", msg.Metadata.Get(metadatapkg.KeyFirstLine))

	decoded, err := DecodeBatch(msg)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
