package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/transflow/internal/runtime/errors"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
pubsub_system: kafka
kafka_brokers: [localhost:9092, localhost:9093]
kafka_consumer_group: translators
workers: 8
batch_size: 16
first_line: 1
nbest: true
output_encoding: proto
metrics_enabled: true
metrics_port: 9090
`))
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.PubSubSystem)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.KafkaBrokers)
	assert.Equal(t, "translators", cfg.KafkaConsumerGroup)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 1, cfg.FirstLine)
	assert.True(t, cfg.NBest)
	assert.Equal(t, "proto", cfg.OutputEncoding)
	assert.Equal(t, DefaultInputTopic, cfg.InputTopic)
	assert.Equal(t, 9090, cfg.MetricsPort)
}

func TestParseEmptyDocumentUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPubSubSystem, cfg.PubSubSystem)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("wrokers: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}

func TestParseReturnsValidationError(t *testing.T) {
	_, err := Parse([]byte("pubsub_system: nats\n"))
	require.Error(t, err)

	var cfgErr errspkg.ConfigValidationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "nats: URL is required")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pubsub_system: io\nio_file: lines.log\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "io", cfg.PubSubSystem)
	assert.Equal(t, "lines.log", cfg.IOFile)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
