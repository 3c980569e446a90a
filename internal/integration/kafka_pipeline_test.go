//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/adapter/kafka"
	"github.com/couchcryptid/occupancy-service/internal/config"
	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/engine"
	"github.com/couchcryptid/occupancy-service/internal/feed"
	"github.com/couchcryptid/occupancy-service/internal/observability"
	"github.com/couchcryptid/occupancy-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testReadingsTopic = "test-occupancy-readings"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("occupancy-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaReadingsTopic: testReadingsTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

// TestKafkaReaderWriter verifies that a reading published by kafka.Writer is
// extracted by kafka.Reader with its key, headers and commit callback.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	cfg := testConfig(broker, "test-reader")

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	id, err := writer.Submit(ctx, domain.RawReading{Floor: "4", Count: 12, Timestamp: int64(1733332800000)})
	require.NoError(t, err)

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawMessage
	for len(batch) == 0 {
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
	}
	require.Len(t, batch, 1)

	msg := batch[0]
	assert.Equal(t, []byte("4"), msg.Key)
	assert.Equal(t, id, msg.Headers[kafka.ReadingIDHeader])
	assert.Equal(t, testReadingsTopic, msg.Topic)
	require.NotNil(t, msg.Commit, "commit callback should be set")
	require.NoError(t, msg.Commit(ctx))

	raw, err := domain.DecodeMessage(msg)
	require.NoError(t, err)
	readings, dropped := domain.Normalize([]domain.RawReading{raw})
	assert.Zero(t, dropped)
	assert.Equal(t, []domain.Reading{{Floor: "4", Count: 12, Timestamp: 1733332800000}}, readings)
}

// TestPipelineEndToEnd wires Kafka -> pipeline -> feed -> engine and checks
// the published view, including a malformed message that must be skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReadingsTopic)
	cfg := testConfig(broker, "test-pipeline")

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.PublishBatch(ctx, []domain.RawReading{
		{Floor: "1", Count: 400, Timestamp: int64(1000)},
		{Floor: "4", Count: 60, Timestamp: int64(1000)},
		{Floor: "4", Count: 70, Timestamp: int64(2000)},
		{Floor: "2", Count: -5, Timestamp: int64(2000)},
	}))

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testReadingsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Value: []byte("not json")}))

	metrics := observability.NewMetricsForTesting()
	readings := feed.New(0)
	eng := engine.New(domain.DefaultBuilding(), time.UTC, discardLogger(), metrics)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	p := pipeline.New(reader, pipeline.NewDecoder(), pipeline.NewFeedLoader(readings), discardLogger(), metrics, "kafka", 10)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = p.Run(runCtx) }()
	go func() { _ = eng.Run(runCtx, readings) }()

	require.Eventually(t, func() bool {
		return readings.Len() == 4
	}, 60*time.Second, 100*time.Millisecond, "pipeline should append every decodable reading")

	require.Eventually(t, func() bool {
		state, ok := eng.Current()
		return ok && state.Derived.Readings == 3
	}, 10*time.Second, 50*time.Millisecond)

	vm := eng.View("4")
	assert.Equal(t, 470, vm.TotalCount)
	assert.Equal(t, "4", vm.ActiveSeriesLabel)
	require.Len(t, vm.ActiveSeries, 2)
	assert.Equal(t, 70, vm.ActiveSeries[1].Count)

	state, _ := eng.Current()
	assert.Equal(t, 1, state.Derived.Dropped)
}
