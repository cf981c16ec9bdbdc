package distsearch

import (
	"context"
	"encoding/json"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockKafkaWriter struct {
	messages  []kafka.Message
	failWrite bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.failWrite {
		return context.DeadlineExceeded
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error { return nil }

func TestKafkaReplicatorPublishesBatch(t *testing.T) {
	mock := &mockKafkaWriter{}
	r := NewKafkaReplicator([]string{"localhost:9092"}, zap.NewNop())
	r.newWriter = func(brokers []string, topic string) kafkaWriter { return mock }

	err := r.ReplicateOne(context.Background(), "10.0.0.1:7000", []interface{}{"page-a", "page-b"})
	require.NoError(t, err)
	require.Len(t, mock.messages, 1)

	var decoded []string
	require.NoError(t, json.Unmarshal(mock.messages[0].Value, &decoded))
	require.Equal(t, []string{"page-a", "page-b"}, decoded)
}

func TestKafkaReplicatorReusesWriterPerPeer(t *testing.T) {
	built := 0
	r := NewKafkaReplicator([]string{"localhost:9092"}, zap.NewNop())
	r.newWriter = func(brokers []string, topic string) kafkaWriter {
		built++
		return &mockKafkaWriter{}
	}

	require.NoError(t, r.ReplicateOne(context.Background(), "peer-a", []interface{}{1}))
	require.NoError(t, r.ReplicateOne(context.Background(), "peer-a", []interface{}{2}))
	require.NoError(t, r.ReplicateOne(context.Background(), "peer-b", []interface{}{3}))
	require.Equal(t, 2, built)
}

func TestKafkaReplicatorSurfacesWriteError(t *testing.T) {
	r := NewKafkaReplicator([]string{"localhost:9092"}, zap.NewNop())
	r.newWriter = func(brokers []string, topic string) kafkaWriter {
		return &mockKafkaWriter{failWrite: true}
	}

	err := r.ReplicateOne(context.Background(), "peer-a", []interface{}{"x"})
	require.Error(t, err)
}

func TestKafkaReplicatorWiredIntoReplicator(t *testing.T) {
	mock := &mockKafkaWriter{}
	kr := NewKafkaReplicator([]string{"localhost:9092"}, zap.NewNop())
	kr.newWriter = func(brokers []string, topic string) kafkaWriter { return mock }

	rep := NewReplicator(kr.ReplicateOne)
	var wrote []interface{}
	err := rep.IndexWebpages(context.Background(), []interface{}{"doc-1"}, []string{"peer-a"}, 1.0,
		func(pages []interface{}) error { wrote = pages; return nil })
	require.NoError(t, err)
	require.Equal(t, []interface{}{"doc-1"}, wrote)
	require.Len(t, mock.messages, 1)
}
