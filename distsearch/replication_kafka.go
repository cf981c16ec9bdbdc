package distsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// kafkaWriter is the subset of *kafka.Writer this package depends on,
// narrowed so tests can substitute a mock broker.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReplicator publishes IndexWebpages batches to a per-peer Kafka
// topic instead of dialing the peer directly, so a live-index replica
// can fall behind and catch up by re-consuming rather than requiring
// the coordinator to retry a failed RPC. One Writer is kept per peer
// address, matching the peer-addr-as-topic convention below.
type KafkaReplicator struct {
	brokers []string
	logger  *zap.Logger
	writers map[string]kafkaWriter

	// newWriter is overridden in tests to avoid dialing a real broker.
	newWriter func(brokers []string, topic string) kafkaWriter
}

// NewKafkaReplicator dials no brokers eagerly; Writers are created
// lazily per peer on first use and reused across calls.
func NewKafkaReplicator(brokers []string, logger *zap.Logger) *KafkaReplicator {
	return &KafkaReplicator{
		brokers: brokers,
		logger:  logger,
		writers: make(map[string]kafkaWriter),
		newWriter: func(brokers []string, topic string) kafkaWriter {
			return &kafka.Writer{
				Addr:     kafka.TCP(brokers...),
				Topic:    topic,
				Balancer: &kafka.LeastBytes{},
			}
		},
	}
}

// peerTopic derives a stable topic name from a peer address so each
// live-index replica can consume only the writes addressed to it.
func peerTopic(peerAddr string) string {
	return "wayfarer.index." + strings.NewReplacer(":", "_", "/", "_").Replace(peerAddr)
}

func (k *KafkaReplicator) writerFor(peerAddr string) kafkaWriter {
	if w, ok := k.writers[peerAddr]; ok {
		return w
	}
	w := k.newWriter(k.brokers, peerTopic(peerAddr))
	k.writers[peerAddr] = w
	return w
}

// ReplicateOne satisfies Replicator.ReplicateOne: it JSON-encodes pages
// as a single Kafka message and reports success once the broker has
// acked the write, which is the closest Kafka analogue to the
// synchronous peer-ack the Replicator's consistency protocol expects.
func (k *KafkaReplicator) ReplicateOne(ctx context.Context, peerAddr string, pages []interface{}) error {
	body, err := json.Marshal(pages)
	if err != nil {
		return fmt.Errorf("distsearch: marshal replication batch: %w", err)
	}
	w := k.writerFor(peerAddr)
	if err := w.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		k.logger.Warn("kafka replication write failed",
			zap.String("peer", peerAddr), zap.Error(err))
		return err
	}
	return nil
}

// Close flushes and closes every Writer opened so far.
func (k *KafkaReplicator) Close() error {
	var firstErr error
	for _, w := range k.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
