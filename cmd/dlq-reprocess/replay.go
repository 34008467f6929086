package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookstore/internal/service/outbox"
)

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var errNotDLQEnvelope = errors.New("message is not an outbox dlq envelope")

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer вычитывает DLQ по партициям и возвращает события заказов в рабочий topic.
type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	now      func() time.Time
	logger   *log.Entry
}

func newReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) *replayer {
	return &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.WithField("component", "dlq-reprocess"),
	}
}

func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.client == nil || r.consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.cfg.limit - total.processed
		if remaining <= 0 {
			break
		}
		stats, err := r.partition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// partition обрабатывает сообщения, лежавшие в партиции на момент старта.
func (r *replayer) partition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.processed++
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, err := r.buildReplay(msg)
	if err != nil {
		stats.skipped++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}

	if !r.cfg.execute {
		entry.WithFields(log.Fields{
			"target_topic": replay.Topic,
			"event_type":   eventTypeHeader(replay),
		}).Info("dlq replay candidate")
		stats.replayed++
		return nil
	}

	if _, _, err := r.producer.SendMessage(replay); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	stats.replayed++
	return nil
}

// buildReplay восстанавливает исходный outbox envelope из DLQ-сообщения.
func (r *replayer) buildReplay(msg *sarama.ConsumerMessage) (*sarama.ProducerMessage, error) {
	wrapper, err := kafka.DecodeEnvelope(msg.Value)
	if err != nil {
		return nil, err
	}

	var dlq outbox.DLQEnvelope
	if err := json.Unmarshal(wrapper.Payload, &dlq); err != nil {
		return nil, fmt.Errorf("decode dlq payload: %w", err)
	}
	if len(dlq.Payload) == 0 || dlq.EventType == "" {
		return nil, errNotDLQEnvelope
	}

	original := kafka.OutboxEnvelope{
		ID:            firstNonEmpty(dlq.OutboxID, wrapper.ID),
		AggregateType: firstNonEmpty(dlq.AggregateType, wrapper.AggregateType),
		AggregateID:   firstNonEmpty(dlq.AggregateID, wrapper.AggregateID),
		EventType:     dlq.EventType,
		Payload:       dlq.Payload,
		PublishedAt:   r.now(),
	}
	value, err := json.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("encode replay envelope: %w", err)
	}

	return &sarama.ProducerMessage{
		Topic:     r.cfg.targetTopic,
		Key:       sarama.StringEncoder(original.Key()),
		Value:     sarama.ByteEncoder(value),
		Timestamp: original.PublishedAt,
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderEventType), Value: []byte(original.EventType)},
			{Key: []byte(kafka.HeaderAggregateType), Value: []byte(original.AggregateType)},
			{Key: []byte(kafka.HeaderOutboxID), Value: []byte(original.ID)},
			{Key: []byte(kafka.HeaderReplayedFrom), Value: []byte(fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))},
		},
	}, nil
}

func eventTypeHeader(msg *sarama.ProducerMessage) string {
	for _, h := range msg.Headers {
		if string(h.Key) == kafka.HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
