package router

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/kafkax"
)

// ErrNoBrokers is returned when a KafkaLog is created without brokers.
var ErrNoBrokers = errors.New("kafka brokers not configured")

// KafkaLog publishes critical events to one topic keyed by aggregate id. The Hash
// balancer pins every aggregate to a partition, which keeps its events in commit order.
type KafkaLog struct {
	brokers []string
	topic   string
	writer  *kafka.Writer
}

// NewKafkaLog creates the writer. brokers is a comma separated list.
func NewKafkaLog(brokers, topic string) (*KafkaLog, error) {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(list...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaLog{brokers: list, topic: topic, writer: writer}, nil
}

func (l *KafkaLog) Publish(ctx context.Context, event eventstore.Event) error {
	value, err := encodeEvent(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: kafkax.HeaderEventID, Value: []byte(event.EventID)},
			{Key: kafkax.HeaderEventType, Value: []byte(event.EventType)},
			{Key: kafkax.HeaderAggregateID, Value: []byte(event.AggregateID)},
			{Key: kafkax.HeaderVersion, Value: []byte(strconv.FormatUint(event.Version, 10))},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)

	if err := l.writer.WriteMessages(ctx, msg); err != nil {
		return storageUnavailable(err)
	}

	return nil
}

// Reader joins the consumer group. Offsets are committed explicitly through Commit.
func (l *KafkaLog) Reader(group string) (CriticalReader, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  l.brokers,
		GroupID:  group,
		Topic:    l.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  250 * time.Millisecond,
	})

	return &kafkaLogReader{reader: reader, pending: make(map[string]kafka.Message)}, nil
}

func (l *KafkaLog) Close() error {
	return l.writer.Close()
}

type kafkaLogReader struct {
	reader  *kafka.Reader
	mu      sync.Mutex
	pending map[string]kafka.Message
}

func (r *kafkaLogReader) Next(ctx context.Context) (context.Context, eventstore.Event, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx, eventstore.Event{}, ctx.Err()
		}

		return ctx, eventstore.Event{}, storageUnavailable(err)
	}

	event, err := decodeEvent(msg.Value)
	if err != nil {
		return ctx, eventstore.Event{}, err
	}

	r.mu.Lock()
	r.pending[event.EventID] = msg
	r.mu.Unlock()

	return kafkax.ExtractTraceContext(ctx, msg), event, nil
}

func (r *kafkaLogReader) Commit(ctx context.Context, event eventstore.Event) error {
	r.mu.Lock()
	msg, ok := r.pending[event.EventID]
	delete(r.pending, event.EventID)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := r.reader.CommitMessages(ctx, msg); err != nil {
		return storageUnavailable(err)
	}

	return nil
}

func (r *kafkaLogReader) Close() error {
	return r.reader.Close()
}

var _ CriticalLog = (*KafkaLog)(nil)
