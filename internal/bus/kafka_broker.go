package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ripplehq/ripple/backend/internal/metrics"
)

// KafkaConfig holds configuration for the Kafka broker.
type KafkaConfig struct {
	Brokers         []string
	ConnectAttempts int           // bounded startup retries before degrading
	ConnectDelay    time.Duration // fixed backoff between attempts
	CommitInterval  time.Duration // cursor flush period (at-least-once window)
}

// KafkaBroker implements MessageBroker using Apache Kafka via
// segmentio/kafka-go. A shared writer serves all publishes; each
// subscription owns a consumer-group reader with its own cursor.
type KafkaBroker struct {
	config  KafkaConfig
	writer  *kafka.Writer
	mu      sync.Mutex
	readers map[string]*kafkaSubscription
	state   atomic.Int32
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
}

type kafkaSubscription struct {
	id      string
	reader  *kafka.Reader
	handler EventHandler
	cancel  context.CancelFunc
}

// NewKafkaBroker creates a KafkaBroker. Call Connect before serving traffic
// and Close to stop all consumers and the producer.
func NewKafkaBroker(config KafkaConfig) (*KafkaBroker, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker address is required")
	}
	if config.ConnectAttempts <= 0 {
		config.ConnectAttempts = 10
	}
	if config.ConnectDelay <= 0 {
		config.ConnectDelay = 5 * time.Second
	}
	if config.CommitInterval <= 0 {
		config.CommitInterval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.Hash{}, // keyed events keep per-key order
		BatchTimeout: 10 * time.Millisecond,
		Async:        false,
	}

	b := &KafkaBroker{
		config:  config,
		writer:  writer,
		readers: make(map[string]*kafkaSubscription),
		ctx:     ctx,
		cancel:  cancel,
	}
	b.state.Store(int32(StateAttempting))
	return b, nil
}

// Connect dials the brokers with bounded fixed-backoff retries. If every
// attempt fails the broker enters the Degraded state and the error is
// returned; the calling service should log it and keep serving — Publish
// then fails fast instead of blocking.
func (b *KafkaBroker) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= b.config.ConnectAttempts; attempt++ {
		log.Printf("bus: connecting to Kafka (attempt %d/%d)", attempt, b.config.ConnectAttempts)

		if err := b.dial(ctx); err != nil {
			lastErr = err
			log.Printf("bus: failed to connect to Kafka: %v", err)

			select {
			case <-ctx.Done():
				b.state.Store(int32(StateDegraded))
				return ctx.Err()
			case <-time.After(b.config.ConnectDelay):
			}
			continue
		}

		b.state.Store(int32(StateConnected))
		log.Printf("bus: connected to Kafka brokers %v", b.config.Brokers)
		return nil
	}

	b.state.Store(int32(StateDegraded))
	return fmt.Errorf("exhausted %d Kafka connect attempts: %w", b.config.ConnectAttempts, lastErr)
}

func (b *KafkaBroker) dial(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.config.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		conn.Close()
		return nil
	}
	return lastErr
}

// State reports the broker's connection state.
func (b *KafkaBroker) State() State {
	return State(b.state.Load())
}

// Publish serializes the event to JSON and writes it to the Kafka topic.
func (b *KafkaBroker) Publish(ctx context.Context, topic, key string, event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("broker is closed")
	}
	b.mu.Unlock()

	if b.State() == StateDegraded {
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		return ErrDegraded
	}

	value, err := json.Marshal(event)
	if err != nil {
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Value: value,
	}
	if key != "" {
		msg.Key = []byte(key)
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		metrics.PublishFailures.WithLabelValues(topic).Inc()
		return fmt.Errorf("write to kafka: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe creates a consumer-group reader for the topic and invokes the
// handler for each message received. The cursor is committed periodically
// (CommitInterval), so a crash between handling and commit redelivers
// already-handled messages. The consumer runs until Close is called.
func (b *KafkaBroker) Subscribe(topic, groupID string, handler EventHandler) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", fmt.Errorf("broker is closed")
	}
	if groupID == "" {
		return "", fmt.Errorf("consumer group id is required")
	}

	id := uuid.New().String()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.config.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: b.config.CommitInterval,
	})

	subCtx, subCancel := context.WithCancel(b.ctx)

	sub := &kafkaSubscription{
		id:      id,
		reader:  reader,
		handler: handler,
		cancel:  subCancel,
	}

	b.readers[id] = sub

	go b.consumeLoop(subCtx, topic, sub)

	return id, nil
}

// Close shuts down all consumers and the producer.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	b.cancel()

	var firstErr error

	for _, sub := range b.readers {
		sub.cancel()
		if err := sub.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := b.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

func (b *KafkaBroker) consumeLoop(ctx context.Context, topic string, sub *kafkaSubscription) {
	for {
		msg, err := sub.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // context cancelled, shutting down
			}
			log.Printf("bus: consumer %s error: %v", sub.id, err)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Malformed payload: cursor still advances so the group never
			// stalls on a poison message. Park the raw bytes on the DLQ.
			log.Printf("bus: consumer %s: unmarshal error: %v payload=%q", sub.id, err, msg.Value)
			metrics.EventsConsumed.WithLabelValues(topic, "discarded").Inc()
			b.deadLetterRaw(topic, msg.Value)
			continue
		}

		sub.handler(event)
	}
}

// deadLetterRaw best-effort parks undecodable payloads on the topic's DLQ.
// Failure to reach the DLQ degrades to log-and-drop.
func (b *KafkaBroker) deadLetterRaw(topic string, raw []byte) {
	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()

	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: DLQTopic(topic),
		Value: raw,
	})
	if err != nil {
		log.Printf("bus: failed to dead-letter payload from %s: %v", topic, err)
	}
}
