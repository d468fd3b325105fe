package bus

import (
	"context"
	"log"
	"strings"
	"time"
)

// FactoryConfig selects and tunes the broker implementation.
type FactoryConfig struct {
	// Brokers is a comma-separated Kafka broker list. Empty selects the
	// in-memory broker.
	Brokers         string
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// NewBroker returns a KafkaBroker when brokers are configured, otherwise an
// InMemoryBroker. The Kafka connection handshake runs in the background so
// startup is never blocked on the bus; until it settles, publishes go
// through the writer's own retry path.
func NewBroker(cfg FactoryConfig) (MessageBroker, error) {
	if cfg.Brokers == "" {
		log.Println("bus: no brokers configured, using in-memory broker")
		return NewInMemoryBroker(), nil
	}

	broker, err := NewKafkaBroker(KafkaConfig{
		Brokers:         strings.Split(cfg.Brokers, ","),
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectDelay:    cfg.ConnectDelay,
	})
	if err != nil {
		return nil, err
	}

	go func() {
		if err := broker.Connect(context.Background()); err != nil {
			log.Printf("bus: broker degraded: %v", err)
		}
	}()

	return broker, nil
}
