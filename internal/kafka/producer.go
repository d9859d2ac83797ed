package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
	"payment-reconciler/internal/monitoring"
)

const (
	TopicOrderConfirmed      = "order-confirmed"
	TopicOrderCancelled      = "order-cancelled"
	TopicSubscriptionUpdated = "subscription-updated"
	TopicPaymentEvents       = "payment-events"
)

type Producer struct {
	producer sarama.SyncProducer
	mockMode bool
	log      *logger.Logger
}

func NewProducer(brokers []string, mockMode bool, log *logger.Logger) (*Producer, error) {
	if mockMode || len(brokers) == 0 {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{
			producer: nil,
			mockMode: true,
			log:      log,
		}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", brokers))
	return NewProducerWithSync(producer, log), nil
}

// NewProducerWithSync wraps an existing SyncProducer, e.g. sarama/mocks in tests.
func NewProducerWithSync(producer sarama.SyncProducer, log *logger.Logger) *Producer {
	return &Producer{producer: producer, log: log}
}

func (p *Producer) PublishOrderEvent(_ context.Context, event *models.OrderEvent) error {
	return p.publish(event.Type, event.OrderID, event)
}

func (p *Producer) PublishSubscriptionEvent(_ context.Context, event *models.SubscriptionEvent) error {
	return p.publish(event.Type, event.UserID, event)
}

func (p *Producer) publish(eventType, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := TopicForEvent(eventType)

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Mock publishing event: %s for %s", eventType, key))
		p.log.LogKafka("MOCK_DATA", topic, string(data))
		monitoring.TrackPublish(topic, "mock")
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", topic, err))
		monitoring.TrackPublish(topic, "failed")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("Message sent to partition %d at offset %d for %s", partition, offset, key))
	monitoring.TrackPublish(topic, "sent")
	return nil
}

func TopicForEvent(eventType string) string {
	switch eventType {
	case models.EventOrderConfirmed:
		return TopicOrderConfirmed
	case models.EventOrderCancelled:
		return TopicOrderCancelled
	case models.EventSubscriptionUpdated:
		return TopicSubscriptionUpdated
	default:
		return TopicPaymentEvents
	}
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
