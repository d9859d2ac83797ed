package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/stripe/stripe-go/v82"

	"payment-reconciler/internal/logger"
)

// EventHandler processes one relayed provider event. Events on the relay topic
// were verified by the publisher before being written.
type EventHandler func(ctx context.Context, event *stripe.Event)

// Consumer reads relayed Stripe events so they run through the same
// dispatcher as webhook deliveries.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewConsumer(brokers []string, groupID, topic string, log *logger.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("CONNECTED", topic, fmt.Sprintf("Consumer group %s joined brokers %v", groupID, brokers))
	return &Consumer{
		consumer: consumer,
		topics:   []string{topic},
		log:      log,
	}, nil
}

// ConsumeEvents blocks until ctx is cancelled or the group fails.
func (c *Consumer) ConsumeEvents(ctx context.Context, handler EventHandler) error {
	consumerHandler := &RelayHandler{Handler: handler, Log: c.log}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, c.topics, consumerHandler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
				return err
			}
		}
	}
}

func (c *Consumer) Close() error {
	c.log.LogKafka("CLOSING", "consumer", "Closing Kafka consumer group")
	return c.consumer.Close()
}

// RelayHandler is the sarama.ConsumerGroupHandler behind ConsumeEvents.
type RelayHandler struct {
	Handler EventHandler
	Log     *logger.Logger
}

func (h *RelayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *RelayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim runs each message through the handler in order. Undecodable
// messages are logged and marked so they do not block the partition.
func (h *RelayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var event stripe.Event
		if err := json.Unmarshal(message.Value, &event); err != nil || event.Type == "" {
			h.Log.Error("KAFKA", fmt.Sprintf("Skipping undecodable relay message at %s/%d/%d: %v",
				message.Topic, message.Partition, message.Offset, err))
			session.MarkMessage(message, "")
			continue
		}

		h.Log.LogKafka("RECEIVED", message.Topic, fmt.Sprintf("Relayed event %s (%s)", event.ID, event.Type))
		h.Handler(session.Context(), &event)
		session.MarkMessage(message, "")
	}
	return nil
}
