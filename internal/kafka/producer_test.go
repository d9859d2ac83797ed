package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/models"
)

func TestProducer_PublishOrderEvent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicOrderConfirmed {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "ord_1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	p := NewProducerWithSync(sp, logger.Discard())
	order := &models.Order{ID: "ord_1", Status: models.OrderConfirmed, PaymentStatus: models.PaymentPaid, TotalAmount: 5000}

	err := p.PublishOrderEvent(context.Background(), models.NewOrderEvent(models.EventOrderConfirmed, order, time.Now()))
	require.NoError(t, err)
}

func TestProducer_PublishSubscriptionEvent_Payload(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()

	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev models.SubscriptionEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.UserID != "u_1" || ev.Status != "past_due" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducerWithSync(sp, logger.Discard())
	err := p.PublishSubscriptionEvent(context.Background(), &models.SubscriptionEvent{
		Type:   models.EventSubscriptionUpdated,
		UserID: "u_1",
		Status: "past_due",
	})
	require.NoError(t, err)
}

func TestProducer_SendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	defer sp.Close()
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWithSync(sp, logger.Discard())
	err := p.PublishOrderEvent(context.Background(), &models.OrderEvent{Type: models.EventOrderCancelled, OrderID: "ord_2"})

	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProducer_MockModeWithoutBrokers(t *testing.T) {
	p, err := NewProducer(nil, false, logger.Discard())
	require.NoError(t, err)
	assert.True(t, p.mockMode)

	assert.NoError(t, p.PublishOrderEvent(context.Background(), &models.OrderEvent{Type: models.EventOrderConfirmed, OrderID: "ord_3"}))
	assert.NoError(t, p.Close())
}

func TestTopicForEvent(t *testing.T) {
	assert.Equal(t, TopicOrderConfirmed, TopicForEvent(models.EventOrderConfirmed))
	assert.Equal(t, TopicOrderCancelled, TopicForEvent(models.EventOrderCancelled))
	assert.Equal(t, TopicSubscriptionUpdated, TopicForEvent(models.EventSubscriptionUpdated))
	assert.Equal(t, TopicPaymentEvents, TopicForEvent("something.else"))
}
