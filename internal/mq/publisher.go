package mq

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"qrpay-intent-api/internal/dal"

	"github.com/streadway/amqp"
)

const exchange = "payment_events"

// Publisher fans payment events out to tenant subscribers over RabbitMQ.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(tenantID uint64, topic string, msg any) error {
	if dal.RabbitCh == nil {
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	routingKey := "tenant." + strconv.FormatUint(tenantID, 10) + "." + topic
	err = dal.RabbitCh.Publish(
		exchange,
		routingKey,
		false, false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         b,
		},
	)
	if err != nil {
		log.Printf("publish %s failed: %v", routingKey, err)
	}
	return err
}
