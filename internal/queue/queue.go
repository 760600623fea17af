package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// RetryQueue carries delivery retry jobs from the webhook path to the
// worker process.
const RetryQueue = "sms_retries"

const maxConsumerRetries = 3

// RetryJob asks the worker to re-send one failed delivery.
type RetryJob struct {
	ExternalID string `json:"external_id"`
}

type Publisher interface {
	PublishRetry(ctx context.Context, job RetryJob) error
}

// AMQPPublisher publishes jobs to a durable RabbitMQ queue.
type AMQPPublisher struct {
	ch *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declareRetryQueue(ch); err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch}, nil
}

func (p *AMQPPublisher) PublishRetry(ctx context.Context, job RetryJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",         // default exchange
		RetryQueue, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// ConsumeRetries blocks, feeding retry jobs to handler. A failing job is
// requeued up to maxConsumerRetries times before being dropped; the ledger
// row stays in its failed state for reconciliation in that case.
func ConsumeRetries(conn *amqp.Connection, handler func(job RetryJob) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := declareRetryQueue(ch)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		false, // autoAck off for reliability
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for d := range msgs {
		var job RetryJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Println("invalid retry job:", err)
			d.Ack(false)
			continue
		}

		if err := handler(job); err != nil {
			log.Println("retry job failed:", err)
			var retryCount int32
			if v, ok := d.Headers["x-retry-count"].(int32); ok {
				retryCount = v
			}
			if retryCount < maxConsumerRetries {
				d.Nack(false, true) // requeue
				continue
			}
		}

		d.Ack(false)
	}
	return nil
}

func declareRetryQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		RetryQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("declare queue %s: %w", RetryQueue, err)
	}
	return q, nil
}
