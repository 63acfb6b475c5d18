package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cerebrate-bot/internal/domain"
	"cerebrate-bot/internal/infra/metrics"
)

// RabbitBroadcastQueue реализует очередь рассылок поверх AMQP.
type RabbitBroadcastQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.BroadcastQueue = (*RabbitBroadcastQueue)(nil)

// NewRabbitBroadcastQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitBroadcastQueue(amqpURL, queue string) (*RabbitBroadcastQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitBroadcastQueue{conn: conn, ch: ch, queue: queue}, nil
}

// Enqueue публикует задачу рассылки в очередь.
func (q *RabbitBroadcastQueue) Enqueue(ctx context.Context, job domain.BroadcastJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу рассылки из очереди.
func (q *RabbitBroadcastQueue) Pop(ctx context.Context) (domain.BroadcastJob, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.BroadcastJob{}, err
	}
	select {
	case <-ctx.Done():
		return domain.BroadcastJob{}, ctx.Err()
	case msg, ok := <-deliveries:
		if !ok {
			return domain.BroadcastJob{}, errors.New("amqp queue: канал доставки закрыт")
		}
		var job domain.BroadcastJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			_ = msg.Nack(false, false)
			return domain.BroadcastJob{}, fmt.Errorf("decode job: %w", err)
		}
		if err := msg.Ack(false); err != nil {
			return domain.BroadcastJob{}, fmt.Errorf("ack job: %w", err)
		}
		return job, nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitBroadcastQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func (q *RabbitBroadcastQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}
