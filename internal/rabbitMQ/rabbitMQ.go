package rabbitMQ

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const retryCountHeader = "x-retry-count"

// ErrUnprocessable marks a message that must not be retried.
var ErrUnprocessable = errors.New("unprocessable message")

// Handler processes one message body. A nil error acks the message.
type Handler func(ctx context.Context, body []byte) error

type Queue interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
	Consume(ctx context.Context, queueName string, concurrency int, handler Handler) error
	Close() error
}

// LaneQueue is a durable queue bound to the exchange by RoutingKey.
type LaneQueue struct {
	Name       string
	RoutingKey string
}

type RabbitMQConfig struct {
	URL                string
	ExchangeName       string
	DeadLetterExchange string
	DeadLetterQueue    string
	RetryCount         int
	RetryDelay         time.Duration
	Queues             []LaneQueue
}

type RabbitMQ struct {
	conn   *amqp.Connection
	config RabbitMQConfig

	publishMu sync.Mutex
	publishCh *amqp.Channel

	consumersMu sync.Mutex
	consumers   []*amqp.Channel
	wg          sync.WaitGroup
}

func NewRabbitMQ(config RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(channel, config); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	go func() {
		if err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1)); ok {
			logrus.WithError(err).Error("RabbitMQ connection closed")
		}
	}()

	return &RabbitMQ{
		conn:      conn,
		config:    config,
		publishCh: channel,
	}, nil
}

func retryQueueName(queue string) string {
	return queue + ".retry"
}

// declareTopology declares the topic exchange, one durable queue per lane with a
// delayed retry queue next to it, and the dead-letter exchange and queue.
func declareTopology(ch *amqp.Channel, config RabbitMQConfig) error {
	if err := ch.ExchangeDeclare(config.ExchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", config.ExchangeName, err)
	}

	if err := ch.ExchangeDeclare(config.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange %s: %w", config.DeadLetterExchange, err)
	}

	if _, err := ch.QueueDeclare(config.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter queue %s: %w", config.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(config.DeadLetterQueue, "", config.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	for _, q := range config.Queues {
		_, err := ch.QueueDeclare(q.Name, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange": config.DeadLetterExchange,
		})
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}

		if err := ch.QueueBind(q.Name, q.RoutingKey, config.ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
		}

		// Expired retries go back through the exchange on the lane's routing key.
		_, err = ch.QueueDeclare(retryQueueName(q.Name), true, false, false, false, amqp.Table{
			"x-message-ttl":             config.RetryDelay.Milliseconds(),
			"x-dead-letter-exchange":    config.ExchangeName,
			"x-dead-letter-routing-key": q.RoutingKey,
		})
		if err != nil {
			return fmt.Errorf("failed to declare retry queue for %s: %w", q.Name, err)
		}
	}

	return nil
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = r.publish(ctx, r.config.ExchangeName, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	return r.publishCh.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
}

// Consume starts concurrency workers on their own channel. Workers stop when ctx is done.
func (r *RabbitMQ) Consume(ctx context.Context, queueName string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	channel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	err = channel.Qos(
		concurrency, // prefetch count
		0,           // prefetch size
		false,       // global
	)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := channel.Consume(
		queueName, // queue
		fmt.Sprintf("%s-%s", queueName, uuid.NewString()), // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to consume messages: %w", err)
	}

	r.consumersMu.Lock()
	r.consumers = append(r.consumers, channel)
	r.consumersMu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"queue":       queueName,
		"concurrency": concurrency,
	})
	log.Info("Consumer started")

	for i := 0; i < concurrency; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handleMessages(ctx, queueName, msgs, handler)
		}()
	}

	return nil
}

func (r *RabbitMQ) handleMessages(ctx context.Context, queueName string, msgs <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handleMessage(ctx, queueName, msg, handler)
		}
	}
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDeadLetter
)

// nextAction decides what happens to a message after its handler returned err.
func nextAction(err error, retries, maxRetries int) action {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, ErrUnprocessable):
		return actionDeadLetter
	case retries >= maxRetries:
		return actionDeadLetter
	default:
		return actionRetry
	}
}

func (r *RabbitMQ) handleMessage(ctx context.Context, queueName string, msg amqp.Delivery, handler Handler) {
	retries := retryCount(msg.Headers)
	err := handler(ctx, msg.Body)

	log := logrus.WithFields(logrus.Fields{
		"queue":      queueName,
		"message_id": msg.MessageId,
		"retries":    retries,
	})

	switch nextAction(err, retries, r.config.RetryCount) {
	case actionAck:
		msg.Ack(false)

	case actionDeadLetter:
		log.WithError(err).Error("Message rejected, routing to dead letter queue")
		msg.Nack(false, false)

	case actionRetry:
		headers := amqp.Table{}
		for k, v := range msg.Headers {
			headers[k] = v
		}
		headers[retryCountHeader] = int32(retries + 1)

		pubErr := r.publish(ctx, "", retryQueueName(queueName), amqp.Publishing{
			ContentType:  msg.ContentType,
			MessageId:    msg.MessageId,
			Headers:      headers,
			Body:         msg.Body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
		if pubErr != nil {
			log.WithError(pubErr).Error("Failed to schedule retry, requeueing message")
			msg.Nack(false, true)
			return
		}

		log.WithError(err).Warn("Failed to process message, retry scheduled")
		msg.Ack(false)
	}
}

func retryCount(headers amqp.Table) int {
	switch v := headers[retryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}

func (r *RabbitMQ) Close() error {
	var errs []error

	r.consumersMu.Lock()
	for _, ch := range r.consumers {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	r.consumers = nil
	r.consumersMu.Unlock()

	r.wg.Wait()

	if r.publishCh != nil {
		if err := r.publishCh.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing RabbitMQ: %w", errors.Join(errs...))
	}

	return nil
}

// HealthCheck reports whether the broker connection is usable.
func (r *RabbitMQ) HealthCheck() error {
	if r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is closed")
	}

	testChannel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("RabbitMQ health check failed: %w", err)
	}
	testChannel.Close()

	return nil
}
