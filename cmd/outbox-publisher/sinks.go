package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/pubsub"
)

// message is the broker-neutral shape of one outbox row on the wire.
type message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

// sink delivers outbox messages to a downstream broker.
type sink interface {
	Name() string
	Destination() string
	Ping(context.Context) error
	Publish(context.Context, message) error
	Close() error
}

func newSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, error) {
	switch cfg.Outbox.Sink {
	case config.OutboxSinkKafka:
		return newKafkaSink(cfg.Kafka)
	case config.OutboxSinkRabbitMQ:
		return newRabbitSink(cfg.RabbitMQ)
	case config.OutboxSinkPubSub, "":
		client, err := pubsub.NewClient(ctx, cfg.PubSub, logg)
		if err != nil {
			return nil, err
		}
		return newPubSubSink(client, client.Topic()), nil
	default:
		return nil, fmt.Errorf("unknown outbox sink %q", cfg.Outbox.Sink)
	}
}

type pubSubClient interface {
	Ping(context.Context) error
	DomainPublisher() *gcppubsub.Publisher
	Ordered() bool
	Close() error
}

type pubSubSink struct {
	client    pubSubClient
	topic     string
	publisher *gcppubsub.Publisher
}

func newPubSubSink(client pubSubClient, topic string) *pubSubSink {
	return &pubSubSink{client: client, topic: topic, publisher: client.DomainPublisher()}
}

func (s *pubSubSink) Name() string        { return config.OutboxSinkPubSub }
func (s *pubSubSink) Destination() string { return s.topic }

func (s *pubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Publish blocks until the server acks. With ordering on, a failure pauses
// the aggregate's key; it is resumed so the row's retry can go out.
func (s *pubSubSink) Publish(ctx context.Context, msg message) error {
	if s.publisher == nil {
		return errors.New("pubsub publisher not configured")
	}
	out := &gcppubsub.Message{Data: msg.Data, Attributes: msg.Attributes}
	if s.client.Ordered() {
		out.OrderingKey = msg.Key
	}
	_, err := s.publisher.Publish(ctx, out).Get(ctx)
	if err != nil && out.OrderingKey != "" {
		s.publisher.ResumePublish(out.OrderingKey)
	}
	return err
}

func (s *pubSubSink) Close() error {
	return s.client.Close()
}

type kafkaWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

type kafkaSink struct {
	brokers []string
	topic   string
	writer  kafkaWriter
}

func newKafkaSink(cfg config.KafkaConfig) (*kafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &kafkaSink{
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}, nil
}

func (s *kafkaSink) Name() string        { return config.OutboxSinkKafka }
func (s *kafkaSink) Destination() string { return s.topic }

func (s *kafkaSink) Ping(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", s.brokers[0])
	if err != nil {
		return fmt.Errorf("dial kafka broker: %w", err)
	}
	return conn.Close()
}

// Publish keys by aggregate so every event of one order lands on the same partition.
func (s *kafkaSink) Publish(ctx context.Context, msg message) error {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Time:    time.Now().UTC(),
		Headers: headers,
	})
}

func (s *kafkaSink) Close() error {
	return s.writer.Close()
}

type rabbitSink struct {
	queue string
	conn  *amqp.Connection
	ch    *amqp.Channel
}

func newRabbitSink(cfg config.RabbitMQConfig) (*rabbitSink, error) {
	if cfg.Queue == "" {
		return nil, errors.New("rabbitmq queue is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return nil, multierr.Combine(fmt.Errorf("declare queue %s: %w", cfg.Queue, err), ch.Close(), conn.Close())
	}
	return &rabbitSink{queue: cfg.Queue, conn: conn, ch: ch}, nil
}

func (s *rabbitSink) Name() string        { return config.OutboxSinkRabbitMQ }
func (s *rabbitSink) Destination() string { return s.queue }

func (s *rabbitSink) Ping(context.Context) error {
	if s.conn == nil || s.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (s *rabbitSink) Publish(ctx context.Context, msg message) error {
	headers := amqp.Table{}
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	return s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Attributes["event_id"],
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         msg.Data,
	})
}

func (s *rabbitSink) Close() error {
	return multierr.Combine(s.ch.Close(), s.conn.Close())
}
