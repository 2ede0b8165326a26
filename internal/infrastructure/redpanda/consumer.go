package redpanda

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ConsumerConfig tunes a consumer group member.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// MaxPollRecords caps one poll batch.
	MaxPollRecords int
}

// DefaultConsumerConfig returns defaults for the fulfillment consumer.
// Offsets commit only after the handler succeeds.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:        []string{"localhost:9092"},
		GroupID:        "order-fulfillment",
		MaxPollRecords: 200,
	}
}

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one message. Returning an error leaves the offset
// uncommitted so the record is redelivered.
type Handler func(ctx context.Context, msg *Message) error

// Consumer consumes order pipeline topics.
type Consumer struct {
	client  *kgo.Client
	config  ConsumerConfig
	handler Handler
	logger  *zap.Logger
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer group member.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *zap.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxBytes(16<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:  client,
		config:  cfg,
		handler: handler,
		logger:  logger,
		tracer:  otel.Tracer("redpanda-consumer"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the poll loop.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.pollLoop()
	c.logger.Info("consumer started",
		zap.String("group", c.config.GroupID),
		zap.Strings("topics", c.config.Topics))
}

// Stop halts polling and closes the client.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.client.Close()
	c.logger.Info("consumer stopped")
}

func (c *Consumer) pollLoop() {
	defer c.wg.Done()

	for {
		fetches := c.client.PollRecords(c.ctx, c.config.MaxPollRecords)
		if fetches.IsClientClosed() || c.ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err))
		})

		var processed []*kgo.Record
		fetches.EachRecord(func(r *kgo.Record) {
			if err := c.process(r); err != nil {
				c.logger.Error("message handling failed",
					zap.String("topic", r.Topic),
					zap.Int64("offset", r.Offset),
					zap.Error(err))
				return
			}
			processed = append(processed, r)
		})

		if len(processed) > 0 {
			if err := c.client.CommitRecords(c.ctx, processed...); err != nil {
				c.logger.Error("offset commit failed", zap.Error(err))
			}
		}
	}
}

func (c *Consumer) process(r *kgo.Record) error {
	ctx := extractTraceContext(c.ctx, r)
	ctx, span := c.tracer.Start(ctx, "consume_message",
		trace.WithAttributes(
			attribute.String("topic", r.Topic),
			attribute.Int64("offset", r.Offset),
		))
	defer span.End()

	msg := &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}

	if err := c.handler(ctx, msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
