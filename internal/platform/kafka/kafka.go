// Package kafka wraps franz-go for the audit relay pipeline. Publishing here
// is asynchronous replication of an already-durable audit trail; nothing on
// the synchronous request path waits on a broker.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"sanctum/internal/platform/config"
)

// Publisher produces records synchronously with acks from all replicas.
type Publisher struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewPublisher connects to the configured brokers. Returns nil when no
// brokers are configured (relay disabled).
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	return &Publisher{client: client, logger: logger}, nil
}

// Publish produces one record and waits for the ack.
func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Close()
}

// EnsureTopic creates the topic if it does not exist. Already-exists is not
// an error; concurrent service instances race to create it on boot.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int32) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("kafka admin client: %w", err)
	}
	defer client.Close()

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}

	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

// Consumer reads records as part of a consumer group with manual commits, so
// a handler crash replays the batch instead of dropping it.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewConsumer joins the consumer group on the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until the context ends, invoking handle per record and committing
// after each clean batch. Handler errors stop the run; offsets for the failed
// batch stay uncommitted.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, key, value []byte) error) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				c.logger.ErrorContext(ctx, "kafka fetch error",
					"topic", fe.Topic,
					"partition", fe.Partition,
					"error", fe.Err,
				)
			}
		}

		var handleErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = handle(ctx, record.Key, record.Value)
		})
		if handleErr != nil {
			return fmt.Errorf("handle record: %w", handleErr)
		}

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
			return fmt.Errorf("commit offsets: %w", err)
		}
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}
