// Package kafka wraps franz-go client construction for the compliance ledger.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"chaintrace/internal/platform/config"
)

// Client wraps the franz-go producer with topic administration helpers.
type Client struct {
	kgo *kgo.Client
	adm *kadm.Client
}

// New creates a Kafka client for the configured brokers. Records are acked by
// all in-sync replicas before a produce call returns; the ledger is the
// durability boundary for compliance decisions.
func New(cfg config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	kc, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Client{kgo: kc, adm: kadm.NewClient(kc)}, nil
}

// EnsureTopic creates the topic if it does not already exist.
func (c *Client) EnsureTopic(ctx context.Context, topic string, partitions int32) error {
	if partitions <= 0 {
		partitions = 1
	}
	_, err := c.adm.CreateTopic(ctx, partitions, -1, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// ProduceSync publishes a single record and blocks until it is acknowledged.
func (c *Client) ProduceSync(ctx context.Context, record *kgo.Record) (*kgo.Record, error) {
	res := c.kgo.ProduceSync(ctx, record)
	if err := res.FirstErr(); err != nil {
		return nil, err
	}
	r, err := res.First()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Health verifies broker connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.kgo.Ping(ctx)
}

// Close flushes buffered records and releases the client.
func (c *Client) Close() {
	c.kgo.Close()
}
