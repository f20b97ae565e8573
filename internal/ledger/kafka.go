package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	"chaintrace/internal/platform/kafka"
	dErrors "chaintrace/pkg/domain-errors"
)

var ledgerSubmitDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "chaintrace_ledger_submit_duration_ms",
	Help:    "Latency of ledger submissions in milliseconds",
	Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
})

const correlationHeader = "correlation-id"

// Kafka publishes compliance events to the configured ledger topic. Records
// are keyed by product ID so all decisions for one product land on the same
// partition in submission order.
type Kafka struct {
	client  *kafka.Client
	topic   string
	timeout time.Duration
}

// NewKafka wraps the platform Kafka client for ledger submissions. timeout
// bounds each produce call; the validator must never hang on the ledger.
func NewKafka(client *kafka.Client, topic string, timeout time.Duration) (*Kafka, error) {
	if client == nil {
		return nil, fmt.Errorf("kafka client is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("ledger topic is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Kafka{client: client, topic: topic, timeout: timeout}, nil
}

func (k *Kafka) SubmitComplianceCheck(ctx context.Context, productID string, payload []byte, correlationID string) (*Submission, error) {
	start := time.Now()
	defer func() {
		ledgerSubmitDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(productID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: correlationHeader, Value: []byte(correlationID)},
		},
	}

	acked, err := k.client.ProduceSync(ctx, record)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger submission failed")
	}

	return &Submission{
		TransactionID: fmt.Sprintf("%s-%d-%d", k.topic, acked.Partition, acked.Offset),
		TopicID:       k.topic,
		SubmittedAt:   acked.Timestamp,
		MessageSize:   len(payload),
	}, nil
}
