package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/md-rashed-zaman/slotkeeper/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Source hands out unpublished records in batches.
type Source interface {
	Claim(ctx context.Context, limit int, publish func(context.Context, []Record) error) (int, error)
}

// Writer is satisfied by *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	source    Source
	writer    Writer
	logger    *slog.Logger
	metrics   *metrics.Engine
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
	Metrics   *metrics.Engine
}

func NewPublisher(source Source, writer Writer, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		source:    source,
		writer:    writer,
		logger:    logger,
		metrics:   cfg.Metrics,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// NewKafkaWriter returns nil when no brokers are configured.
func NewKafkaWriter(brokers string) *kafka.Writer {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(list...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if p.writer == nil {
		p.logger.Warn("outbox publisher disabled (no writer configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishOnce(ctx); err != nil {
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishOnce drains one batch and returns how many events were written.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	n, err := p.source.Claim(ctx, p.batchSize, p.publish)
	if err != nil {
		return 0, err
	}
	p.metrics.OutboxPublished(n)
	return n, nil
}

func (p *Publisher) publish(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msg := kafka.Message{
			Topic: r.EventType,
			Key:   []byte(r.AggregateID),
			Value: r.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(r.EventID)},
				{Key: "event_type", Value: []byte(r.EventType)},
			},
		}
		msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
		msgs = append(msgs, msg)
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// LogWriter stands in for Kafka in local runs without brokers.
type LogWriter struct {
	Logger *slog.Logger
}

func (w LogWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		w.Logger.Info("outbox event",
			"event_id", kafkax.HeaderValue(m.Headers, "event_id"),
			"event_type", m.Topic,
			"aggregate_id", string(m.Key),
			"payload", string(m.Value),
		)
	}
	return nil
}
