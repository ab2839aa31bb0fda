// Package kafka feeds channel posts from a Kafka topic into the ingestion
// pipeline. It is the high-volume alternative to the HTTP ingestion endpoint.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/auction-sentry/internal/application/ingest"
	"github.com/auction-sentry/internal/config"
	"github.com/segmentio/kafka-go"
)

// Consumer reads raw posts off the topic and hands them to the ingest service.
type Consumer struct {
	reader   *kafka.Reader
	svc      *ingest.Service
	channels []string // channel ID allowlist; empty means all
}

func NewConsumer(cfg *config.Config, svc *ingest.Service) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        strings.Split(cfg.KafkaBrokers, ","),
			GroupID:        cfg.KafkaGroupID,
			Topic:          cfg.KafkaTopic,
			MinBytes:       10e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		}),
		svc:      svc,
		channels: cfg.MonitoredChannels,
	}
}

// Run consumes the topic until ctx is cancelled. Malformed messages are
// logged and committed so they are not redelivered forever.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		_ = c.reader.Close()
	}()

	slog.Info("kafka consumer started",
		"group", c.reader.Config().GroupID, "topic", c.reader.Config().Topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("kafka consumer shutting down")
				return nil
			}
			slog.Warn("kafka fetch error", "err", err)
			time.Sleep(time.Second)
			continue
		}

		c.consume(ctx, m.Value)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			slog.Warn("kafka commit error", "err", err)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, value []byte) {
	var post ingest.InboundPost
	if err := json.Unmarshal(value, &post); err != nil {
		slog.Warn("malformed post message", "err", err)
		return
	}
	if len(c.channels) > 0 && !slices.Contains(c.channels, post.ChannelID) {
		return
	}
	if _, err := c.svc.Ingest(ctx, post); err != nil {
		slog.Error("ingest failed", "source_post_id", post.SourcePostID, "err", err)
	}
}
