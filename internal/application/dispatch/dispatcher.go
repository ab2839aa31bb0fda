// Package dispatch delivers fired notifications to the messaging platform.
// Delivery failures are retried with backoff and then surfaced; they are
// never escalated back into the scheduler.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/auction-sentry/internal/domain"
	"golang.org/x/time/rate"
)

// Sender is the external messaging collaborator.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Alerter surfaces terminal delivery failures to operations.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// Config tunes retry and rate-limit behaviour.
type Config struct {
	MaxAttempts int           // total send attempts per notification
	BaseBackoff time.Duration // doubled after each failed attempt
	Rate        rate.Limit    // outbound sends per second
	Burst       int
	QueueSize   int
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.Rate <= 0 {
		c.Rate = rate.Limit(5)
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Dispatcher consumes fired notifications from a buffered queue and sends
// them one at a time, preserving fire order. The queue is the backpressure
// boundary between the scheduler and the platform.
type Dispatcher struct {
	sender  Sender
	alerter Alerter // nil disables ops alerts
	limiter *rate.Limiter
	queue   chan domain.Notification
	cfg     Config
}

func New(sender Sender, alerter Alerter, cfg Config) *Dispatcher {
	cfg.defaults()
	return &Dispatcher{
		sender:  sender,
		alerter: alerter,
		limiter: rate.NewLimiter(cfg.Rate, cfg.Burst),
		queue:   make(chan domain.Notification, cfg.QueueSize),
		cfg:     cfg,
	}
}

// Enqueue hands a fired notification to the dispatcher. Blocks when the
// queue is full so backlog is worked off in fire order rather than dropped.
func (d *Dispatcher) Enqueue(n domain.Notification) {
	d.queue <- n
}

// Run consumes the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			if err := d.deliver(ctx, n); err != nil {
				d.terminal(ctx, n, err)
			}
		}
	}
}

// deliver attempts the send up to MaxAttempts times with exponential
// backoff, respecting the outbound rate limit on every attempt.
func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) error {
	backoff := d.cfg.BaseBackoff
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = d.sender.Send(ctx, n.ChannelID, n.Text)
		if lastErr == nil {
			return nil
		}
		slog.Warn("notification send failed",
			"channel_id", n.ChannelID, "asset_id", n.AssetID,
			"attempt", attempt, "err", lastErr)
		if attempt < d.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return lastErr
}

// terminal reports an exhausted delivery. The reminder already fired, so
// this is a delivery failure only — nothing is re-scheduled.
func (d *Dispatcher) terminal(ctx context.Context, n domain.Notification, err error) {
	slog.Error("notification delivery exhausted",
		"channel_id", n.ChannelID, "user_id", n.UserID, "asset_id", n.AssetID, "err", err)
	if d.alerter == nil {
		return
	}
	msg := fmt.Sprintf("delivery failed for asset %s to channel %s after %d attempts: %v",
		n.AssetID, n.ChannelID, d.cfg.MaxAttempts, err)
	if aerr := d.alerter.Alert(ctx, "auction-sentry delivery failure", msg); aerr != nil {
		slog.Error("ops alert failed", "err", aerr)
	}
}
