// Package ingest correlates inbound channel posts with auctions: it extracts
// the asset identifier, runs the summarization gate, admits the post to the
// registry and schedules the auction's stage alerts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/application/reminder"
	"github.com/auction-sentry/internal/domain"
	"github.com/auction-sentry/internal/pkg/assetid"
)

// Summarizer is the external AI collaborator.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*domain.Judgment, error)
}

// Dispatcher receives stage-alert notifications.
type Dispatcher interface {
	Enqueue(n domain.Notification)
}

// InboundPost is one raw post from the monitored channel feed.
type InboundPost struct {
	SourcePostID string    `json:"source_post_id" validate:"required"`
	ChannelID    string    `json:"channel_id" validate:"required"`
	Text         string    `json:"text" validate:"required"`
	PostedAt     time.Time `json:"posted_at"`
}

// Result reports what happened to an inbound post.
type Result struct {
	Post      *domain.AuctionPost
	Duplicate bool // source post ID already admitted
	Skipped   bool // no unambiguous asset identifier
	Rejected  bool // summarizer judged the post not to be an auction
}

// Stage-alert key namespaces. Alerts share the reminder scheduler's index
// type, so the namespace lives in the key's user slot.
const (
	alertHalfway   = "alert:halfway"
	alertFinalHour = "alert:final-hour"
)

// stageAlert is an armed alert payload stamped with its index generation.
// A newer post for the same asset re-arms the alert under a new generation,
// so a stale pop racing the re-arm cannot deliver the replacement early.
type stageAlert struct {
	gen  uint64
	note domain.Notification
}

// Service is the ingestion pipeline. It owns a second scheduler instance
// for the per-auction stage alerts (halfway point and final hour).
type Service struct {
	registry   *registry.Registry
	summarizer Summarizer // nil disables the gate
	timeout    time.Duration
	out        Dispatcher

	mu     sync.Mutex
	alerts map[domain.ReminderKey]stageAlert
	sched  *reminder.Scheduler
}

func NewService(reg *registry.Registry, summarizer Summarizer, timeout time.Duration, out Dispatcher) *Service {
	s := &Service{
		registry:   reg,
		summarizer: summarizer,
		timeout:    timeout,
		out:        out,
		alerts:     make(map[domain.ReminderKey]stageAlert),
	}
	s.sched = reminder.NewScheduler(s.fireAlert)
	return s
}

// Run drives the stage-alert timing loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.sched.Run(ctx)
}

// Ingest processes one inbound post. Duplicates are absorbed, posts without
// an unambiguous identifier are skipped, and a failing summarizer degrades
// to admission tagged unvalidated — ingestion never fails on enrichment.
func (s *Service) Ingest(ctx context.Context, in InboundPost) (*Result, error) {
	asset, ok := assetid.Extract(in.Text)
	if !ok {
		return &Result{Skipped: true}, nil
	}

	receivedAt := in.PostedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	post := &domain.AuctionPost{
		AssetID:      asset,
		SourcePostID: in.SourcePostID,
		ChannelID:    in.ChannelID,
		Validation:   domain.ValidationPending,
		ReceivedAt:   receivedAt.UTC(),
	}
	if endsAt, ok := assetid.Deadline(in.Text); ok {
		post.EndsAt = &endsAt
	}

	if s.summarizer != nil {
		if !s.gate(ctx, post, in.Text) {
			return &Result{Rejected: true}, nil
		}
	} else {
		post.Validation = domain.ValidationValid
	}

	if err := s.registry.Admit(ctx, post); err != nil {
		if errors.Is(err, domain.ErrDuplicatePost) {
			return &Result{Post: post, Duplicate: true}, nil
		}
		return nil, err
	}
	slog.Info("post admitted", "asset_id", post.AssetID,
		"source_post_id", post.SourcePostID, "validation", post.Validation)

	s.scheduleStageAlerts(post)
	return &Result{Post: post}, nil
}

// gate runs the summarization gate with its fixed timeout. On error the
// post stays admissible, tagged unvalidated-after-error. Returns false only
// when the summarizer answered and judged the post not to be an auction.
func (s *Service) gate(ctx context.Context, post *domain.AuctionPost, text string) bool {
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	judgment, err := s.summarizer.Summarize(gctx, text)
	if err != nil {
		slog.Warn("summarization failed, admitting unvalidated",
			"asset_id", post.AssetID, "err", err)
		post.Validation = domain.ValidationUnvalidated
		return true
	}
	if !judgment.Valid {
		return false
	}
	post.Validation = domain.ValidationValid
	post.Summary = judgment.Summary
	return true
}

// scheduleStageAlerts arms the halfway and final-hour channel alerts for
// auctions whose deadline is more than an hour out.
func (s *Service) scheduleStageAlerts(post *domain.AuctionPost) {
	if post.EndsAt == nil {
		return
	}
	now := time.Now()
	endsAt := *post.EndsAt
	if !endsAt.After(now.Add(time.Hour)) {
		return
	}
	halfway := now.Add(endsAt.Sub(now) / 2)
	finalHour := endsAt.Add(-time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.arm(domain.ReminderKey{UserID: alertHalfway, AssetID: post.AssetID}, halfway, domain.Notification{
		ChannelID: post.ChannelID,
		AssetID:   post.AssetID,
		Text:      fmt.Sprintf("⏳ Auction `%s` is at halftime!", post.AssetID),
	})
	s.arm(domain.ReminderKey{UserID: alertFinalHour, AssetID: post.AssetID}, finalHour, domain.Notification{
		ChannelID: post.ChannelID,
		AssetID:   post.AssetID,
		Text:      fmt.Sprintf("🎯 One hour remaining on auction `%s` — final bids incoming!", post.AssetID),
	})
}

// arm registers the alert payload and indexes it. A newer post for the same
// asset replaces the alert schedule under a fresh generation. Caller holds mu.
func (s *Service) arm(key domain.ReminderKey, at time.Time, n domain.Notification) {
	s.alerts[key] = stageAlert{gen: s.sched.Schedule(key, at), note: n}
}

func (s *Service) fireAlert(key domain.ReminderKey, gen uint64) {
	s.mu.Lock()
	a, ok := s.alerts[key]
	if !ok || a.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.alerts, key)
	s.mu.Unlock()

	slog.Info("stage alert fired", "kind", key.UserID, "asset_id", key.AssetID)
	s.out.Enqueue(a.note)
}
