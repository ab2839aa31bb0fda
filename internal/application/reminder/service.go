// Package reminder implements the reminder store and its time-ordered
// scheduler. The store exclusively owns reminder state; the scheduler index
// holds keys only, so the two cannot drift apart.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auction-sentry/internal/domain"
	"github.com/auction-sentry/internal/pkg/id"
)

// Dispatcher receives reminders that have fired and owes delivery of them.
type Dispatcher interface {
	Enqueue(n domain.Notification)
}

// maxOffsetMinutes bounds how far out a reminder can be set (one year).
const maxOffsetMinutes = 60 * 24 * 365

// Service is the reminder store. All mutations on a (user, asset) key are
// serialized through mu; a reminder is scheduled iff its key is indexed,
// and gens records the index generation of the scheduled reminder so a
// stale pop racing a replacement cannot fire the replacement early.
type Service struct {
	mu        sync.Mutex
	reminders map[domain.ReminderKey]*domain.Reminder
	gens      map[domain.ReminderKey]uint64
	sched     *Scheduler
	out       Dispatcher
	now       func() time.Time
}

func NewService(out Dispatcher) *Service {
	s := &Service{
		reminders: make(map[domain.ReminderKey]*domain.Reminder),
		gens:      make(map[domain.ReminderKey]uint64),
		out:       out,
		now:       time.Now,
	}
	s.sched = NewScheduler(s.fire)
	return s
}

// Run drives the scheduler's timing loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.sched.Run(ctx)
}

// Set creates a reminder due offsetMinutes from now. An existing scheduled
// reminder for the same (user, asset) key is cancelled first — resubmission
// replaces. Returns the created reminder.
func (s *Service) Set(userID, assetID, channelID string, offsetMinutes int) (*domain.Reminder, error) {
	if offsetMinutes <= 0 || offsetMinutes > maxOffsetMinutes {
		return nil, fmt.Errorf("offset %d minutes: %w", offsetMinutes, domain.ErrInvalidOffset)
	}
	key := domain.ReminderKey{UserID: userID, AssetID: assetID}
	now := s.now().UTC()

	s.mu.Lock()
	if prev, ok := s.reminders[key]; ok && prev.State == domain.ReminderScheduled {
		prev.State = domain.ReminderCancelled
		s.sched.Remove(key)
		slog.Info("reminder replaced", "user_id", userID, "asset_id", assetID)
	}
	r := &domain.Reminder{
		ReminderID: id.New(),
		UserID:     userID,
		AssetID:    assetID,
		ChannelID:  channelID,
		DueAt:      now.Add(time.Duration(offsetMinutes) * time.Minute),
		State:      domain.ReminderScheduled,
		CreatedAt:  now,
	}
	s.reminders[key] = r
	s.gens[key] = s.sched.Schedule(key, r.DueAt)
	out := *r
	s.mu.Unlock()

	return &out, nil
}

// Cancel transitions the scheduled reminder for (user, asset) to cancelled
// and removes it from the scheduler index. The cancellation is effective
// before Cancel returns.
func (s *Service) Cancel(userID, assetID string) error {
	key := domain.ReminderKey{UserID: userID, AssetID: assetID}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[key]
	if !ok || r.State != domain.ReminderScheduled {
		return fmt.Errorf("reminder %s/%s: %w", userID, assetID, domain.ErrNotFound)
	}
	r.State = domain.ReminderCancelled
	delete(s.gens, key)
	s.sched.Remove(key)
	return nil
}

// Get returns a snapshot of the reminder for (user, asset), if any.
func (s *Service) Get(userID, assetID string) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[domain.ReminderKey{UserID: userID, AssetID: assetID}]
	if !ok {
		return nil, fmt.Errorf("reminder %s/%s: %w", userID, assetID, domain.ErrNotFound)
	}
	out := *r
	return &out, nil
}

// fire runs on the scheduler goroutine. The store re-checks state and the
// index generation before marking fired: a cancellation racing the timer is
// dropped silently, and a replacement Set that landed after the pop leaves
// a newer generation behind, so the stale fire cannot deliver the
// replacement before its own due time. Marking is idempotent, so a reminder
// can never dispatch twice.
func (s *Service) fire(key domain.ReminderKey, gen uint64) {
	s.mu.Lock()
	r, ok := s.reminders[key]
	if !ok || r.State != domain.ReminderScheduled || s.gens[key] != gen {
		s.mu.Unlock()
		return
	}
	delete(s.gens, key)
	r.State = domain.ReminderFired
	n := domain.Notification{
		ChannelID: r.ChannelID,
		UserID:    r.UserID,
		AssetID:   r.AssetID,
		Text:      fmt.Sprintf("⏰ <@%s> reminder: auction `%s` is closing soon!", r.UserID, r.AssetID),
	}
	s.mu.Unlock()

	slog.Info("reminder fired", "user_id", key.UserID, "asset_id", key.AssetID)
	s.out.Enqueue(n)
}
