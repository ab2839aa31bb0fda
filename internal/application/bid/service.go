// Package bid tracks confirmed bids per auction and notifies watchers when
// their leading bid is surpassed.
package bid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/domain"
	"github.com/auction-sentry/internal/pkg/id"
)

// Archiver persists confirmed bids outside the process. Failures never
// affect bid state.
type Archiver interface {
	ArchiveBid(ctx context.Context, bid *domain.Bid) error
}

// Dispatcher receives outbid notifications.
type Dispatcher interface {
	Enqueue(n domain.Notification)
}

type watcher struct {
	userID    string
	channelID string
}

// Service records bids against auctions known to the registry. Bids are
// kept in memory for the auction's tracked lifetime and written through,
// best-effort, to the archive.
type Service struct {
	registry *registry.Registry
	archive  Archiver // nil disables archiving
	out      Dispatcher
	now      func() time.Time

	mu       sync.Mutex
	bids     map[string][]*domain.Bid // asset ID -> bids, append order
	watchers map[string][]watcher
}

func NewService(reg *registry.Registry, archive Archiver, out Dispatcher) *Service {
	return &Service{
		registry: reg,
		archive:  archive,
		out:      out,
		now:      time.Now,
		bids:     make(map[string][]*domain.Bid),
		watchers: make(map[string][]watcher),
	}
}

// Confirm records a bid. The auction must be tracked and the amount must
// strictly exceed the current best bid.
func (s *Service) Confirm(ctx context.Context, assetID, userID string, amount int64) (*domain.Bid, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("bid amount %d: %w", amount, domain.ErrBadRequest)
	}
	if _, err := s.registry.Lookup(assetID); err != nil {
		return nil, err
	}

	b := &domain.Bid{
		BidID:    id.New(),
		AssetID:  assetID,
		UserID:   userID,
		Amount:   amount,
		PlacedAt: s.now().UTC(),
	}

	s.mu.Lock()
	prev := bestOf(s.bids[assetID], nil)
	if prev != nil && amount <= prev.Amount {
		s.mu.Unlock()
		return nil, fmt.Errorf("bid %d does not beat current best %d: %w",
			amount, prev.Amount, domain.ErrConflict)
	}
	s.bids[assetID] = append(s.bids[assetID], b)
	outbid := s.outbidTargets(assetID, prev, userID)
	s.mu.Unlock()

	slog.Info("bid confirmed", "asset_id", assetID, "user_id", userID, "amount", amount)

	for _, w := range outbid {
		s.out.Enqueue(domain.Notification{
			ChannelID: w.channelID,
			UserID:    w.userID,
			AssetID:   assetID,
			Text: fmt.Sprintf("📢 <@%s> you have been outbid on auction `%s` — the bid to beat is now %d.",
				w.userID, assetID, amount),
		})
	}

	if s.archive != nil {
		if err := s.archive.ArchiveBid(ctx, b); err != nil {
			slog.Warn("bid archive failed", "asset_id", assetID, "bid_id", b.BidID, "err", err)
		}
	}
	return b, nil
}

// outbidTargets returns the watchers owed a notification after prev was
// beaten. Only the previous leader's watchers are notified, and a user is
// never notified about their own bid. Caller holds mu.
func (s *Service) outbidTargets(assetID string, prev *domain.Bid, bidder string) []watcher {
	if prev == nil || prev.UserID == bidder {
		return nil
	}
	var out []watcher
	for _, w := range s.watchers[assetID] {
		if w.userID == prev.UserID {
			out = append(out, w)
		}
	}
	return out
}

// Watch subscribes the user to outbid notifications on the auction.
// Re-subscribing is a no-op.
func (s *Service) Watch(assetID, userID, channelID string) error {
	if _, err := s.registry.Lookup(assetID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.watchers[assetID] {
		if w.userID == userID {
			return nil
		}
	}
	s.watchers[assetID] = append(s.watchers[assetID], watcher{userID: userID, channelID: channelID})
	return nil
}

// Best returns the current leading bid: highest amount, earliest placement
// on ties.
func (s *Service) Best(assetID string) (*domain.Bid, error) {
	if _, err := s.registry.Lookup(assetID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bestOf(s.bids[assetID], nil)
	if b == nil {
		return nil, fmt.Errorf("no bids on asset %s: %w", assetID, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// Final returns the winning bid: the best among bids placed at or before
// the auction deadline. Without a known deadline it is the same as Best.
func (s *Service) Final(assetID string) (*domain.Bid, error) {
	post, err := s.registry.Lookup(assetID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bestOf(s.bids[assetID], post.EndsAt)
	if b == nil {
		return nil, fmt.Errorf("no qualifying bids on asset %s: %w", assetID, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

// List returns all bids on the auction, highest first, earliest first on
// equal amounts.
func (s *Service) List(assetID string) ([]domain.Bid, error) {
	if _, err := s.registry.Lookup(assetID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Bid, 0, len(s.bids[assetID]))
	for _, b := range s.bids[assetID] {
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out, nil
}

// bestOf picks the highest bid, breaking amount ties by earliest placement.
// A non-nil cutoff excludes bids placed after it.
func bestOf(bids []*domain.Bid, cutoff *time.Time) *domain.Bid {
	var best *domain.Bid
	for _, b := range bids {
		if cutoff != nil && b.PlacedAt.After(*cutoff) {
			continue
		}
		if best == nil || b.Amount > best.Amount ||
			(b.Amount == best.Amount && b.PlacedAt.Before(best.PlacedAt)) {
			best = b
		}
	}
	return best
}
