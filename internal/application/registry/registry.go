// Package registry keeps the in-memory record of correlated auction posts.
// The registry is the authoritative store for the process lifetime; admitted
// posts are additionally written through, best-effort, to the archive.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auction-sentry/internal/domain"
)

// Archiver persists admitted posts outside the process. Failures never
// affect registry state.
type Archiver interface {
	ArchivePost(ctx context.Context, post *domain.AuctionPost) error
}

// Registry records each correlated auction post keyed by asset identifier,
// de-duplicated on source post ID.
type Registry struct {
	mu        sync.Mutex
	bySource  map[string]*domain.AuctionPost
	byAsset   map[string]*domain.AuctionPost // most recent post per asset
	retention time.Duration
	archive   Archiver // nil disables archiving
}

func New(retention time.Duration, archive Archiver) *Registry {
	return &Registry{
		bySource:  make(map[string]*domain.AuctionPost),
		byAsset:   make(map[string]*domain.AuctionPost),
		retention: retention,
		archive:   archive,
	}
}

// Admit inserts the post unless its source post ID was already seen.
// The duplicate check and insert are a single critical section, so two
// concurrent identical posts cannot both be admitted.
func (r *Registry) Admit(ctx context.Context, post *domain.AuctionPost) error {
	r.mu.Lock()
	if _, seen := r.bySource[post.SourcePostID]; seen {
		r.mu.Unlock()
		return fmt.Errorf("source post %s: %w", post.SourcePostID, domain.ErrDuplicatePost)
	}
	r.bySource[post.SourcePostID] = post
	if cur, ok := r.byAsset[post.AssetID]; !ok || post.ReceivedAt.After(cur.ReceivedAt) {
		r.byAsset[post.AssetID] = post
	}
	r.mu.Unlock()

	if r.archive != nil {
		if err := r.archive.ArchivePost(ctx, post); err != nil {
			slog.Warn("post archive failed", "asset_id", post.AssetID, "err", err)
		}
	}
	return nil
}

// Lookup returns the most recent post for the asset.
func (r *Registry) Lookup(assetID string) (*domain.AuctionPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.byAsset[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
	}
	return post, nil
}

// RunJanitor sweeps expired posts until ctx is cancelled. Retention counts
// from the auction deadline when one is known, otherwise from receipt.
func (r *Registry) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.evict(time.Now()); n > 0 {
				slog.Info("evicted expired posts", "count", n)
			}
		}
	}
}

func (r *Registry) evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for src, post := range r.bySource {
		ref := post.ReceivedAt
		if post.EndsAt != nil {
			ref = *post.EndsAt
		}
		if now.Sub(ref) <= r.retention {
			continue
		}
		delete(r.bySource, src)
		if cur, ok := r.byAsset[post.AssetID]; ok && cur == post {
			delete(r.byAsset, post.AssetID)
		}
		evicted++
	}
	return evicted
}
