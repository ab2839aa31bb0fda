package reminder

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/auction-sentry/internal/domain"
)

// FireFunc is invoked on the scheduler goroutine for every key whose due
// time has arrived, together with the generation Schedule returned for that
// entry. The owner of the key decides whether it still fires: a generation
// mismatch means the entry was replaced after this fire was already in
// flight, and the pop is stale.
type FireFunc func(key domain.ReminderKey, gen uint64)

type entry struct {
	key   domain.ReminderKey
	dueAt time.Time
	seq   uint64 // insertion order, breaks due-time ties deterministically
	index int    // position in the heap, maintained by Swap
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if !h[i].dueAt.Equal(h[j].dueAt) {
		return h[i].dueAt.Before(h[j].dueAt)
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Scheduler maintains a time-ordered index of reminder keys and runs a
// single timing loop that fires them at their due time. It holds keys only,
// never reminder state — the store stays the single owner of that.
type Scheduler struct {
	mu      sync.Mutex
	heap    entryHeap
	entries map[domain.ReminderKey]*entry
	seq     uint64
	wake    chan struct{}
	fire    FireFunc
}

func NewScheduler(fire FireFunc) *Scheduler {
	return &Scheduler{
		entries: make(map[domain.ReminderKey]*entry),
		wake:    make(chan struct{}, 1),
		fire:    fire,
	}
}

// Schedule indexes key at dueAt, replacing any existing entry for the same
// key, and returns the entry's generation. O(log n).
func (s *Scheduler) Schedule(key domain.ReminderKey, dueAt time.Time) uint64 {
	s.mu.Lock()
	if old, ok := s.entries[key]; ok {
		heap.Remove(&s.heap, old.index)
	}
	s.seq++
	e := &entry{key: key, dueAt: dueAt, seq: s.seq}
	s.entries[key] = e
	heap.Push(&s.heap, e)
	earliest := s.heap[0] == e
	s.mu.Unlock()

	// The loop only needs re-arming when the wake target moved forward.
	if earliest {
		s.notify()
	}
	return e.seq
}

// Remove drops the index entry for key, re-arming the timing loop if the
// entry was the earliest. Returns whether an entry existed. O(log n).
func (s *Scheduler) Remove(key domain.ReminderKey) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	wasHead := s.heap[0] == e
	heap.Remove(&s.heap, e.index)
	delete(s.entries, key)
	s.mu.Unlock()

	if wasHead {
		s.notify()
	}
	return true
}

// Len reports the number of outstanding index entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. It wakes when the earliest due time
// arrives or when Schedule/Remove changed the wake target, then pops every
// entry that is due and fires it in due-time order.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		due := s.popDue(time.Now())
		var wait <-chan time.Time
		var timer *time.Timer
		if len(s.heap) > 0 {
			timer = time.NewTimer(time.Until(s.heap[0].dueAt))
			wait = timer.C
		}
		s.mu.Unlock()

		for _, e := range due {
			s.fire(e.key, e.seq)
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-wait:
		}
	}
}

// popDue removes and returns all entries due at or before now, in due-time
// order. Caller holds mu.
func (s *Scheduler) popDue(now time.Time) []*entry {
	var due []*entry
	for len(s.heap) > 0 && !s.heap[0].dueAt.After(now) {
		e := heap.Pop(&s.heap).(*entry)
		delete(s.entries, e.key)
		due = append(due, e)
	}
	return due
}
