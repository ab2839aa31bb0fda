package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/auction-sentry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) ArchivePost(ctx context.Context, post *domain.AuctionPost) error {
	return m.Called(ctx, post).Error(0)
}

func post(src, asset string, at time.Time) *domain.AuctionPost {
	return &domain.AuctionPost{
		AssetID:      asset,
		SourcePostID: src,
		ChannelID:    "chan-1",
		Validation:   domain.ValidationValid,
		ReceivedAt:   at,
	}
}

func TestAdmit_ThenLookup(t *testing.T) {
	r := New(time.Hour, nil)
	p := post("msg-1", "EID-123", time.Now())

	require.NoError(t, r.Admit(context.Background(), p))

	got, err := r.Lookup("EID-123")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got.SourcePostID)
}

func TestAdmit_DuplicateSourceRejected(t *testing.T) {
	r := New(time.Hour, nil)
	now := time.Now()

	require.NoError(t, r.Admit(context.Background(), post("msg-1", "EID-999", now)))
	err := r.Admit(context.Background(), post("msg-1", "EID-999", now))

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicatePost))
}

func TestAdmit_ConcurrentDuplicates_ExactlyOneWins(t *testing.T) {
	r := New(time.Hour, nil)
	const n = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Admit(context.Background(), post("msg-same", "EID-999", time.Now())); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	got, err := r.Lookup("EID-999")
	require.NoError(t, err)
	assert.Equal(t, "msg-same", got.SourcePostID)
}

func TestLookup_MostRecentWins(t *testing.T) {
	r := New(time.Hour, nil)
	base := time.Now()

	require.NoError(t, r.Admit(context.Background(), post("msg-old", "EID-5", base)))
	require.NoError(t, r.Admit(context.Background(), post("msg-new", "EID-5", base.Add(time.Minute))))

	got, err := r.Lookup("EID-5")
	require.NoError(t, err)
	assert.Equal(t, "msg-new", got.SourcePostID)
}

func TestLookup_UnknownAsset(t *testing.T) {
	r := New(time.Hour, nil)
	_, err := r.Lookup("EID-404")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAdmit_ArchiveFailureDoesNotAffectState(t *testing.T) {
	ar := &mockArchiver{}
	ar.On("ArchivePost", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))
	r := New(time.Hour, ar)

	require.NoError(t, r.Admit(context.Background(), post("msg-1", "EID-7", time.Now())))

	_, err := r.Lookup("EID-7")
	assert.NoError(t, err)
	ar.AssertExpectations(t)
}

func TestEvict_RemovesExpiredPosts(t *testing.T) {
	r := New(time.Hour, nil)
	old := post("msg-old", "EID-1", time.Now().Add(-2*time.Hour))
	fresh := post("msg-new", "EID-2", time.Now())

	require.NoError(t, r.Admit(context.Background(), old))
	require.NoError(t, r.Admit(context.Background(), fresh))

	assert.Equal(t, 1, r.evict(time.Now()))

	_, err := r.Lookup("EID-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = r.Lookup("EID-2")
	assert.NoError(t, err)
}

func TestEvict_CountsFromDeadlineWhenPresent(t *testing.T) {
	r := New(time.Hour, nil)
	endsAt := time.Now().Add(3 * time.Hour)
	p := post("msg-1", "EID-9", time.Now().Add(-2*time.Hour))
	p.EndsAt = &endsAt

	require.NoError(t, r.Admit(context.Background(), p))

	// Received long ago, but the deadline is still ahead — must survive.
	assert.Equal(t, 0, r.evict(time.Now()))
}
