package bid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockArchiver struct{ mock.Mock }

func (m *mockArchiver) ArchiveBid(ctx context.Context, b *domain.Bid) error {
	return m.Called(ctx, b).Error(0)
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (c *captureDispatcher) Enqueue(n domain.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureDispatcher) notifications() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Notification, len(c.sent))
	copy(out, c.sent)
	return out
}

func trackedAuction(t *testing.T, reg *registry.Registry, assetID string, endsAt *time.Time) {
	t.Helper()
	require.NoError(t, reg.Admit(context.Background(), &domain.AuctionPost{
		AssetID:      assetID,
		SourcePostID: "src-" + assetID,
		ChannelID:    "chan-1",
		Validation:   domain.ValidationValid,
		EndsAt:       endsAt,
		ReceivedAt:   time.Now().UTC(),
	}))
}

func newSvc(t *testing.T, archive Archiver) (*Service, *registry.Registry, *captureDispatcher) {
	t.Helper()
	reg := registry.New(72*time.Hour, nil)
	out := &captureDispatcher{}
	return NewService(reg, archive, out), reg, out
}

func TestConfirm_RecordsBid(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	b, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, b.BidID)
	assert.Equal(t, int64(100), b.Amount)

	best, err := svc.Best("EID-1")
	require.NoError(t, err)
	assert.Equal(t, b.BidID, best.BidID)
}

func TestConfirm_UnknownAuction(t *testing.T) {
	svc, _, _ := newSvc(t, nil)

	_, err := svc.Confirm(context.Background(), "EID-404", "u1", 100)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestConfirm_RejectsNonPositiveAmount(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	for _, amount := range []int64{0, -50} {
		_, err := svc.Confirm(context.Background(), "EID-1", "u1", amount)
		assert.True(t, errors.Is(err, domain.ErrBadRequest))
	}
}

func TestConfirm_MustBeatCurrentBest(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)

	for _, amount := range []int64{100, 90} {
		_, err := svc.Confirm(context.Background(), "EID-1", "u2", amount)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	}

	_, err = svc.Confirm(context.Background(), "EID-1", "u2", 101)
	require.NoError(t, err)
}

func TestConfirm_NotifiesOutbidWatcher(t *testing.T) {
	svc, reg, out := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	require.NoError(t, svc.Watch("EID-1", "u1", "chan-1"))

	_, err = svc.Confirm(context.Background(), "EID-1", "u2", 200)
	require.NoError(t, err)

	sent := out.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "u1", sent[0].UserID)
	assert.Contains(t, sent[0].Text, "outbid")
	assert.Contains(t, sent[0].Text, "200")
}

func TestConfirm_NoSelfOutbidNotification(t *testing.T) {
	svc, reg, out := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	require.NoError(t, svc.Watch("EID-1", "u1", "chan-1"))

	_, err = svc.Confirm(context.Background(), "EID-1", "u1", 200)
	require.NoError(t, err)

	assert.Empty(t, out.notifications())
}

func TestConfirm_NonLeaderWatcherNotNotified(t *testing.T) {
	svc, reg, out := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	require.NoError(t, svc.Watch("EID-1", "u3", "chan-1")) // watching but never led

	_, err = svc.Confirm(context.Background(), "EID-1", "u2", 200)
	require.NoError(t, err)

	assert.Empty(t, out.notifications())
}

func TestWatch_UnknownAuction(t *testing.T) {
	svc, _, _ := newSvc(t, nil)
	err := svc.Watch("EID-404", "u1", "chan-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestBest_NoBids(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Best("EID-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFinal_ExcludesLateBids(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	endsAt := time.Now().Add(time.Hour)
	trackedAuction(t, reg, "EID-1", &endsAt)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)

	// Late bid, placed after the deadline.
	svc.now = func() time.Time { return endsAt.Add(time.Minute) }
	late, err := svc.Confirm(context.Background(), "EID-1", "u2", 200)
	require.NoError(t, err)

	best, err := svc.Best("EID-1")
	require.NoError(t, err)
	assert.Equal(t, late.BidID, best.BidID)

	final, err := svc.Final("EID-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), final.Amount)
	assert.Equal(t, "u1", final.UserID)
}

func TestFinal_NoDeadlineFallsBackToBest(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)

	final, err := svc.Final("EID-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), final.Amount)
}

func TestList_SortsByAmountThenTime(t *testing.T) {
	svc, reg, _ := newSvc(t, nil)
	trackedAuction(t, reg, "EID-1", nil)

	base := time.Now().UTC()
	times := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}
	i := 0
	svc.now = func() time.Time { t := times[i]; i++; return t }

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), "EID-1", "u2", 150)
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), "EID-1", "u3", 300)
	require.NoError(t, err)

	got, err := svc.List("EID-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{300, 150, 100}, []int64{got[0].Amount, got[1].Amount, got[2].Amount})
}

func TestConfirm_ArchivesWriteThrough(t *testing.T) {
	archive := &mockArchiver{}
	archive.On("ArchiveBid", mock.Anything, mock.Anything).Return(nil)
	svc, reg, _ := newSvc(t, archive)
	trackedAuction(t, reg, "EID-1", nil)

	_, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	archive.AssertNumberOfCalls(t, "ArchiveBid", 1)
}

func TestConfirm_ArchiveFailureDoesNotSurface(t *testing.T) {
	archive := &mockArchiver{}
	archive.On("ArchiveBid", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))
	svc, reg, _ := newSvc(t, archive)
	trackedAuction(t, reg, "EID-1", nil)

	b, err := svc.Confirm(context.Background(), "EID-1", "u1", 100)
	require.NoError(t, err)
	require.NotNil(t, b)

	best, err := svc.Best("EID-1")
	require.NoError(t, err)
	assert.Equal(t, b.BidID, best.BidID)
}
