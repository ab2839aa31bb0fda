package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSummarizer struct{ mock.Mock }

func (m *mockSummarizer) Summarize(ctx context.Context, text string) (*domain.Judgment, error) {
	args := m.Called(ctx, text)
	if j, _ := args.Get(0).(*domain.Judgment); j != nil {
		return j, args.Error(1)
	}
	return nil, args.Error(1)
}

// slowSummarizer blocks until its context expires.
type slowSummarizer struct{}

func (slowSummarizer) Summarize(ctx context.Context, _ string) (*domain.Judgment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
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

func (c *captureDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func newSvc(summarizer Summarizer) (*Service, *captureDispatcher) {
	out := &captureDispatcher{}
	reg := registry.New(72*time.Hour, nil)
	return NewService(reg, summarizer, 50*time.Millisecond, out), out
}

func inbound(src, text string) InboundPost {
	return InboundPost{SourcePostID: src, ChannelID: "chan-1", Text: text, PostedAt: time.Now()}
}

func TestIngest_AdmitsPostWithIdentifier(t *testing.T) {
	svc, _ := newSvc(nil)

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "New auction: EID-123"))
	require.NoError(t, err)

	require.NotNil(t, res.Post)
	assert.Equal(t, "EID-123", res.Post.AssetID)
	assert.Equal(t, domain.ValidationValid, res.Post.Validation)
	assert.False(t, res.Duplicate)

	got, err := svc.registry.Lookup("EID-123")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", got.SourcePostID)
}

func TestIngest_SkipsPostWithoutIdentifier(t *testing.T) {
	svc, _ := newSvc(nil)

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "just chatting"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestIngest_SkipsAmbiguousIdentifiers(t *testing.T) {
	svc, _ := newSvc(nil)

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "EID-1 vs EID-2"))
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestIngest_DuplicateAbsorbed(t *testing.T) {
	svc, _ := newSvc(nil)

	_, err := svc.Ingest(context.Background(), inbound("msg-1", "auction EID-9"))
	require.NoError(t, err)
	res, err := svc.Ingest(context.Background(), inbound("msg-1", "auction EID-9"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestIngest_ValidVerdictCarriesSummary(t *testing.T) {
	sum := &mockSummarizer{}
	sum.On("Summarize", mock.Anything, mock.Anything).
		Return(&domain.Judgment{Summary: "rare collectible, ends tonight", Valid: true}, nil)
	svc, _ := newSvc(sum)

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "auction EID-5"))
	require.NoError(t, err)

	assert.Equal(t, domain.ValidationValid, res.Post.Validation)
	assert.Equal(t, "rare collectible, ends tonight", res.Post.Summary)
}

func TestIngest_InvalidVerdictRejects(t *testing.T) {
	sum := &mockSummarizer{}
	sum.On("Summarize", mock.Anything, mock.Anything).
		Return(&domain.Judgment{Valid: false}, nil)
	svc, _ := newSvc(sum)

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "selling EID-5 outright"))
	require.NoError(t, err)

	assert.True(t, res.Rejected)
	_, err = svc.registry.Lookup("EID-5")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestIngest_SummarizerErrorAdmitsUnvalidated(t *testing.T) {
	sum := &mockSummarizer{}
	sum.On("Summarize", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))
	svc, _ := newSvc(sum)

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "auction EID-7"))
	require.NoError(t, err)

	require.NotNil(t, res.Post)
	assert.Equal(t, domain.ValidationUnvalidated, res.Post.Validation)
}

func TestIngest_SummarizerTimeoutAdmitsUnvalidated(t *testing.T) {
	svc, _ := newSvc(slowSummarizer{})

	res, err := svc.Ingest(context.Background(), inbound("msg-1", "auction EID-8"))
	require.NoError(t, err)

	require.NotNil(t, res.Post)
	assert.Equal(t, domain.ValidationUnvalidated, res.Post.Validation)
}

func TestIngest_ParsesDeadline(t *testing.T) {
	svc, _ := newSvc(nil)
	endsAt := time.Now().Add(4 * time.Hour).Unix()

	res, err := svc.Ingest(context.Background(),
		inbound("msg-1", fmt.Sprintf("auction EID-3 ends <t:%d:R>", endsAt)))
	require.NoError(t, err)

	require.NotNil(t, res.Post.EndsAt)
	assert.Equal(t, endsAt, res.Post.EndsAt.Unix())
}

func TestIngest_StageAlertsArmedForLongAuctions(t *testing.T) {
	svc, _ := newSvc(nil)
	endsAt := time.Now().Add(6 * time.Hour).Unix()

	_, err := svc.Ingest(context.Background(),
		inbound("msg-1", fmt.Sprintf("auction EID-3 ends <t:%d>", endsAt)))
	require.NoError(t, err)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Len(t, svc.alerts, 2)
}

func TestIngest_NoStageAlertsForShortAuctions(t *testing.T) {
	svc, _ := newSvc(nil)
	endsAt := time.Now().Add(30 * time.Minute).Unix()

	_, err := svc.Ingest(context.Background(),
		inbound("msg-1", fmt.Sprintf("auction EID-3 ends <t:%d>", endsAt)))
	require.NoError(t, err)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Empty(t, svc.alerts)
}

func TestFireAlert_DispatchesOnceAndForgets(t *testing.T) {
	svc, out := newSvc(nil)
	key := domain.ReminderKey{UserID: alertHalfway, AssetID: "EID-3"}
	svc.mu.Lock()
	svc.arm(key, time.Now().Add(time.Hour),
		domain.Notification{ChannelID: "chan-1", AssetID: "EID-3", Text: "halftime"})
	gen := svc.alerts[key].gen
	svc.mu.Unlock()

	svc.fireAlert(key, gen)
	svc.fireAlert(key, gen) // second fire finds nothing

	assert.Equal(t, 1, out.count())
}

func TestFireAlert_StaleGenerationCannotFireReArmedAlert(t *testing.T) {
	svc, out := newSvc(nil)
	key := domain.ReminderKey{UserID: alertHalfway, AssetID: "EID-3"}

	// A newer post re-arms the alert while a pop of the old entry is in
	// flight. The stale fire must not deliver the re-armed payload early.
	svc.mu.Lock()
	svc.arm(key, time.Now().Add(time.Minute),
		domain.Notification{ChannelID: "chan-1", AssetID: "EID-3", Text: "old"})
	staleGen := svc.alerts[key].gen
	svc.arm(key, time.Now().Add(2*time.Hour),
		domain.Notification{ChannelID: "chan-1", AssetID: "EID-3", Text: "new"})
	svc.mu.Unlock()

	svc.fireAlert(key, staleGen)

	assert.Equal(t, 0, out.count())
	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Contains(t, svc.alerts, key)
}
