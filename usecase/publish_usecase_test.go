package usecase

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"echotree/domain/model"
	"echotree/infrastructure/adapters"
	"echotree/infrastructure/lock"
	"echotree/infrastructure/logger"
)

var (
	errBadBlob = errors.New("bad blob")
	fixedNow   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func init() {
	logger.SetOutput(io.Discard)
}

type engineFixture struct {
	posts    *memPosts
	accounts *memAccounts
	twitter  *MockAdapter
	mastodon *MockAdapter
	locker   *lock.FileLock
	engine   *PublishUsecase
	limiter  *RateLimiter
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{accounts: newMemAccounts(), twitter: new(MockAdapter), mastodon: new(MockAdapter)}
	f.posts = newMemPosts(f.accounts)
	f.locker = lock.NewFileLock(filepath.Join(t.TempDir(), "publisher.lock"))
	f.limiter = NewRateLimiter(f.posts, 10*time.Minute)
	f.limiter.now = func() time.Time { return fixedNow }
	registry := adapters.NewRegistryWith(map[model.Platform]adapters.Adapter{
		model.PlatformTwitter:  f.twitter,
		model.PlatformMastodon: f.mastodon,
	})
	f.engine = NewPublishUsecase(f.posts, f.locker, f.limiter, plainCodec{}, registry)
	f.engine.now = func() time.Time { return fixedNow }
	return f
}

func (f *engineFixture) account(t *testing.T, p model.Platform, active bool) int64 {
	t.Helper()
	id, err := f.accounts.Create(context.Background(), &model.Account{
		Platform: p, DisplayName: string(p), CredentialEncrypted: "enc:token-" + string(p), IsActive: active,
	})
	require.NoError(t, err)
	return id
}

func (f *engineFixture) post(t *testing.T, at time.Time, accountIDs ...int64) int64 {
	t.Helper()
	id, err := f.posts.CreateWithDeliveries(context.Background(), &model.Post{
		ArticleID: 1, ArticleURL: "https://example.com/a", Comment: "worth a read", ScheduledAt: at,
	}, accountIDs)
	require.NoError(t, err)
	return id
}

func TestPublishDue_AllSentFinalizesPost(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	ma := f.account(t, model.PlatformMastodon, true)
	postID := f.post(t, fixedNow.Add(-time.Minute), tw, ma)

	f.twitter.On("Publish", mock.Anything, "worth a read", "https://example.com/a",
		mock.MatchedBy(func(c *model.AccountCredentials) bool { return c.Credential == "token-twitter" })).Return("tw-1", nil).Once()
	f.mastodon.On("Publish", mock.Anything, "worth a read", "https://example.com/a", mock.Anything).Return("ma-1", nil).Once()

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	assert.True(t, report.LockAcquired)
	require.Len(t, report.Posts, 1)
	assert.Equal(t, model.PostStatusSent, report.Posts[0].Status)
	assert.Equal(t, model.DeliveryCounts{Sent: 2}, report.Posts[0].Counts)

	post, _ := f.posts.GetByID(context.Background(), postID)
	assert.Equal(t, model.PostStatusSent, post.Status)
	assert.Len(t, f.posts.audits, 2)
	f.twitter.AssertExpectations(t)
	f.mastodon.AssertExpectations(t)
}

func TestPublishDue_SkipsFuturePosts(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	f.post(t, fixedNow.Add(time.Hour), tw)

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Posts)
	f.twitter.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishDue_MixedOutcomeIsSentAndFailureIsolated(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	ma := f.account(t, model.PlatformMastodon, true)
	postID := f.post(t, fixedNow, tw, ma)

	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", &adapters.PublishError{Kind: adapters.KindRemote, Platform: model.PlatformTwitter, StatusCode: 503, Message: "unavailable"}).Once()
	f.mastodon.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ma-9", nil).Once()

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Posts, 1)
	res := report.Posts[0]
	assert.Equal(t, model.PostStatusSent, res.Status)
	assert.Equal(t, model.DeliveryCounts{Sent: 1, Failed: 1}, res.Counts)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, model.DeliveryStatusFailed, res.Attempts[0].Status)
	assert.NotEmpty(t, res.Attempts[0].Error)
	assert.Equal(t, "ma-9", res.Attempts[1].ExternalID)

	post, _ := f.posts.GetByID(context.Background(), postID)
	assert.Equal(t, model.PostStatusSent, post.Status)
}

func TestPublishDue_AllFailedMarksPostFailed(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	postID := f.post(t, fixedNow, tw)
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("boom")).Once()

	_, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)

	post, _ := f.posts.GetByID(context.Background(), postID)
	assert.Equal(t, model.PostStatusFailed, post.Status)
	deliveries, _ := f.posts.ListDeliveries(context.Background(), postID)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "boom", *deliveries[0].ErrorMessage)
	assert.Equal(t, 1, deliveries[0].AttemptCount)
}

func TestPublishDue_DecryptFailureFailsOnlyThatDelivery(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	ma := f.account(t, model.PlatformMastodon, true)
	require.NoError(t, f.accounts.UpdateCredential(context.Background(), tw, "garbage"))
	f.post(t, fixedNow, tw, ma)
	f.mastodon.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("ma-2", nil).Once()

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	res := report.Posts[0]
	assert.Equal(t, model.DeliveryStatusFailed, res.Attempts[0].Status)
	assert.Equal(t, model.DeliveryStatusSent, res.Attempts[1].Status)
	f.twitter.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishDue_UnsupportedPlatformFailsDelivery(t *testing.T) {
	f := newEngineFixture(t)
	li := f.account(t, model.PlatformLinkedIn, true)
	postID := f.post(t, fixedNow, li)

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.Posts[0].Attempts[0].Error, "unsupported")
	post, _ := f.posts.GetByID(context.Background(), postID)
	assert.Equal(t, model.PostStatusFailed, post.Status)
}

func TestPublishDue_RateLimitedAccountStaysPending(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	first := f.post(t, fixedNow.Add(-2*time.Minute), tw)
	second := f.post(t, fixedNow.Add(-time.Minute), tw)
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-1", nil).Once()

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Posts, 2)
	assert.Equal(t, first, report.Posts[0].PostID)
	assert.Equal(t, model.PostStatusSent, report.Posts[0].Status)

	assert.Equal(t, second, report.Posts[1].PostID)
	assert.Equal(t, model.PostStatusScheduled, report.Posts[1].Status)
	assert.True(t, report.Posts[1].Attempts[0].RateLimited)
	assert.Equal(t, model.DeliveryStatusPending, report.Posts[1].Attempts[0].Status)
	// A vetoed delivery writes no audit row.
	assert.Len(t, f.posts.audits, 1)
	f.twitter.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublishDue_RateLimitedDeliveryGoesOutAfterWindow(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	f.post(t, fixedNow.Add(-2*time.Minute), tw)
	second := f.post(t, fixedNow.Add(-time.Minute), tw)
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-1", nil).Once()

	_, err := f.engine.PublishDue(ctx)
	require.NoError(t, err)
	post, _ := f.posts.GetByID(ctx, second)
	require.Equal(t, model.PostStatusScheduled, post.Status)

	later := fixedNow.Add(11 * time.Minute)
	f.engine.now = func() time.Time { return later }
	f.limiter.now = func() time.Time { return later }
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-2", nil).Once()

	report, err := f.engine.PublishDue(ctx)
	require.NoError(t, err)
	require.Len(t, report.Posts, 1)
	assert.Equal(t, second, report.Posts[0].PostID)
	assert.False(t, report.Posts[0].Attempts[0].RateLimited)
	assert.Equal(t, model.DeliveryStatusSent, report.Posts[0].Attempts[0].Status)
	post, _ = f.posts.GetByID(ctx, second)
	assert.Equal(t, model.PostStatusSent, post.Status)
	f.twitter.AssertNumberOfCalls(t, "Publish", 2)
}

func TestPublishPost_CallerCancelDoesNotLoseSentDelivery(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	postID := f.post(t, fixedNow, tw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return("tw-1", nil).Once()

	report, err := f.engine.PublishPost(ctx, postID)
	require.NoError(t, err)
	require.Len(t, report.Posts, 1)
	assert.Equal(t, model.DeliveryStatusSent, report.Posts[0].Attempts[0].Status)
	assert.Equal(t, model.PostStatusSent, report.Posts[0].Status)

	d, _ := f.posts.ListDeliveries(context.Background(), postID)
	assert.Equal(t, model.DeliveryStatusSent, d[0].Status)
	assert.Equal(t, "tw-1", *d[0].ExternalID)

	again, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Posts)
	f.twitter.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublishDue_UnrecordedSuccessIsNotReportedSent(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	postID := f.post(t, fixedNow, tw)
	f.posts.markSentErr = errors.New("disk full")
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-1", nil).Once()

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	out := report.Posts[0].Attempts[0]
	assert.Equal(t, model.DeliveryStatusPending, out.Status)
	assert.Equal(t, "tw-1", out.ExternalID)
	assert.Contains(t, out.Error, "disk full")
	assert.Equal(t, model.PostStatusScheduled, report.Posts[0].Status)

	d, _ := f.posts.ListDeliveries(context.Background(), postID)
	assert.Equal(t, model.DeliveryStatusPending, d[0].Status)
}

func TestPublishDue_InactiveAccountIsNotSelected(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, false)
	postID := f.post(t, fixedNow, tw)

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Posts[0].Attempts)
	post, _ := f.posts.GetByID(context.Background(), postID)
	assert.Equal(t, model.PostStatusScheduled, post.Status)
}

func TestPublishDue_FailedDeliveryIsRetriedNextSweep(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	ma := f.account(t, model.PlatformMastodon, true)

	// mastodon is cooling down from an earlier share, which keeps the post scheduled.
	earlier := f.post(t, fixedNow.Add(-time.Hour), ma)
	ds, _ := f.posts.ListDeliveries(ctx, earlier)
	require.NoError(t, f.posts.MarkSent(ctx, ds[0].ID, "ma-0", fixedNow.Add(-time.Minute)))
	postID := f.post(t, fixedNow, tw, ma)

	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("flaky")).Once()
	_, err := f.engine.PublishDue(ctx)
	require.NoError(t, err)
	post, _ := f.posts.GetByID(ctx, postID)
	assert.Equal(t, model.PostStatusScheduled, post.Status)

	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-2", nil).Once()
	_, err = f.engine.PublishDue(ctx)
	require.NoError(t, err)

	deliveries, _ := f.posts.ListDeliveries(ctx, postID)
	require.Len(t, deliveries, 2)
	assert.Equal(t, model.DeliveryStatusSent, deliveries[0].Status)
	assert.Equal(t, 2, deliveries[0].AttemptCount)
	assert.Nil(t, deliveries[0].ErrorMessage)
	assert.Equal(t, model.DeliveryStatusPending, deliveries[1].Status)
	f.mastodon.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishDue_SentDeliveryIsNeverRepublished(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	postID := f.post(t, fixedNow, tw)
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-1", nil).Once()

	_, err := f.engine.PublishPost(context.Background(), postID)
	require.NoError(t, err)
	report, err := f.engine.PublishPost(context.Background(), postID)
	require.NoError(t, err)
	assert.Empty(t, report.Posts)

	f.twitter.AssertNumberOfCalls(t, "Publish", 1)
	d, _ := f.posts.ListDeliveries(context.Background(), postID)
	assert.Equal(t, "tw-1", *d[0].ExternalID)
}

func TestPublishPost_NotFound(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.PublishPost(context.Background(), 404)
	assert.Error(t, err)
}

func TestPublishPost_IgnoresScheduleTime(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	postID := f.post(t, fixedNow.Add(24*time.Hour), tw)
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-1", nil).Once()

	report, err := f.engine.PublishPost(context.Background(), postID)
	require.NoError(t, err)
	require.Len(t, report.Posts, 1)
	assert.Equal(t, model.PostStatusSent, report.Posts[0].Status)
}

func TestSweep_LockHeldSkipsEverything(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	f.post(t, fixedNow, tw)

	held, err := f.locker.TryAcquire()
	require.NoError(t, err)
	defer held.Release()

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	assert.False(t, report.LockAcquired)
	assert.Empty(t, report.Posts)
	f.twitter.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_LockIsReleased(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)

	h, err := f.locker.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, h.Release())
}

func TestSweep_EmitsDeliveryEvents(t *testing.T) {
	f := newEngineFixture(t)
	tw := f.account(t, model.PlatformTwitter, true)
	postID := f.post(t, fixedNow, tw)
	f.twitter.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("tw-7", nil).Once()

	sink := new(MockSink)
	sink.On("PublishDeliveryEvent", mock.Anything, mock.MatchedBy(func(e model.DeliveryEvent) bool {
		return e.PostID == postID && e.Status == model.DeliveryStatusSent && e.ExternalID != nil && *e.ExternalID == "tw-7"
	})).Return(errors.New("sink down")).Once()
	f.engine.WithEventSink(sink).WithEventSink(nil)

	report, err := f.engine.PublishDue(context.Background())
	require.NoError(t, err)
	// Sink failures never change the delivery outcome.
	assert.Equal(t, model.PostStatusSent, report.Posts[0].Status)
	sink.AssertExpectations(t)
}

func TestRateLimiter_DisabledWindow(t *testing.T) {
	posts := newMemPosts(newMemAccounts())
	limited, err := NewRateLimiter(posts, 0).IsRateLimited(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestRateLimiter_WindowBoundary(t *testing.T) {
	accounts := newMemAccounts()
	posts := newMemPosts(accounts)
	postID, _ := posts.CreateWithDeliveries(context.Background(), &model.Post{ScheduledAt: fixedNow}, []int64{7})
	ds, _ := posts.ListDeliveries(context.Background(), postID)
	require.NoError(t, posts.MarkSent(context.Background(), ds[0].ID, "x", fixedNow.Add(-10*time.Minute)))

	l := NewRateLimiter(posts, 10*time.Minute)
	l.now = func() time.Time { return fixedNow }
	limited, err := l.IsRateLimited(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, limited)

	l.now = func() time.Time { return fixedNow.Add(time.Second) }
	limited, err = l.IsRateLimited(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, limited)
}
