package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"echotree/domain/dto"
	"echotree/domain/model"
	"echotree/domain/repository"
	"echotree/infrastructure/adapters"
	"echotree/infrastructure/lock"
	"echotree/infrastructure/logger"
	"echotree/infrastructure/utils"
)

type Decrypter interface {
	Decrypt(blob string) (string, error)
}

type AdapterResolver interface {
	ForPlatform(key string) (adapters.Adapter, error)
}

// DeliveryEventSink receives one event per recorded delivery attempt.
type DeliveryEventSink interface {
	PublishDeliveryEvent(ctx context.Context, evt model.DeliveryEvent) error
}

type IPublishUsecase interface {
	// PublishDue attempts every scheduled post whose time has come, oldest first.
	PublishDue(ctx context.Context) (*dto.SweepReport, error)
	// PublishPost attempts a single post immediately. Non-scheduled posts are skipped.
	PublishPost(ctx context.Context, postID int64) (*dto.SweepReport, error)
}

// PublishUsecase is the delivery engine. Deliveries are processed one at a time under the publish lock.
type PublishUsecase struct {
	posts    repository.IPost
	locker   lock.Locker
	limiter  IRateLimiter
	codec    Decrypter
	adapters AdapterResolver
	sinks    []DeliveryEventSink
	now      func() time.Time
}

func NewPublishUsecase(posts repository.IPost, locker lock.Locker, limiter IRateLimiter, codec Decrypter, resolver AdapterResolver) *PublishUsecase {
	return &PublishUsecase{
		posts:    posts,
		locker:   locker,
		limiter:  limiter,
		codec:    codec,
		adapters: resolver,
		now:      utils.GetCurrentTime,
	}
}

// WithEventSink registers an additional receiver of delivery events; nil sinks are ignored.
func (u *PublishUsecase) WithEventSink(sink DeliveryEventSink) *PublishUsecase {
	if sink != nil {
		u.sinks = append(u.sinks, sink)
	}
	return u
}

func (u *PublishUsecase) PublishDue(ctx context.Context) (*dto.SweepReport, error) {
	return u.sweep(ctx, func(ctx context.Context) ([]*model.Post, error) {
		return u.posts.ListDue(ctx, u.now())
	})
}

func (u *PublishUsecase) PublishPost(ctx context.Context, postID int64) (*dto.SweepReport, error) {
	return u.sweep(ctx, func(ctx context.Context) ([]*model.Post, error) {
		post, err := u.posts.GetByID(ctx, postID)
		if err != nil {
			return nil, err
		}
		if post.Status != model.PostStatusScheduled {
			logger.GetLogger().WithField("post_id", postID).WithField("status", post.Status).Info("post is not scheduled, skipping publish")
			return nil, nil
		}
		return []*model.Post{post}, nil
	})
}

// sweep runs to completion once the lock is held. Caller cancellation is dropped so that an
// accepted remote publish is always recorded; adapter timeouts bound each outbound call.
func (u *PublishUsecase) sweep(ctx context.Context, load func(context.Context) ([]*model.Post, error)) (*dto.SweepReport, error) {
	ctx = context.WithoutCancel(ctx)
	report := &dto.SweepReport{Posts: []dto.PostPublishResult{}}

	handle, err := u.locker.TryAcquire()
	if errors.Is(err, lock.ErrUnavailable) {
		logger.GetLogger().Info("publish lock held by another sweep, skipping")
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if rErr := handle.Release(); rErr != nil {
			logger.GetLogger().WithField("error", rErr).Error("failed releasing publish lock")
		}
	}()
	report.LockAcquired = true

	posts, err := load(ctx)
	if err != nil {
		return report, err
	}
	for _, post := range posts {
		report.Posts = append(report.Posts, u.publishPost(ctx, post))
	}
	return report, nil
}

func (u *PublishUsecase) publishPost(ctx context.Context, post *model.Post) dto.PostPublishResult {
	lg := logger.GetLogger().WithField("post_id", post.ID)
	result := dto.PostPublishResult{PostID: post.ID, Status: post.Status, Attempts: []dto.AttemptOutcome{}}

	targets, err := u.posts.ListSelectable(ctx, post.ID)
	if err != nil {
		lg.WithField("error", err).Error("failed loading deliveries")
		return result
	}
	for _, t := range targets {
		result.Attempts = append(result.Attempts, u.attempt(ctx, post, t))
	}

	counts, err := u.posts.CountDeliveries(ctx, post.ID)
	if err != nil {
		lg.WithField("error", err).Error("failed counting deliveries")
		return result
	}
	result.Counts = counts
	status := model.DerivePostStatus(counts)
	if status != model.PostStatusScheduled {
		if err := u.posts.FinalizeStatus(ctx, post.ID, status); err != nil {
			lg.WithField("error", err).Error("failed finalizing post status")
			return result
		}
	}
	result.Status = status
	lg.WithField("status", status).WithField("sent", counts.Sent).WithField("failed", counts.Failed).
		WithField("pending", counts.Pending).Info("post publish pass finished")
	return result
}

func (u *PublishUsecase) attempt(ctx context.Context, post *model.Post, t *model.DeliveryTarget) dto.AttemptOutcome {
	acct := t.Account
	out := dto.AttemptOutcome{
		DeliveryID: t.Delivery.ID,
		AccountID:  acct.ID,
		Platform:   acct.Platform,
		Status:     model.DeliveryStatusPending,
	}
	lg := logger.GetLogger().WithField("post_id", post.ID).WithField("delivery_id", t.Delivery.ID).
		WithField("account_id", acct.ID).WithField("platform", acct.Platform)

	limited, err := u.limiter.IsRateLimited(ctx, acct.ID)
	if err != nil {
		// Unknown history: leave it pending rather than risk a burst.
		lg.WithField("error", err).Warn("rate limit check failed, leaving delivery pending")
		out.RateLimited = true
		return out
	}
	if limited {
		lg.Info("account is rate limited, leaving delivery pending")
		out.RateLimited = true
		return out
	}

	externalID, pubErr := u.publish(ctx, post, acct)
	if pubErr != nil {
		out.Status = model.DeliveryStatusFailed
		out.Error = pubErr.Error()
		if err := u.posts.MarkFailed(ctx, t.Delivery.ID, out.Error); err != nil {
			lg.WithField("error", err).Error("failed recording delivery failure")
		}
		lg.WithField("error", out.Error).Warn("delivery failed")
	} else {
		out.ExternalID = externalID
		if err := u.posts.MarkSent(ctx, t.Delivery.ID, externalID, u.now()); err != nil {
			// The row is still selectable; report what the store holds, not what the platform did.
			out.Status = t.Delivery.Status
			out.Error = fmt.Sprintf("published as %s but not recorded: %v", externalID, err)
			lg.WithField("external_id", externalID).WithField("error", err).Error("failed recording delivery success")
		} else {
			out.Status = model.DeliveryStatusSent
			lg.WithField("external_id", externalID).Info("delivery sent")
		}
	}

	u.record(ctx, post, t, out)
	return out
}

// publish runs decrypt, adapter lookup and the remote call; any failure is fatal to this delivery only.
func (u *PublishUsecase) publish(ctx context.Context, post *model.Post, acct model.Account) (string, error) {
	credential, err := u.codec.Decrypt(acct.CredentialEncrypted)
	if err != nil {
		return "", err
	}
	adapter, err := u.adapters.ForPlatform(string(acct.Platform))
	if err != nil {
		return "", err
	}
	return adapter.Publish(ctx, post.Comment, post.ArticleURL, &model.AccountCredentials{
		ID:          acct.ID,
		Platform:    acct.Platform,
		DisplayName: acct.DisplayName,
		Handle:      acct.Handle,
		Credential:  credential,
	})
}

func (u *PublishUsecase) record(ctx context.Context, post *model.Post, t *model.DeliveryTarget, out dto.AttemptOutcome) {
	now := u.now()
	var errMsg, extID *string
	if out.Error != "" {
		errMsg = &out.Error
	}
	if out.ExternalID != "" {
		extID = &out.ExternalID
	}

	audit := &model.DeliveryAudit{
		DeliveryID:   t.Delivery.ID,
		PostID:       post.ID,
		AccountID:    t.Account.ID,
		Platform:     t.Account.Platform,
		Status:       out.Status,
		ErrorMessage: errMsg,
		CreatedAt:    now,
	}
	if err := u.posts.CreateAudit(ctx, []*model.DeliveryAudit{audit}); err != nil {
		logger.GetLogger().WithField("delivery_id", t.Delivery.ID).WithField("error", err).Warn("failed writing delivery audit")
	}

	evt := model.DeliveryEvent{
		Type:       "delivery_status",
		PostID:     post.ID,
		DeliveryID: t.Delivery.ID,
		AccountID:  t.Account.ID,
		Platform:   t.Account.Platform,
		Status:     out.Status,
		ExternalID: extID,
		Error:      errMsg,
		OccurredAt: now,
	}
	for _, sink := range u.sinks {
		if err := sink.PublishDeliveryEvent(ctx, evt); err != nil {
			logger.GetLogger().WithField("delivery_id", t.Delivery.ID).WithField("error", err).Warn("failed publishing delivery event")
		}
	}
}

var _ IPublishUsecase = (*PublishUsecase)(nil)
