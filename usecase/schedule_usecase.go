package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"echotree/domain/dto"
	"echotree/domain/model"
	"echotree/domain/repository"
	"echotree/infrastructure/cache"
	"echotree/infrastructure/logger"
	"echotree/infrastructure/utils"
)

type IScheduleUsecase interface {
	IssueSubmitToken(ctx context.Context, session string) (string, error)
	Submit(ctx context.Context, session string, req dto.SubmitPostRequest) (*dto.SubmitPostResult, error)
	Edit(ctx context.Context, postID int64, req dto.EditPostRequest) error
	Cancel(ctx context.Context, postID int64) error
	Details(ctx context.Context, postID int64) (*dto.PostDetails, error)
	ListScheduled(ctx context.Context) ([]*dto.PostDetails, error)
}

type ScheduleUsecase struct {
	posts     repository.IPost
	accounts  repository.IAccount
	articles  repository.IArticle
	tokens    cache.ISubmitToken
	publisher IPublishUsecase
	limiter   IRateLimiter
	now       func() time.Time
}

func NewScheduleUsecase(
	posts repository.IPost,
	accounts repository.IAccount,
	articles repository.IArticle,
	tokens cache.ISubmitToken,
	publisher IPublishUsecase,
	limiter IRateLimiter,
) *ScheduleUsecase {
	return &ScheduleUsecase{
		posts:     posts,
		accounts:  accounts,
		articles:  articles,
		tokens:    tokens,
		publisher: publisher,
		limiter:   limiter,
		now:       utils.GetCurrentTime,
	}
}

func (u *ScheduleUsecase) IssueSubmitToken(ctx context.Context, session string) (string, error) {
	return u.tokens.Issue(ctx, session)
}

// activeSelection keeps the requested ids that belong to active accounts, in request order.
func (u *ScheduleUsecase) activeSelection(ctx context.Context, requested []int64) ([]int64, error) {
	active, err := u.accounts.ListActiveIDs(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(active))
	for _, id := range active {
		set[id] = struct{}{}
	}
	var out []int64
	for _, id := range model.UniqueIDs(requested) {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (u *ScheduleUsecase) Submit(ctx context.Context, session string, req dto.SubmitPostRequest) (*dto.SubmitPostResult, error) {
	lg := logger.GetLogger().WithField("article_id", req.ArticleID)

	ok, err := u.tokens.Consume(ctx, session, req.SubmitToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		lg.Info("submit token missing or already used, ignoring duplicate submission")
		return &dto.SubmitPostResult{Status: dto.SubmitStatusDuplicateIgnored, Deliveries: []dto.DeliveryDetail{}}, nil
	}

	invalid := &dto.SubmitPostResult{Status: dto.SubmitStatusInvalidInput, Deliveries: []dto.DeliveryDetail{}}
	comment := strings.TrimSpace(req.Comment)
	if req.ArticleID <= 0 || comment == "" || (!req.Now && req.ScheduledAt.IsZero()) {
		return invalid, nil
	}
	article, err := u.articles.GetByID(ctx, req.ArticleID)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid, nil
	}
	if err != nil {
		return nil, err
	}
	accountIDs, err := u.activeSelection(ctx, req.AccountIDs)
	if err != nil {
		return nil, err
	}
	if len(accountIDs) == 0 {
		return invalid, nil
	}

	scheduledAt := req.ScheduledAt.UTC()
	if req.Now {
		scheduledAt = u.now()
	}
	post := &model.Post{ArticleID: article.ID, ArticleURL: article.URL, Comment: comment, ScheduledAt: scheduledAt}
	postID, err := u.posts.CreateWithDeliveries(ctx, post, accountIDs)
	if err != nil {
		return nil, err
	}
	lg = lg.WithField("post_id", postID)
	lg.WithField("accounts", len(accountIDs)).WithField("now", req.Now).Info("post scheduled")

	result := &dto.SubmitPostResult{Status: dto.SubmitStatusScheduled, PostID: postID}
	if req.Now {
		if _, err := u.publisher.PublishPost(ctx, postID); err != nil {
			lg.WithField("error", err).Error("immediate publish failed")
		}
	}

	details, deliveries, err := u.deliveryDetails(ctx, postID)
	if err != nil {
		return nil, err
	}
	result.Deliveries = details
	if req.Now {
		result.Status = u.immediateStatus(ctx, deliveries)
	}
	return result, nil
}

// immediateStatus condenses the deliveries of a "post now" submission into one status.
func (u *ScheduleUsecase) immediateStatus(ctx context.Context, deliveries []*model.Delivery) dto.SubmitStatus {
	var c model.DeliveryCounts
	for _, d := range deliveries {
		switch d.Status {
		case model.DeliveryStatusPending:
			c.Pending++
		case model.DeliveryStatusSent:
			c.Sent++
		case model.DeliveryStatusFailed:
			c.Failed++
		}
	}
	switch {
	case c.Sent > 0:
		return dto.SubmitStatusShared
	case c.Pending > 0:
		for _, d := range deliveries {
			if d.Status != model.DeliveryStatusPending {
				continue
			}
			if limited, err := u.limiter.IsRateLimited(ctx, d.AccountID); err == nil && limited {
				return dto.SubmitStatusRateLimited
			}
		}
		return dto.SubmitStatusScheduled
	case c.Failed > 0:
		return dto.SubmitStatusFailed
	}
	return dto.SubmitStatusScheduled
}

func (u *ScheduleUsecase) Edit(ctx context.Context, postID int64, req dto.EditPostRequest) error {
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return fmt.Errorf("%w: comment is required", ErrInvalidInput)
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidInput)
	}
	accountIDs, err := u.activeSelection(ctx, req.AccountIDs)
	if err != nil {
		return err
	}
	if len(accountIDs) == 0 {
		return ErrNoActiveAccounts
	}
	if err := u.posts.UpdateScheduled(ctx, postID, comment, req.ScheduledAt.UTC(), accountIDs); err != nil {
		return err
	}
	logger.GetLogger().WithField("post_id", postID).WithField("accounts", len(accountIDs)).Info("scheduled post updated")
	return nil
}

func (u *ScheduleUsecase) Cancel(ctx context.Context, postID int64) error {
	if err := u.posts.Cancel(ctx, postID); err != nil {
		return err
	}
	logger.GetLogger().WithField("post_id", postID).Info("scheduled post cancelled")
	return nil
}

func (u *ScheduleUsecase) Details(ctx context.Context, postID int64) (*dto.PostDetails, error) {
	post, err := u.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	details, _, err := u.deliveryDetails(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &dto.PostDetails{Post: post, Deliveries: details}, nil
}

func (u *ScheduleUsecase) ListScheduled(ctx context.Context) ([]*dto.PostDetails, error) {
	posts, err := u.posts.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}
	accounts, err := u.accountIndex(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.PostDetails, 0, len(posts))
	for _, p := range posts {
		deliveries, err := u.posts.ListDeliveries(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &dto.PostDetails{Post: p, Deliveries: toDetails(deliveries, accounts)})
	}
	return out, nil
}

func (u *ScheduleUsecase) accountIndex(ctx context.Context) (map[int64]*model.Account, error) {
	list, err := u.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[int64]*model.Account, len(list))
	for _, a := range list {
		idx[a.ID] = a
	}
	return idx, nil
}

func (u *ScheduleUsecase) deliveryDetails(ctx context.Context, postID int64) ([]dto.DeliveryDetail, []*model.Delivery, error) {
	deliveries, err := u.posts.ListDeliveries(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	accounts, err := u.accountIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	return toDetails(deliveries, accounts), deliveries, nil
}

func toDetails(deliveries []*model.Delivery, accounts map[int64]*model.Account) []dto.DeliveryDetail {
	out := make([]dto.DeliveryDetail, 0, len(deliveries))
	for _, d := range deliveries {
		detail := dto.DeliveryDetail{
			DeliveryID: d.ID,
			AccountID:  d.AccountID,
			Status:     d.Status,
			SentAt:     d.SentAt,
		}
		if a, ok := accounts[d.AccountID]; ok {
			detail.Platform = a.Platform
			detail.DisplayName = a.DisplayName
		}
		if d.ErrorMessage != nil {
			detail.Error = *d.ErrorMessage
		}
		if d.ExternalID != nil {
			detail.ExternalID = *d.ExternalID
		}
		out = append(out, detail)
	}
	return out
}

var _ IScheduleUsecase = (*ScheduleUsecase)(nil)
