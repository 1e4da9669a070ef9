package repository

import (
	"context"
	"errors"
	"time"

	"echotree/domain/model"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNotEditable = errors.New("post is no longer scheduled")
)

// IPost persists posts and their deliveries. Methods that touch more than one row are atomic.
type IPost interface {
	// CreateWithDeliveries inserts a scheduled post and one pending delivery per account in one transaction.
	CreateWithDeliveries(ctx context.Context, post *model.Post, accountIDs []int64) (int64, error)
	GetByID(ctx context.Context, postID int64) (*model.Post, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Post, error)
	ListScheduled(ctx context.Context) ([]*model.Post, error)
	// UpdateScheduled changes comment/time and applies the delivery diff for the new account set.
	// Returns ErrNotEditable when the post is not scheduled.
	UpdateScheduled(ctx context.Context, postID int64, comment string, scheduledAt time.Time, accountIDs []int64) error
	// Cancel marks the post cancelled and purges its pending/failed deliveries.
	Cancel(ctx context.Context, postID int64) error
	// FinalizeStatus writes status only while the post is still scheduled.
	FinalizeStatus(ctx context.Context, postID int64, status model.PostStatus) error

	ListDeliveries(ctx context.Context, postID int64) ([]*model.Delivery, error)
	// ListSelectable returns pending/failed deliveries of the post whose account is active, joined with it.
	ListSelectable(ctx context.Context, postID int64) ([]*model.DeliveryTarget, error)
	CountDeliveries(ctx context.Context, postID int64) (model.DeliveryCounts, error)
	MarkSent(ctx context.Context, deliveryID int64, externalID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, deliveryID int64, errMsg string) error
	// HasSentSince reports whether the account has a sent delivery with sent_at >= since.
	HasSentSince(ctx context.Context, accountID int64, since time.Time) (bool, error)
	CreateAudit(ctx context.Context, audits []*model.DeliveryAudit) error
}

type IAccount interface {
	Create(ctx context.Context, account *model.Account) (int64, error)
	GetByID(ctx context.Context, accountID int64) (*model.Account, error)
	List(ctx context.Context) ([]*model.Account, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
	SetActive(ctx context.Context, accountID int64, active bool) error
	UpdateCredential(ctx context.Context, accountID int64, encrypted string) error
}

type IArticle interface {
	GetByID(ctx context.Context, articleID int64) (*model.Article, error)
	Create(ctx context.Context, article *model.Article) (int64, error)
}
