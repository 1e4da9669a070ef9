package usecase

import (
	"context"
	"time"

	"echotree/domain/repository"
	"echotree/infrastructure/utils"
)

// IRateLimiter vetoes a delivery while its account is cooling down after a successful send.
type IRateLimiter interface {
	IsRateLimited(ctx context.Context, accountID int64) (bool, error)
}

type RateLimiter struct {
	posts  repository.IPost
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter returns a limiter over delivery history. A non-positive window disables it.
func NewRateLimiter(posts repository.IPost, window time.Duration) *RateLimiter {
	return &RateLimiter{posts: posts, window: window, now: utils.GetCurrentTime}
}

func (r *RateLimiter) IsRateLimited(ctx context.Context, accountID int64) (bool, error) {
	if r.window <= 0 {
		return false, nil
	}
	return r.posts.HasSentSince(ctx, accountID, r.now().Add(-r.window))
}
