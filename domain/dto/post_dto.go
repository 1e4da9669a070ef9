package dto

import (
	"time"

	"echotree/domain/model"
)

// SubmitStatus is the coarse outcome reported back to the caller after a submission.
type SubmitStatus string

const (
	SubmitStatusScheduled        SubmitStatus = "scheduled"
	SubmitStatusShared           SubmitStatus = "shared"
	SubmitStatusRateLimited      SubmitStatus = "rate_limited"
	SubmitStatusFailed           SubmitStatus = "failed"
	SubmitStatusDuplicateIgnored SubmitStatus = "duplicate_ignored"
	SubmitStatusInvalidInput     SubmitStatus = "invalid_input"
)

// SubmitPostRequest is the post composition form.
type SubmitPostRequest struct {
	ArticleID   int64     `json:"article_id"`
	Comment     string    `json:"comment"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Now         bool      `json:"now"`
	AccountIDs  []int64   `json:"account_ids"`
	SubmitToken string    `json:"submit_token"`
}

type EditPostRequest struct {
	Comment     string    `json:"comment"`
	ScheduledAt time.Time `json:"scheduled_at"`
	AccountIDs  []int64   `json:"account_ids"`
}

// DeliveryDetail is the per-account view of a post's deliveries.
type DeliveryDetail struct {
	DeliveryID  int64                `json:"delivery_id"`
	AccountID   int64                `json:"account_id"`
	Platform    model.Platform       `json:"platform"`
	DisplayName string               `json:"display_name"`
	Status      model.DeliveryStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
	ExternalID  string               `json:"external_id,omitempty"`
	SentAt      *time.Time           `json:"sent_at,omitempty"`
}

type SubmitPostResult struct {
	Status     SubmitStatus     `json:"status"`
	PostID     int64            `json:"post_id,omitempty"`
	Deliveries []DeliveryDetail `json:"deliveries"`
}

type PostDetails struct {
	Post       *model.Post      `json:"post"`
	Deliveries []DeliveryDetail `json:"deliveries"`
}

// AttemptOutcome records what the engine did with one selected delivery.
type AttemptOutcome struct {
	DeliveryID  int64                `json:"delivery_id"`
	AccountID   int64                `json:"account_id"`
	Platform    model.Platform       `json:"platform"`
	Status      model.DeliveryStatus `json:"status"`
	RateLimited bool                 `json:"rate_limited,omitempty"`
	ExternalID  string               `json:"external_id,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type PostPublishResult struct {
	PostID   int64                `json:"post_id"`
	Status   model.PostStatus     `json:"status"`
	Counts   model.DeliveryCounts `json:"counts"`
	Attempts []AttemptOutcome     `json:"attempts"`
}

// SweepReport summarizes one engine invocation. LockAcquired false means another sweep was running
// and nothing was touched.
type SweepReport struct {
	LockAcquired bool                `json:"lock_acquired"`
	Posts        []PostPublishResult `json:"posts"`
}

type CreateAccountRequest struct {
	Platform    string `json:"platform"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	Token       string `json:"token"`
	TokenSecret string `json:"token_secret,omitempty"`
	RefreshJwt  string `json:"refresh_jwt,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// Res is the generic error envelope
type Res struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

type CreateArticleRequest struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary,omitempty"`
}
