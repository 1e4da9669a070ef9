package model

import "time"

type PostStatus string

const (
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusSent      PostStatus = "sent"
	PostStatusFailed    PostStatus = "failed"
	PostStatusCancelled PostStatus = "cancelled"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// Post is a drafted share of one article to one or more accounts.
type Post struct {
	ID          int64      `json:"id"`
	ArticleID   int64      `json:"article_id"`
	ArticleURL  string     `json:"article_url,omitempty"`
	Comment     string     `json:"comment"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      PostStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Delivery is the publish attempt of a post to a single account. One row per (post, account).
type Delivery struct {
	ID           int64          `json:"id"`
	PostID       int64          `json:"post_id"`
	AccountID    int64          `json:"account_id"`
	Status       DeliveryStatus `json:"status"`
	ExternalID   *string        `json:"external_id,omitempty"`
	ErrorMessage *string        `json:"error,omitempty"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	AttemptCount int            `json:"attempt_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DeliveryTarget is a selectable delivery joined with the account it publishes to.
type DeliveryTarget struct {
	Delivery Delivery
	Account  Account
}

// DeliveryAudit is an append-only log of delivery attempts
type DeliveryAudit struct {
	ID           int64          `json:"id"`
	DeliveryID   int64          `json:"delivery_id"`
	PostID       int64          `json:"post_id"`
	AccountID    int64          `json:"account_id"`
	Platform     Platform       `json:"platform"`
	Status       DeliveryStatus `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DeliveryCounts aggregates the delivery rows of one post by status.
type DeliveryCounts struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// DerivePostStatus computes the aggregate post status from its delivery counts.
// Any pending delivery keeps the post scheduled; otherwise one sent delivery makes it sent
// and only failures make it failed. A post without deliveries stays scheduled.
func DerivePostStatus(c DeliveryCounts) PostStatus {
	switch {
	case c.Pending > 0:
		return PostStatusScheduled
	case c.Sent > 0:
		return PostStatusSent
	case c.Failed > 0:
		return PostStatusFailed
	default:
		return PostStatusScheduled
	}
}

// DeliveryDiff is the change set applied to a scheduled post's deliveries when its account set is edited.
type DeliveryDiff struct {
	Remove []int64 // delivery ids
	Add    []int64 // account ids
}

// DiffDeliveries compares the existing deliveries of a post with the wanted account set.
// Sent rows are history and are never removed; accounts that already have any row are not re-added.
func DiffDeliveries(existing []Delivery, wanted []int64) DeliveryDiff {
	want := make(map[int64]struct{}, len(wanted))
	for _, id := range wanted {
		want[id] = struct{}{}
	}
	have := make(map[int64]struct{}, len(existing))
	var diff DeliveryDiff
	for _, d := range existing {
		have[d.AccountID] = struct{}{}
		if _, ok := want[d.AccountID]; ok {
			continue
		}
		if d.Status == DeliveryStatusPending || d.Status == DeliveryStatusFailed {
			diff.Remove = append(diff.Remove, d.ID)
		}
	}
	for _, id := range UniqueIDs(wanted) {
		if _, ok := have[id]; !ok {
			diff.Add = append(diff.Add, id)
		}
	}
	return diff
}

// UniqueIDs drops non-positive and duplicate ids while keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
