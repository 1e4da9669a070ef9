package model

import "time"

// DeliveryEvent is broadcast after every recorded delivery attempt.
type DeliveryEvent struct {
	Type       string         `json:"type"`
	PostID     int64          `json:"post_id"`
	DeliveryID int64          `json:"delivery_id"`
	AccountID  int64          `json:"account_id"`
	Platform   Platform       `json:"platform"`
	Status     DeliveryStatus `json:"status"`
	ExternalID *string        `json:"external_id,omitempty"`
	Error      *string        `json:"error,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
