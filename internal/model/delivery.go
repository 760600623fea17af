// internal/model/delivery.go
package model

import "time"

// MaxDeliveryRetries caps how often a failed send is retried through the
// gateway. The retry path issues exactly one new send per original attempt;
// a second failure is permanent.
const MaxDeliveryRetries = 1

const (
	DeliveryStatusPending     = "pending"
	DeliveryStatusSent        = "sent"
	DeliveryStatusDelivered   = "delivered"
	DeliveryStatusFailed      = "failed"
	DeliveryStatusRetryFailed = "retry_failed"
)

// DeliveryStatus tracks the lifecycle of one outbound message-send attempt.
// ExternalID is mutable: a retry issues a new provider send and the row is
// repointed at the new id.
type DeliveryStatus struct {
	ID               string     `db:"id" json:"id"`
	MessageID        string     `db:"message_id" json:"message_id"`
	ExternalID       string     `db:"external_id" json:"external_id"`
	RecipientNumber  string     `db:"recipient_number" json:"recipient_number"`
	CampaignID       *string    `db:"campaign_id" json:"campaign_id,omitempty"`
	Status           string     `db:"status" json:"status"`
	RetryCount       int        `db:"retry_count" json:"retry_count"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	DeliveredAt      *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	LastStatusChange time.Time  `db:"last_status_change" json:"last_status_change"`
}

// Terminal reports whether no further transitions are allowed for the row.
func (d *DeliveryStatus) Terminal() bool {
	return d.Status == DeliveryStatusDelivered || d.Status == DeliveryStatusRetryFailed
}
