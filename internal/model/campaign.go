// internal/model/campaign.go
package model

import "time"

const (
	CampaignStatusDraft   = "draft"
	CampaignStatusSending = "sending"
	CampaignStatusSent    = "sent"
	CampaignStatusFailed  = "failed"
)

// Campaign is a named bulk-send job. RecipientCount accumulates across
// continuations of the same campaign.
type Campaign struct {
	ID              string     `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	MessageTemplate string     `db:"message_template" json:"message_template"`
	RecipientCount  int        `db:"recipient_count" json:"recipient_count"`
	PhoneID         string     `db:"phone_id" json:"phone_id"`
	Status          string     `db:"status" json:"status"`
	CancelRequested bool       `db:"cancel_requested" json:"cancel_requested"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	SentAt          *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}
