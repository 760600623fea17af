// internal/model/optout.go
package model

import "time"

const (
	OptOutReasonStopMessage = "STOP_MESSAGE"
	OptOutReasonStopReply   = "STOP_REPLY"
	OptOutReasonManual      = "MANUAL"
)

// OptOut records that a recipient no longer accepts bulk SMS from a given
// sender number. At most one active row per (RecipientNumber, SenderPhoneID).
type OptOut struct {
	ID              string    `db:"id" json:"id"`
	RecipientNumber string    `db:"recipient_number" json:"recipient_number"`
	SenderPhoneID   string    `db:"sender_phone_id" json:"sender_phone_id"`
	Reason          string    `db:"reason" json:"reason"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// CampaignReply marks that a contact replied to a campaign message at least
// once. Written at most once per (CampaignID, ContactID).
type CampaignReply struct {
	ID             string    `db:"id" json:"id"`
	CampaignID     string    `db:"campaign_id" json:"campaign_id"`
	ContactID      string    `db:"contact_id" json:"contact_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	FirstReplyTime time.Time `db:"first_reply_time" json:"first_reply_time"`
	WasOptedOut    bool      `db:"was_opted_out" json:"was_opted_out"`
}

// CampaignReplyInfo is the reply view the eligibility filter consumes.
type CampaignReplyInfo struct {
	PhoneNumber    string `json:"phone_number"`
	HasOptedOut    bool   `json:"has_opted_out"`
	ConversationID string `json:"conversation_id"`
}

// CampaignFailedNumber excludes a recipient from all future continuations of
// one campaign after their delivery permanently failed.
type CampaignFailedNumber struct {
	ID              string    `db:"id" json:"id"`
	CampaignID      string    `db:"campaign_id" json:"campaign_id"`
	RecipientNumber string    `db:"recipient_number" json:"recipient_number"`
	Reason          string    `db:"reason" json:"reason"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ExclusionStats summarizes an eligibility check, shown to the operator
// before dispatch proceeds.
type ExclusionStats struct {
	Total    int            `json:"total"`
	Excluded int            `json:"excluded"`
	Eligible int            `json:"eligible"`
	ByReason map[string]int `json:"by_reason"`
}
