// internal/model/message.go
package model

import "time"

const (
	SenderMe   = "me"
	SenderThem = "them"
)

// Message is one SMS in a conversation, outbound or inbound. Bulk sends
// carry the owning campaign id so replies can be traced back.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	Sender         string    `db:"sender" json:"sender"`
	Text           string    `db:"text" json:"text"`
	Status         string    `db:"status" json:"status"`
	ExternalID     string    `db:"external_id" json:"external_id,omitempty"`
	BulkCampaignID *string   `db:"bulk_campaign_id" json:"bulk_campaign_id,omitempty"`
	IsBulk         bool      `db:"is_bulk" json:"is_bulk"`
	IsAutomated    bool      `db:"is_automated" json:"is_automated"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
