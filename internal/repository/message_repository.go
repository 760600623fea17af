package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsconsole-backend/internal/model"
)

type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *model.Message) error
	GetByExternalID(ctx context.Context, externalID string) (*model.Message, error)
	// LatestCampaignMessage returns the newest outbound campaign-tagged
	// message in a conversation, or nil when the conversation never received
	// a bulk send.
	LatestCampaignMessage(ctx context.Context, conversationID string) (*model.Message, error)
	UpdateExternalID(ctx context.Context, messageID, externalID string) error
}

type MessageRepository struct {
	DB *sql.DB
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO messages (id, conversation_id, sender, text, status, external_id, bulk_campaign_id, is_bulk, is_automated, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.Sender, m.Text, m.Status,
		nullable(m.ExternalID), m.BulkCampaignID, m.IsBulk, m.IsAutomated, m.CreatedAt,
	)
	return err
}

func (r *MessageRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Message, error) {
	query := `
        SELECT id, conversation_id, sender, text, status, COALESCE(external_id, ''), bulk_campaign_id, is_bulk, is_automated, created_at
        FROM messages WHERE external_id=$1
    `
	return r.scanOne(r.DB.QueryRowContext(ctx, query, externalID))
}

func (r *MessageRepository) LatestCampaignMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	query := `
        SELECT id, conversation_id, sender, text, status, COALESCE(external_id, ''), bulk_campaign_id, is_bulk, is_automated, created_at
        FROM messages
        WHERE conversation_id=$1 AND sender=$2 AND bulk_campaign_id IS NOT NULL
        ORDER BY created_at DESC
        LIMIT 1
    `
	return r.scanOne(r.DB.QueryRowContext(ctx, query, conversationID, model.SenderMe))
}

func (r *MessageRepository) UpdateExternalID(ctx context.Context, messageID, externalID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE messages SET external_id=$1 WHERE id=$2`, externalID, messageID)
	return err
}

func (r *MessageRepository) scanOne(row *sql.Row) (*model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Sender, &m.Text, &m.Status,
		&m.ExternalID, &m.BulkCampaignID, &m.IsBulk, &m.IsAutomated, &m.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
