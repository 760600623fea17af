package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsconsole-backend/internal/model"
)

type OptOutRepositoryInterface interface {
	IsOptedOut(ctx context.Context, number, phoneID string) (bool, error)
	ListByPhone(ctx context.Context, phoneID string) ([]*model.OptOut, error)
	// Register inserts an opt-out unless one already exists for the pair.
	// Returns true when a new record was created.
	Register(ctx context.Context, number, phoneID, reason string) (bool, error)
	Remove(ctx context.Context, number, phoneID string) error

	GetCampaignReplies(ctx context.Context, campaignID string) ([]*model.CampaignReplyInfo, error)
	// RecordReply inserts the reply marker unless the (campaign, contact)
	// pair already has one. Returns true when a new record was created.
	RecordReply(ctx context.Context, reply *model.CampaignReply) (bool, error)

	ListFailedNumbers(ctx context.Context, campaignID string) ([]*model.CampaignFailedNumber, error)
	AddFailedNumber(ctx context.Context, campaignID, number, reason string) error
}

type OptOutRepository struct {
	DB *sql.DB
}

func (r *OptOutRepository) IsOptedOut(ctx context.Context, number, phoneID string) (bool, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bulk_sms_opt_outs WHERE recipient_number=$1 AND sender_phone_id=$2`,
		number, phoneID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *OptOutRepository) ListByPhone(ctx context.Context, phoneID string) ([]*model.OptOut, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, recipient_number, sender_phone_id, reason, created_at
         FROM bulk_sms_opt_outs WHERE sender_phone_id=$1 ORDER BY created_at DESC`,
		phoneID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	optOuts := []*model.OptOut{}
	for rows.Next() {
		o := &model.OptOut{}
		if err := rows.Scan(&o.ID, &o.RecipientNumber, &o.SenderPhoneID, &o.Reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		optOuts = append(optOuts, o)
	}
	return optOuts, rows.Err()
}

func (r *OptOutRepository) Register(ctx context.Context, number, phoneID, reason string) (bool, error) {
	query := `
        INSERT INTO bulk_sms_opt_outs (id, recipient_number, sender_phone_id, reason, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (recipient_number, sender_phone_id) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query, uuid.NewString(), number, phoneID, reason, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *OptOutRepository) Remove(ctx context.Context, number, phoneID string) error {
	_, err := r.DB.ExecContext(ctx,
		`DELETE FROM bulk_sms_opt_outs WHERE recipient_number=$1 AND sender_phone_id=$2`,
		number, phoneID,
	)
	return err
}

func (r *OptOutRepository) GetCampaignReplies(ctx context.Context, campaignID string) ([]*model.CampaignReplyInfo, error) {
	query := `
        SELECT c.phone_number, cr.was_opted_out, cr.conversation_id
        FROM campaign_replies cr
        JOIN contacts c ON c.id = cr.contact_id
        WHERE cr.campaign_id=$1
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	replies := []*model.CampaignReplyInfo{}
	for rows.Next() {
		info := &model.CampaignReplyInfo{}
		if err := rows.Scan(&info.PhoneNumber, &info.HasOptedOut, &info.ConversationID); err != nil {
			return nil, err
		}
		replies = append(replies, info)
	}
	return replies, rows.Err()
}

func (r *OptOutRepository) RecordReply(ctx context.Context, reply *model.CampaignReply) (bool, error) {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	if reply.FirstReplyTime.IsZero() {
		reply.FirstReplyTime = time.Now()
	}
	query := `
        INSERT INTO campaign_replies (id, campaign_id, contact_id, conversation_id, first_reply_time, was_opted_out)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (campaign_id, contact_id) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query,
		reply.ID, reply.CampaignID, reply.ContactID, reply.ConversationID, reply.FirstReplyTime, reply.WasOptedOut,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *OptOutRepository) ListFailedNumbers(ctx context.Context, campaignID string) ([]*model.CampaignFailedNumber, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, campaign_id, recipient_number, reason, created_at
         FROM campaign_failed_numbers WHERE campaign_id=$1`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failed := []*model.CampaignFailedNumber{}
	for rows.Next() {
		f := &model.CampaignFailedNumber{}
		if err := rows.Scan(&f.ID, &f.CampaignID, &f.RecipientNumber, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		failed = append(failed, f)
	}
	return failed, rows.Err()
}

func (r *OptOutRepository) AddFailedNumber(ctx context.Context, campaignID, number, reason string) error {
	query := `
        INSERT INTO campaign_failed_numbers (id, campaign_id, recipient_number, reason, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (campaign_id, recipient_number) DO NOTHING
    `
	_, err := r.DB.ExecContext(ctx, query, uuid.NewString(), campaignID, number, reason, time.Now())
	return err
}

var _ OptOutRepositoryInterface = (*OptOutRepository)(nil)
