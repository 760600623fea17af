package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/smsconsole-backend/internal/errors"
	"github.com/unclebandit/smsconsole-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkSent(ctx context.Context, id string) error
	IncrementRecipientCount(ctx context.Context, id string, delta int) error
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	c.CreatedAt = time.Now()
	query := `
        INSERT INTO campaigns (id, name, message_template, recipient_count, phone_id, status, cancel_requested, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, false, $7)
    `
	_, err := r.DB.ExecContext(ctx, query, c.ID, c.Name, c.MessageTemplate, c.RecipientCount, c.PhoneID, c.Status, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `
        SELECT id, name, message_template, recipient_count, phone_id, status, cancel_requested, created_at, sent_at
        FROM campaigns WHERE id=$1
    `
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.MessageTemplate, &c.RecipientCount, &c.PhoneID,
		&c.Status, &c.CancelRequested, &c.CreatedAt, &c.SentAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, name, message_template, recipient_count, phone_id, status, cancel_requested, created_at, sent_at FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.MessageTemplate, &c.RecipientCount, &c.PhoneID, &c.Status, &c.CancelRequested, &c.CreatedAt, &c.SentAt); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE campaigns SET status=$1 WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, status, id)
	return err
}

// MarkSent records completion of a dispatch pass. "Sent" means the pass
// visited every eligible recipient, not that every message was delivered.
func (r *CampaignRepository) MarkSent(ctx context.Context, id string) error {
	query := `UPDATE campaigns SET status=$1, sent_at=$2 WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, model.CampaignStatusSent, time.Now(), id)
	return err
}

func (r *CampaignRepository) IncrementRecipientCount(ctx context.Context, id string, delta int) error {
	query := `UPDATE campaigns SET recipient_count = recipient_count + $1 WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, delta, id)
	return err
}

func (r *CampaignRepository) RequestCancel(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET cancel_requested=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// CancelRequested re-reads the persisted flag so a restarted dispatcher
// observes cancellations too.
func (r *CampaignRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	err := r.DB.QueryRowContext(ctx, `SELECT cancel_requested FROM campaigns WHERE id=$1`, id).Scan(&cancelled)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, appErrors.NewCampaignNotFound(id)
		}
		return false, err
	}
	return cancelled, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
