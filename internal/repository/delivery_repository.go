package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsconsole-backend/internal/model"
)

type DeliveryStatusRepositoryInterface interface {
	Create(ctx context.Context, d *model.DeliveryStatus) error
	GetByExternalID(ctx context.Context, externalID string) (*model.DeliveryStatus, error)
	// TransitionStatus applies status change as a compare-and-swap on the
	// current status. Returns false when the row moved under us, in which
	// case the caller re-reads instead of overwriting blindly.
	TransitionStatus(ctx context.Context, id, from, to, errorMessage string, deliveredAt *time.Time) (bool, error)
	// BeginRetry repoints the row at a fresh provider send: new external id,
	// retry_count bumped, status back to pending. Guarded so it can fire at
	// most once per row.
	BeginRetry(ctx context.Context, id, newExternalID string) (bool, error)
	StatsForCampaign(ctx context.Context, campaignID string) (map[string]int, error)
}

type DeliveryStatusRepository struct {
	DB *sql.DB
}

func (r *DeliveryStatusRepository) Create(ctx context.Context, d *model.DeliveryStatus) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = model.DeliveryStatusPending
	}
	d.LastStatusChange = time.Now()
	query := `
        INSERT INTO sms_delivery_status (id, message_id, external_id, recipient_number, campaign_id, status, retry_count, error_message, last_status_change)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.ExecContext(ctx, query,
		d.ID, d.MessageID, d.ExternalID, d.RecipientNumber, d.CampaignID,
		d.Status, d.RetryCount, nullable(d.ErrorMessage), d.LastStatusChange,
	)
	return err
}

func (r *DeliveryStatusRepository) GetByExternalID(ctx context.Context, externalID string) (*model.DeliveryStatus, error) {
	query := `
        SELECT id, message_id, external_id, recipient_number, campaign_id, status, retry_count, COALESCE(error_message, ''), delivered_at, last_status_change
        FROM sms_delivery_status WHERE external_id=$1
    `
	var d model.DeliveryStatus
	err := r.DB.QueryRowContext(ctx, query, externalID).Scan(
		&d.ID, &d.MessageID, &d.ExternalID, &d.RecipientNumber, &d.CampaignID,
		&d.Status, &d.RetryCount, &d.ErrorMessage, &d.DeliveredAt, &d.LastStatusChange,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryStatusRepository) TransitionStatus(ctx context.Context, id, from, to, errorMessage string, deliveredAt *time.Time) (bool, error) {
	query := `
        UPDATE sms_delivery_status
        SET status=$1, error_message=$2, delivered_at=COALESCE($3, delivered_at), last_status_change=$4
        WHERE id=$5 AND status=$6
    `
	res, err := r.DB.ExecContext(ctx, query, to, nullable(errorMessage), deliveredAt, time.Now(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *DeliveryStatusRepository) BeginRetry(ctx context.Context, id, newExternalID string) (bool, error) {
	query := `
        UPDATE sms_delivery_status
        SET external_id=$1, status=$2, retry_count=retry_count+1, error_message=NULL, last_status_change=$3
        WHERE id=$4 AND status=$5 AND retry_count < $6
    `
	res, err := r.DB.ExecContext(ctx, query,
		newExternalID, model.DeliveryStatusPending, time.Now(),
		id, model.DeliveryStatusFailed, model.MaxDeliveryRetries,
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

func (r *DeliveryStatusRepository) StatsForCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM sms_delivery_status WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.DeliveryStatusPending:     0,
		model.DeliveryStatusSent:        0,
		model.DeliveryStatusDelivered:   0,
		model.DeliveryStatusFailed:      0,
		model.DeliveryStatusRetryFailed: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ DeliveryStatusRepositoryInterface = (*DeliveryStatusRepository)(nil)
