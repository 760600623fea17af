// internal/service/delivery_service.go
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unclebandit/smsconsole-backend/internal/gateway"
	"github.com/unclebandit/smsconsole-backend/internal/metrics"
	"github.com/unclebandit/smsconsole-backend/internal/model"
	"github.com/unclebandit/smsconsole-backend/internal/queue"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
)

// DeliveryService owns the per-delivery state machine:
//
//	pending -> delivered                      (terminal)
//	pending -> failed -> pending              (one retry, new external id)
//	pending -> failed, retry exhausted -> retry_failed (terminal)
//
// Every transition re-reads the persisted row and applies a conditional
// update, so duplicate or out-of-order webhook reports collapse to no-ops.
type DeliveryService struct {
	Deliveries repository.DeliveryStatusRepositoryInterface
	Messages   repository.MessageRepositoryInterface
	OptOuts    repository.OptOutRepositoryInterface
	Gateway    gateway.Client
	Queue      queue.Publisher
	Log        *slog.Logger
}

// ApplyDeliveryReport handles one provider delivery report. Unknown external
// ids and stale reports are logged and ignored: the webhook path must stay
// quiet toward the provider no matter what.
func (s *DeliveryService) ApplyDeliveryReport(ctx context.Context, externalID, status string, deliveredAt *time.Time) error {
	d, err := s.Deliveries.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("no delivery record for external id %s", externalID)
	}
	if d.Terminal() {
		return nil
	}

	switch status {
	case model.DeliveryStatusSent:
		if d.Status == model.DeliveryStatusPending {
			_, err = s.Deliveries.TransitionStatus(ctx, d.ID, d.Status, model.DeliveryStatusSent, "", nil)
		}
		return err

	case model.DeliveryStatusDelivered:
		_, err = s.Deliveries.TransitionStatus(ctx, d.ID, d.Status, model.DeliveryStatusDelivered, "", deliveredAt)
		return err

	case model.DeliveryStatusFailed:
		return s.handleFailure(ctx, d, "provider reported delivery failure")

	default:
		return fmt.Errorf("unknown delivery status %q for external id %s", status, externalID)
	}
}

func (s *DeliveryService) handleFailure(ctx context.Context, d *model.DeliveryStatus, errorMessage string) error {
	switch {
	case d.Status == model.DeliveryStatusFailed:
		// Duplicate report; the retry is already queued or exhausted.
		return nil

	case d.RetryCount < model.MaxDeliveryRetries:
		moved, err := s.Deliveries.TransitionStatus(ctx, d.ID, d.Status, model.DeliveryStatusFailed, errorMessage, nil)
		if err != nil || !moved {
			return err
		}
		if err := s.Queue.PublishRetry(ctx, queue.RetryJob{ExternalID: d.ExternalID}); err != nil {
			// The row stays failed; a reconciliation sweep can pick it up.
			s.Log.Error("failed to enqueue delivery retry",
				slog.String("external_id", d.ExternalID), slog.Any("error", err))
		}
		return nil

	default:
		return s.markPermanentlyFailed(ctx, d, errorMessage)
	}
}

func (s *DeliveryService) markPermanentlyFailed(ctx context.Context, d *model.DeliveryStatus, errorMessage string) error {
	moved, err := s.Deliveries.TransitionStatus(ctx, d.ID, d.Status, model.DeliveryStatusRetryFailed, errorMessage, nil)
	if err != nil || !moved {
		return err
	}
	if d.CampaignID != nil {
		if err := s.OptOuts.AddFailedNumber(ctx, *d.CampaignID, d.RecipientNumber, "delivery_failed"); err != nil {
			s.Log.Error("failed to record campaign failed number",
				slog.String("campaign_id", *d.CampaignID),
				slog.String("number", d.RecipientNumber),
				slog.Any("error", err))
		}
	}
	s.Log.Info("delivery permanently failed",
		slog.String("external_id", d.ExternalID),
		slog.String("number", d.RecipientNumber))
	return nil
}

// RetryFailedDelivery is the worker entry point: issue the provider retry,
// repoint the ledger row at the new external id, and reset it to pending.
func (s *DeliveryService) RetryFailedDelivery(ctx context.Context, externalID string) error {
	d, err := s.Deliveries.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if d == nil || d.Status != model.DeliveryStatusFailed || d.RetryCount >= model.MaxDeliveryRetries {
		// Already retried, already terminal, or repointed by a racing worker.
		return nil
	}

	result, err := s.Gateway.Retry(ctx, externalID)
	if err != nil {
		return fmt.Errorf("gateway retry for %s: %w", externalID, err)
	}

	moved, err := s.Deliveries.BeginRetry(ctx, d.ID, result.ExternalID)
	if err != nil {
		return err
	}
	if !moved {
		s.Log.Warn("delivery row moved before retry bookkeeping",
			slog.String("external_id", externalID))
		return nil
	}

	if err := s.Messages.UpdateExternalID(ctx, d.MessageID, result.ExternalID); err != nil {
		s.Log.Error("failed to repoint message external id",
			slog.String("message_id", d.MessageID), slog.Any("error", err))
	}

	metrics.DeliveryRetries.Inc()
	s.Log.Info("delivery retry issued",
		slog.String("old_external_id", externalID),
		slog.String("new_external_id", result.ExternalID))
	return nil
}
