// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	appErrors "github.com/unclebandit/smsconsole-backend/internal/errors"
	"github.com/unclebandit/smsconsole-backend/internal/eligibility"
	"github.com/unclebandit/smsconsole-backend/internal/gateway"
	"github.com/unclebandit/smsconsole-backend/internal/metrics"
	"github.com/unclebandit/smsconsole-backend/internal/model"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
	"github.com/unclebandit/smsconsole-backend/internal/template"
)

// BulkSendRequest describes one bulk dispatch pass. Rows arrive as column
// name -> value maps; PhoneColumn designates which column holds the
// recipient number.
type BulkSendRequest struct {
	CampaignName         string              `json:"campaign_name"`
	ContinuingCampaignID string              `json:"continuing_campaign_id,omitempty"`
	Template             string              `json:"template"`
	Rows                 []map[string]string `json:"rows"`
	PhoneColumn          string              `json:"phone_column"`
	PhoneID              string              `json:"phone_id"`
	SaveToContacts       bool                `json:"save_to_contacts"`
	ContactNameColumn    string              `json:"contact_name_column,omitempty"`
	OverwriteExisting    bool                `json:"overwrite_existing"`
	// Confirmed acknowledges the exclusion summary. Required whenever the
	// eligibility check excludes anyone, so an operator always sees the
	// numbers dropped before anything is dispatched.
	Confirmed bool `json:"confirmed"`
}

type RecipientResult struct {
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"` // sent or failed
	ExternalID  string `json:"external_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BulkSendResult distinguishes fully sent, sent with failures, and aborted
// passes; collapsing those loses operationally important information.
type BulkSendResult struct {
	CampaignID   string               `json:"campaign_id"`
	Attempted    int                  `json:"attempted"`
	Succeeded    int                  `json:"succeeded"`
	Failed       int                  `json:"failed"`
	NotAttempted []string             `json:"not_attempted,omitempty"`
	Cancelled    bool                 `json:"cancelled,omitempty"`
	Excluded     []eligibility.Exclusion `json:"excluded"`
	Stats        model.ExclusionStats `json:"stats"`
	Recipients   []RecipientResult    `json:"recipients"`

	// abortCause holds the batch-fatal gateway error when the pass stopped
	// early. Cancellation is an operator action, not an abort.
	abortCause error
}

// BulkSendJob is a validated, filtered, confirmed dispatch pass ready to
// run. Produced by PrepareBulk so the HTTP layer can acknowledge the send
// and run the loop off the request goroutine.
type BulkSendJob struct {
	CampaignID string
	FromNumber string
	PhoneID    string
	Template   string
	Recipients []bulkRecipient
	Excluded   []eligibility.Exclusion
	Stats      model.ExclusionStats
}

type bulkRecipient struct {
	number string
	row    map[string]string
}

type CampaignService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Phones     repository.PhoneNumberRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Messages   repository.MessageRepositoryInterface
	Deliveries repository.DeliveryStatusRepositoryInterface
	Filter     *eligibility.Filter
	Gateway    gateway.Client

	DeliveryCallbackURL string
	DispatchDelay       time.Duration
	Log                 *slog.Logger
}

// PrepareBulk validates the request, runs the eligibility filter, enforces
// the confirmation gate, and creates or reopens the campaign. No SMS has
// been dispatched when it returns.
func (s *CampaignService) PrepareBulk(ctx context.Context, req *BulkSendRequest) (*BulkSendJob, error) {
	if strings.TrimSpace(req.Template) == "" {
		return nil, appErrors.NewValidation("template", "message template cannot be empty")
	}
	if req.PhoneColumn == "" {
		return nil, appErrors.NewValidation("phone_column", "a phone number column must be designated")
	}
	if req.SaveToContacts && req.ContactNameColumn == "" {
		return nil, appErrors.NewValidation("contact_name_column", "a name column must be designated when saving contacts")
	}
	if req.ContinuingCampaignID == "" && strings.TrimSpace(req.CampaignName) == "" {
		return nil, appErrors.NewValidation("campaign_name", "campaign name cannot be empty")
	}

	recipients := make([]bulkRecipient, 0, len(req.Rows))
	numbers := make([]string, 0, len(req.Rows))
	for _, row := range req.Rows {
		number := strings.TrimSpace(row[req.PhoneColumn])
		if number == "" {
			s.Log.Warn("skipping row without phone number", slog.String("column", req.PhoneColumn))
			continue
		}
		recipients = append(recipients, bulkRecipient{number: number, row: row})
		numbers = append(numbers, number)
	}
	if len(recipients) == 0 {
		return nil, appErrors.NewValidation("rows", "no rows contain a phone number")
	}

	var campaignID *string
	if req.ContinuingCampaignID != "" {
		campaignID = &req.ContinuingCampaignID
	}

	filtered, err := s.Filter.Check(ctx, numbers, campaignID, req.PhoneID)
	if err != nil {
		return nil, err
	}
	if len(filtered.Excluded) > 0 && !req.Confirmed {
		return nil, &appErrors.ConfirmationRequiredError{Stats: filtered.Stats}
	}
	if len(filtered.Eligible) == 0 {
		return nil, appErrors.NewValidation("rows", "all recipients are excluded for this campaign")
	}
	if err := s.Filter.ApplyOptOuts(ctx, filtered.ImpliedOptOuts, req.PhoneID); err != nil {
		return nil, err
	}

	phone, err := s.Phones.GetByID(ctx, req.PhoneID)
	if err != nil {
		return nil, err
	}
	if phone == nil {
		return nil, appErrors.NewValidation("phone_id", "unknown sender phone")
	}

	var campaign *model.Campaign
	if req.ContinuingCampaignID != "" {
		campaign, err = s.Campaigns.GetByID(ctx, req.ContinuingCampaignID)
		if err != nil {
			return nil, err
		}
		if err := s.Campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignStatusSending); err != nil {
			return nil, err
		}
	} else {
		campaign = &model.Campaign{
			Name:            strings.TrimSpace(req.CampaignName),
			MessageTemplate: req.Template,
			PhoneID:         req.PhoneID,
			Status:          model.CampaignStatusSending,
		}
		if err := s.Campaigns.Create(ctx, campaign); err != nil {
			return nil, err
		}
	}

	eligibleSet := make(map[string]bool, len(filtered.Eligible))
	for _, n := range filtered.Eligible {
		eligibleSet[n] = true
	}
	eligible := recipients[:0]
	for _, r := range recipients {
		if eligibleSet[r.number] {
			eligible = append(eligible, r)
		}
	}

	return &BulkSendJob{
		CampaignID: campaign.ID,
		FromNumber: phone.Number,
		PhoneID:    req.PhoneID,
		Template:   req.Template,
		Recipients: eligible,
		Excluded:   filtered.Excluded,
		Stats:      filtered.Stats,
	}, nil
}

// RunDispatch executes the per-recipient loop for a prepared job. Recipients
// are dispatched sequentially with a small delay to respect gateway rate
// limits. A single rejected number is recorded and the loop continues; only
// total gateway unreachability aborts the pass.
func (s *CampaignService) RunDispatch(ctx context.Context, req *BulkSendRequest, job *BulkSendJob) *BulkSendResult {
	started := time.Now()
	result := &BulkSendResult{
		CampaignID: job.CampaignID,
		Excluded:   job.Excluded,
		Stats:      job.Stats,
	}

	for i, rec := range job.Recipients {
		if cancelled := s.checkCancel(ctx, job.CampaignID); cancelled {
			result.Cancelled = true
			result.NotAttempted = remainingNumbers(job.Recipients[i:])
			s.Log.Info("bulk dispatch cancelled",
				slog.String("campaign_id", job.CampaignID),
				slog.Int("not_attempted", len(result.NotAttempted)))
			break
		}

		text := template.Render(job.Template, rec.row)
		sendResult, err := s.Gateway.Send(ctx, rec.number, text, job.FromNumber, s.DeliveryCallbackURL)
		if err != nil {
			if errors.Is(err, appErrors.ErrGatewayAuth) || errors.Is(err, appErrors.ErrGatewayUnreachable) {
				// Batch-fatal: every remaining send would fail the same way.
				result.NotAttempted = remainingNumbers(job.Recipients[i:])
				result.abortCause = err
				s.Log.Error("bulk dispatch aborted",
					slog.String("campaign_id", job.CampaignID),
					slog.Int("not_attempted", len(result.NotAttempted)),
					slog.Any("error", err))
				break
			}
			result.Attempted++
			result.Failed++
			result.Recipients = append(result.Recipients, RecipientResult{
				PhoneNumber: rec.number, Status: "failed", Error: err.Error(),
			})
			metrics.MessagesDispatched.WithLabelValues("failed").Inc()
			s.Log.Warn("dispatch failed for recipient",
				slog.String("number", rec.number), slog.Any("error", err))
			continue
		}

		result.Attempted++
		result.Succeeded++
		result.Recipients = append(result.Recipients, RecipientResult{
			PhoneNumber: rec.number, Status: "sent", ExternalID: sendResult.ExternalID,
		})
		metrics.MessagesDispatched.WithLabelValues("sent").Inc()

		s.recordSend(ctx, req, job, rec, text, sendResult.ExternalID)

		if s.DispatchDelay > 0 && i < len(job.Recipients)-1 {
			select {
			case <-time.After(s.DispatchDelay):
			case <-ctx.Done():
			}
		}
	}

	s.finishCampaign(ctx, job.CampaignID, result)
	metrics.CampaignDuration.Observe(time.Since(started).Seconds())
	return result
}

// SendBulk is the synchronous convenience path: prepare and dispatch in one
// call. A batch-fatal abort returns the partial result together with a
// BatchAbortedError naming the skipped recipients.
func (s *CampaignService) SendBulk(ctx context.Context, req *BulkSendRequest) (*BulkSendResult, error) {
	job, err := s.PrepareBulk(ctx, req)
	if err != nil {
		return nil, err
	}
	result := s.RunDispatch(ctx, req, job)
	if result.abortCause != nil {
		return result, &appErrors.BatchAbortedError{
			Cause:        result.abortCause,
			NotAttempted: result.NotAttempted,
		}
	}
	return result, nil
}

// recordSend writes the side effects of one accepted dispatch: contact
// upsert, conversation, message row, delivery ledger row. The ledger row is
// written before the conversation snapshot so no message surfaces a status
// the ledger cannot back.
func (s *CampaignService) recordSend(ctx context.Context, req *BulkSendRequest, job *BulkSendJob, rec bulkRecipient, text, externalID string) {
	name := ""
	if req.SaveToContacts {
		name = rec.row[req.ContactNameColumn]
	}

	_, conv, err := s.Contacts.EnsureConversation(ctx, job.PhoneID, rec.number, name, req.SaveToContacts, req.OverwriteExisting)
	if err != nil {
		s.Log.Error("failed to persist conversation for sent message",
			slog.String("number", rec.number),
			slog.String("external_id", externalID),
			slog.Any("error", err))
		return
	}

	campaignID := job.CampaignID
	msg := &model.Message{
		ConversationID: conv.ID,
		Sender:         model.SenderMe,
		Text:           text,
		Status:         model.DeliveryStatusSent,
		ExternalID:     externalID,
		BulkCampaignID: &campaignID,
		IsBulk:         true,
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		s.Log.Error("failed to persist outbound message",
			slog.String("external_id", externalID), slog.Any("error", err))
		return
	}

	err = s.Deliveries.Create(ctx, &model.DeliveryStatus{
		MessageID:       msg.ID,
		ExternalID:      externalID,
		RecipientNumber: rec.number,
		CampaignID:      &campaignID,
		Status:          model.DeliveryStatusPending,
	})
	if err != nil {
		s.Log.Error("failed to record delivery status",
			slog.String("external_id", externalID), slog.Any("error", err))
	}

	if err := s.Contacts.UpdateConversationSnapshot(ctx, conv.ID, text, msg.CreatedAt, false); err != nil {
		s.Log.Error("failed to update conversation snapshot",
			slog.String("conversation_id", conv.ID), slog.Any("error", err))
	}
}

// finishCampaign closes out the pass. A pass that visited every eligible
// recipient marks the campaign sent even when individual numbers failed; a
// cancelled or aborted pass leaves it in sending so operators can see it is
// incomplete.
func (s *CampaignService) finishCampaign(ctx context.Context, campaignID string, result *BulkSendResult) {
	if result.Attempted > 0 {
		if err := s.Campaigns.IncrementRecipientCount(ctx, campaignID, result.Attempted); err != nil {
			s.Log.Error("failed to update campaign recipient count",
				slog.String("campaign_id", campaignID), slog.Any("error", err))
		}
	}

	if result.Cancelled || len(result.NotAttempted) > 0 {
		return
	}

	if err := s.Campaigns.MarkSent(ctx, campaignID); err != nil {
		s.Log.Error("failed to mark campaign sent",
			slog.String("campaign_id", campaignID), slog.Any("error", err))
	}
}

func (s *CampaignService) checkCancel(ctx context.Context, campaignID string) bool {
	cancelled, err := s.Campaigns.CancelRequested(ctx, campaignID)
	if err != nil {
		s.Log.Error("failed to read cancel flag",
			slog.String("campaign_id", campaignID), slog.Any("error", err))
		return false
	}
	return cancelled
}

func remainingNumbers(recipients []bulkRecipient) []string {
	numbers := make([]string, len(recipients))
	for i, r := range recipients {
		numbers[i] = r.number
	}
	return numbers
}

// PreviewExclusions runs the eligibility check without side effects, backing
// the operator-facing confirmation summary.
func (s *CampaignService) PreviewExclusions(ctx context.Context, numbers []string, campaignID *string, phoneID string) (*eligibility.Result, error) {
	return s.Filter.Check(ctx, numbers, campaignID, phoneID)
}
