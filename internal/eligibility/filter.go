// Package eligibility decides which recipients a bulk send may reach.
// Checks run in precedence order: permanently failed numbers first (campaign
// continuations only), then sender-level opt-outs, then campaign replies.
package eligibility

import (
	"context"
	"log/slog"
	"strings"

	"github.com/unclebandit/smsconsole-backend/internal/model"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
)

const (
	ReasonDeliveryFailed   = "delivery_failed"
	ReasonOptedOut         = "opted_out"
	ReasonReplied          = "replied"
	ReasonOptedOutViaReply = "opted_out_via_reply"
)

type Exclusion struct {
	PhoneNumber string `json:"phone_number"`
	Reason      string `json:"reason"`
	Details     string `json:"details,omitempty"`
}

type Result struct {
	Eligible []string             `json:"eligible"`
	Excluded []Exclusion          `json:"excluded"`
	Stats    model.ExclusionStats `json:"stats"`

	// ImpliedOptOuts lists recipients whose STOP-flagged reply has no
	// opt-out record yet. Registering them is a separate explicit step
	// (ApplyOptOuts) so this check stays a pure read.
	ImpliedOptOuts []string `json:"-"`
}

type Filter struct {
	OptOuts repository.OptOutRepositoryInterface
	Log     *slog.Logger
}

// Check classifies recipients for a send from phoneID. campaignID is non-nil
// for campaign continuations, which also consult reply and failed-number
// history; new campaigns carry no campaign-scoped history so only the
// sender's opt-out list applies.
func (f *Filter) Check(ctx context.Context, recipients []string, campaignID *string, phoneID string) (*Result, error) {
	optOuts, err := f.OptOuts.ListByPhone(ctx, phoneID)
	if err != nil {
		return nil, err
	}
	optOutMap := make(map[string]*model.OptOut, len(optOuts))
	for _, o := range optOuts {
		optOutMap[o.RecipientNumber] = o
	}

	failedMap := map[string]*model.CampaignFailedNumber{}
	replyMap := map[string]*model.CampaignReplyInfo{}
	if campaignID != nil {
		failed, err := f.OptOuts.ListFailedNumbers(ctx, *campaignID)
		if err != nil {
			return nil, err
		}
		for _, fn := range failed {
			failedMap[fn.RecipientNumber] = fn
		}

		replies, err := f.OptOuts.GetCampaignReplies(ctx, *campaignID)
		if err != nil {
			return nil, err
		}
		for _, reply := range replies {
			replyMap[reply.PhoneNumber] = reply
		}
	}

	result := &Result{
		Eligible: []string{},
		Excluded: []Exclusion{},
		Stats: model.ExclusionStats{
			Total: len(recipients),
			ByReason: map[string]int{
				ReasonReplied:        0,
				ReasonOptedOut:       0,
				ReasonDeliveryFailed: 0,
			},
		},
	}

	for _, raw := range recipients {
		number := strings.TrimSpace(raw)

		if failed, ok := failedMap[number]; ok {
			result.Excluded = append(result.Excluded, Exclusion{PhoneNumber: number, Reason: ReasonDeliveryFailed, Details: failed.Reason})
			result.Stats.ByReason[ReasonDeliveryFailed]++
			continue
		}

		if optOut, ok := optOutMap[number]; ok {
			result.Excluded = append(result.Excluded, Exclusion{PhoneNumber: number, Reason: ReasonOptedOut, Details: optOut.Reason})
			result.Stats.ByReason[ReasonOptedOut]++
			continue
		}

		if reply, ok := replyMap[number]; ok {
			reason := ReasonReplied
			if reply.HasOptedOut {
				reason = ReasonOptedOutViaReply
				result.ImpliedOptOuts = append(result.ImpliedOptOuts, number)
				result.Stats.ByReason[ReasonOptedOut]++
			} else {
				result.Stats.ByReason[ReasonReplied]++
			}
			result.Excluded = append(result.Excluded, Exclusion{PhoneNumber: number, Reason: reason})
			continue
		}

		result.Eligible = append(result.Eligible, number)
	}

	result.Stats.Excluded = len(result.Excluded)
	result.Stats.Eligible = len(result.Eligible)
	return result, nil
}

// ApplyOptOuts registers opt-outs detected by Check. Inserts are idempotent,
// so re-applying the same set is harmless.
func (f *Filter) ApplyOptOuts(ctx context.Context, numbers []string, phoneID string) error {
	for _, number := range numbers {
		created, err := f.OptOuts.Register(ctx, number, phoneID, model.OptOutReasonStopReply)
		if err != nil {
			return err
		}
		if created && f.Log != nil {
			f.Log.Info("registered implied opt-out", slog.String("number", number), slog.String("phone_id", phoneID))
		}
	}
	return nil
}
