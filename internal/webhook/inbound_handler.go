package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unclebandit/smsconsole-backend/internal/gateway"
	"github.com/unclebandit/smsconsole-backend/internal/metrics"
	"github.com/unclebandit/smsconsole-backend/internal/model"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
)

// Inbound messages whose uppercase text contains this keyword opt the sender
// out of future bulk sends. Covers STOP and the Swedish STOPP.
const stopKeyword = "STOP"

const optOutConfirmation = "You have been unsubscribed and will not receive further messages from us."

// CampaignGetter is the slice of the campaign repository the inbound path
// needs to name campaigns in conversation notes.
type CampaignGetter interface {
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
}

type InboundHandler struct {
	Phones    repository.PhoneNumberRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Messages  repository.MessageRepositoryInterface
	OptOuts   repository.OptOutRepositoryInterface
	Campaigns CampaignGetter
	Gateway   gateway.Client
	Log       *slog.Logger
}

// ServeHTTP handles one inbound SMS callback: fields id, from, to, message
// and an optional created timestamp. Always answers 200.
func (h *InboundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusOK)

	params, err := parseParams(r)
	if err != nil {
		h.Log.Warn("unparseable inbound sms", slog.Any("error", err))
		return
	}

	from := strings.TrimSpace(params["from"])
	to := strings.TrimSpace(params["to"])
	text := params["message"]
	externalID := params["id"]
	if from == "" || to == "" || text == "" {
		h.Log.Warn("inbound sms missing from, to or message")
		return
	}

	ctx := r.Context()

	// The provider re-delivers callbacks it thinks we missed.
	if externalID != "" {
		existing, err := h.Messages.GetByExternalID(ctx, externalID)
		if err != nil {
			h.Log.Error("inbound dedupe lookup failed", slog.Any("error", err))
			return
		}
		if existing != nil {
			return
		}
	}

	metrics.WebhookEvents.WithLabelValues("inbound_sms").Inc()

	phone, err := h.findOrCreatePhone(ctx, to)
	if err != nil {
		h.Log.Error("failed to resolve receiving phone", slog.String("to", to), slog.Any("error", err))
		return
	}

	contact, conv, err := h.Contacts.EnsureConversation(ctx, phone.ID, from, "", false, false)
	if err != nil {
		h.Log.Error("failed to resolve conversation", slog.String("from", from), slog.Any("error", err))
		return
	}

	receivedAt := parseGatewayTime(params["created"])
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		Sender:         model.SenderThem,
		Text:           text,
		Status:         model.DeliveryStatusDelivered,
		ExternalID:     externalID,
		CreatedAt:      receivedAt,
	}
	if err := h.Messages.Create(ctx, msg); err != nil {
		h.Log.Error("failed to store inbound message", slog.Any("error", err))
		return
	}
	if err := h.Contacts.UpdateConversationSnapshot(ctx, conv.ID, text, receivedAt, true); err != nil {
		h.Log.Error("failed to update conversation snapshot", slog.Any("error", err))
	}

	isStop := strings.Contains(strings.ToUpper(text), stopKeyword)

	h.recordCampaignReply(ctx, contact, conv, isStop)

	if isStop {
		h.registerOptOut(ctx, from, phone, conv)
	}
}

func (h *InboundHandler) findOrCreatePhone(ctx context.Context, number string) (*model.PhoneNumber, error) {
	phone, err := h.Phones.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if phone != nil {
		return phone, nil
	}
	phone = &model.PhoneNumber{Number: number, Device: "Auto-created from SMS"}
	if err := h.Phones.Create(ctx, phone); err != nil {
		return nil, err
	}
	h.Log.Info("created phone number from inbound sms", slog.String("number", number))
	return phone, nil
}

// recordCampaignReply marks the first reply a contact sends after a bulk
// message and documents the removal in the conversation. Later replies hit
// the unique constraint and change nothing, so only the first one flips the
// campaign's reply state.
func (h *InboundHandler) recordCampaignReply(ctx context.Context, contact *model.Contact, conv *model.Conversation, isStop bool) {
	latest, err := h.Messages.LatestCampaignMessage(ctx, conv.ID)
	if err != nil {
		h.Log.Error("failed to look up campaign message", slog.Any("error", err))
		return
	}
	if latest == nil || latest.BulkCampaignID == nil {
		return
	}

	created, err := h.OptOuts.RecordReply(ctx, &model.CampaignReply{
		CampaignID:     *latest.BulkCampaignID,
		ContactID:      contact.ID,
		ConversationID: conv.ID,
		WasOptedOut:    isStop,
	})
	if err != nil {
		h.Log.Error("failed to record campaign reply",
			slog.String("campaign_id", *latest.BulkCampaignID), slog.Any("error", err))
		return
	}
	if !created {
		return
	}

	h.Log.Info("campaign reply recorded",
		slog.String("campaign_id", *latest.BulkCampaignID),
		slog.Bool("opted_out", isStop))

	h.appendSystemNote(ctx, conv.ID, fmt.Sprintf(
		"This contact was automatically removed from campaign %q because they replied",
		h.campaignName(ctx, *latest.BulkCampaignID)))
}

// registerOptOut stores the opt-out, documents it in the conversation, and
// confirms it to the sender. The conversation note is written regardless of
// whether the confirmation SMS goes out: operators must always see why a
// contact stopped receiving campaigns.
func (h *InboundHandler) registerOptOut(ctx context.Context, number string, phone *model.PhoneNumber, conv *model.Conversation) {
	created, err := h.OptOuts.Register(ctx, number, phone.ID, model.OptOutReasonStopMessage)
	if err != nil {
		h.Log.Error("failed to register opt-out", slog.String("number", number), slog.Any("error", err))
		return
	}
	if !created {
		return
	}
	h.Log.Info("opt-out registered from stop message", slog.String("number", number))

	h.appendSystemNote(ctx, conv.ID,
		"This contact has opted out of receiving bulk SMS by texting STOP")

	// Best effort only: the opt-out and its note are already persisted.
	result, err := h.Gateway.Send(ctx, number, optOutConfirmation, phone.Number, "")
	if err != nil {
		h.Log.Error("failed to send opt-out confirmation", slog.String("number", number), slog.Any("error", err))
		return
	}

	reply := &model.Message{
		ConversationID: conv.ID,
		Sender:         model.SenderMe,
		Text:           optOutConfirmation,
		Status:         model.DeliveryStatusSent,
		ExternalID:     result.ExternalID,
		IsAutomated:    true,
	}
	if err := h.Messages.Create(ctx, reply); err != nil {
		h.Log.Error("failed to store opt-out confirmation", slog.Any("error", err))
		return
	}
	if err := h.Contacts.UpdateConversationSnapshot(ctx, conv.ID, optOutConfirmation, reply.CreatedAt, false); err != nil {
		h.Log.Error("failed to update conversation snapshot", slog.Any("error", err))
	}
}

// appendSystemNote documents an automatic action in the conversation. Notes
// carry the contact's sender side so clients render them inside the thread.
func (h *InboundHandler) appendSystemNote(ctx context.Context, conversationID, text string) {
	note := &model.Message{
		ConversationID: conversationID,
		Sender:         model.SenderThem,
		Text:           text,
		Status:         model.DeliveryStatusDelivered,
		IsAutomated:    true,
	}
	if err := h.Messages.Create(ctx, note); err != nil {
		h.Log.Error("failed to store conversation note", slog.Any("error", err))
	}
}

func (h *InboundHandler) campaignName(ctx context.Context, campaignID string) string {
	campaign, err := h.Campaigns.GetByID(ctx, campaignID)
	if err != nil || campaign == nil {
		return campaignID
	}
	return campaign.Name
}
