// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/smsconsole-backend/internal/errors"
	"github.com/unclebandit/smsconsole-backend/internal/model"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
	"github.com/unclebandit/smsconsole-backend/internal/service"
	"github.com/unclebandit/smsconsole-backend/internal/template"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers.
type CampaignHandler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Deliveries repository.DeliveryStatusRepositoryInterface
	OptOuts    repository.OptOutRepositoryInterface
	Service    *service.CampaignService
	Log        *slog.Logger
}

// CreateCampaignHandler creates a draft campaign without dispatching anything.
func (h *CampaignHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name            string `json:"name"`
		MessageTemplate string `json:"message_template"`
		PhoneID         string `json:"phone_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{
		Name:            payload.Name,
		MessageTemplate: payload.MessageTemplate,
		PhoneID:         payload.PhoneID,
		Status:          model.CampaignStatusDraft,
	}
	if err := h.Campaigns.Create(r.Context(), campaign); err != nil {
		http.Error(w, "failed to create campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, campaign)
}

// ListCampaignsHandler returns a paginated list of campaigns.
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	status := r.URL.Query().Get("status")

	campaigns, total, err := h.Campaigns.List(r.Context(), (page-1)*pageSize, pageSize, status)
	if err != nil {
		http.Error(w, "failed to fetch campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": campaigns,
		"pagination": map[string]interface{}{
			"page":        page,
			"page_size":   pageSize,
			"total_count": total,
		},
	})
}

// GetCampaignHandler returns one campaign together with its delivery stats.
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := h.Campaigns.GetByID(r.Context(), id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}

	stats, err := h.Deliveries.StatsForCampaign(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to fetch delivery stats: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign":       campaign,
		"delivery_stats": stats,
	})
}

// CancelCampaignHandler flags a running campaign so the dispatch loop stops
// before its next recipient. Already-dispatched messages are unaffected.
func (h *CampaignHandler) CancelCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Campaigns.RequestCancel(r.Context(), id); err != nil {
		writeCampaignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"campaign_id": id, "status": "cancel_requested"})
}

// PreviewExclusionsHandler runs the eligibility filter without side effects.
func (h *CampaignHandler) PreviewExclusionsHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Recipients []string `json:"recipients"`
		CampaignID *string  `json:"campaign_id,omitempty"`
		PhoneID    string   `json:"phone_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.Service.PreviewExclusions(r.Context(), payload.Recipients, payload.CampaignID, payload.PhoneID)
	if err != nil {
		http.Error(w, "failed to check exclusions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewMessageHandler renders the template against one row of data.
func (h *CampaignHandler) PreviewMessageHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Template string            `json:"template"`
		Row      map[string]string `json:"row"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"rendered_message": template.Render(payload.Template, payload.Row),
	})
}

// SendBulkHandler validates and accepts a bulk send. The dispatch loop runs
// in the background; clients poll GET /campaigns/{id} for progress.
func (h *CampaignHandler) SendBulkHandler(w http.ResponseWriter, r *http.Request) {
	var req service.BulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	job, err := h.Service.PrepareBulk(r.Context(), &req)
	if err != nil {
		var confirmErr *appErrors.ConfirmationRequiredError
		var valErr *appErrors.ValidationError
		switch {
		case errors.As(err, &confirmErr):
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error": "confirmation required",
				"stats": confirmErr.Stats,
			})
		case errors.As(err, &valErr):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": valErr.Reason,
				"field": valErr.Field,
			})
		default:
			http.Error(w, "failed to prepare bulk send: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// Detached from the request context: closing the HTTP connection must
	// not abort a half-dispatched campaign.
	go func() {
		result := h.Service.RunDispatch(context.Background(), &req, job)
		h.Log.Info("bulk dispatch finished",
			slog.String("campaign_id", result.CampaignID),
			slog.Int("succeeded", result.Succeeded),
			slog.Int("failed", result.Failed),
			slog.Int("not_attempted", len(result.NotAttempted)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id": job.CampaignID,
		"recipients":  len(job.Recipients),
		"excluded":    len(job.Excluded),
	})
}

// ListOptOutsHandler lists opt-outs for one sender phone.
func (h *CampaignHandler) ListOptOutsHandler(w http.ResponseWriter, r *http.Request) {
	phoneID := r.URL.Query().Get("phone_id")
	if phoneID == "" {
		http.Error(w, "phone_id is required", http.StatusBadRequest)
		return
	}
	optOuts, err := h.OptOuts.ListByPhone(r.Context(), phoneID)
	if err != nil {
		http.Error(w, "failed to fetch opt-outs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": optOuts})
}

// RegisterOptOutHandler records a manual opt-out.
func (h *CampaignHandler) RegisterOptOutHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PhoneNumber string `json:"phone_number"`
		PhoneID     string `json:"phone_id"`
		Reason      string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload.PhoneNumber == "" || payload.PhoneID == "" {
		http.Error(w, "phone_number and phone_id are required", http.StatusBadRequest)
		return
	}
	if payload.Reason == "" {
		payload.Reason = model.OptOutReasonManual
	}

	created, err := h.OptOuts.Register(r.Context(), payload.PhoneNumber, payload.PhoneID, payload.Reason)
	if err != nil {
		http.Error(w, "failed to register opt-out: "+err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

// RemoveOptOutHandler undoes an opt-out, e.g. after an accidental STOP.
func (h *CampaignHandler) RemoveOptOutHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PhoneNumber string `json:"phone_number"`
		PhoneID     string `json:"phone_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.OptOuts.Remove(r.Context(), payload.PhoneNumber, payload.PhoneID); err != nil {
		http.Error(w, "failed to remove opt-out: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCampaignError(w http.ResponseWriter, err error) {
	var notFound *appErrors.ErrCampaignNotFound
	if errors.As(err, &notFound) {
		http.Error(w, notFound.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
