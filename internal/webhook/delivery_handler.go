// Package webhook receives callbacks from the SMS gateway: delivery reports
// for outbound messages and inbound SMS from recipients. Handlers always
// answer 200; a non-2xx would make the provider re-deliver the callback and
// eventually disable it.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unclebandit/smsconsole-backend/internal/metrics"
)

// DeliveryReporter is the slice of the delivery service the report handler
// needs.
type DeliveryReporter interface {
	ApplyDeliveryReport(ctx context.Context, externalID, status string, deliveredAt *time.Time) error
}

type DeliveryHandler struct {
	Reports DeliveryReporter
	Log     *slog.Logger
}

// ServeHTTP handles one gateway delivery report: fields id, status and an
// optional delivered timestamp, as form data or JSON.
func (h *DeliveryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params, err := parseParams(r)
	if err != nil {
		h.Log.Warn("unparseable delivery report", slog.Any("error", err))
		w.WriteHeader(http.StatusOK)
		return
	}

	externalID := params["id"]
	status := params["status"]
	if externalID == "" || status == "" {
		h.Log.Warn("delivery report missing id or status")
		w.WriteHeader(http.StatusOK)
		return
	}

	var deliveredAt *time.Time
	if ts := parseGatewayTime(params["delivered"]); !ts.IsZero() {
		deliveredAt = &ts
	}

	metrics.WebhookEvents.WithLabelValues("delivery_report").Inc()

	if err := h.Reports.ApplyDeliveryReport(r.Context(), externalID, status, deliveredAt); err != nil {
		// Logged, never surfaced: the provider retrying won't make an
		// unknown id known.
		h.Log.Error("failed to apply delivery report",
			slog.String("external_id", externalID),
			slog.String("status", status),
			slog.Any("error", err))
	}

	w.WriteHeader(http.StatusOK)
}

// parseParams accepts either form-encoded or JSON bodies; the gateway has
// shipped both over the years.
func parseParams(r *http.Request) (map[string]string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var raw map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, err
		}
		params := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				params[k] = s
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	params := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	return params, nil
}

var gatewayTimeLayouts = []string{
	"2006-01-02T15:04:05.000000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseGatewayTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range gatewayTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
