// cmd/server/main.go
package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/unclebandit/smsconsole-backend/internal/config"
	"github.com/unclebandit/smsconsole-backend/internal/db"
	"github.com/unclebandit/smsconsole-backend/internal/eligibility"
	"github.com/unclebandit/smsconsole-backend/internal/gateway"
	"github.com/unclebandit/smsconsole-backend/internal/handler"
	"github.com/unclebandit/smsconsole-backend/internal/logger"
	"github.com/unclebandit/smsconsole-backend/internal/metrics"
	"github.com/unclebandit/smsconsole-backend/internal/queue"
	"github.com/unclebandit/smsconsole-backend/internal/repository"
	"github.com/unclebandit/smsconsole-backend/internal/service"
	"github.com/unclebandit/smsconsole-backend/internal/webhook"
)

func main() {
	log := logger.NewJSONLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Open(cfg.DSN())
	if err != nil {
		log.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Error("failed to connect to rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := queue.NewAMQPPublisher(conn)
	if err != nil {
		log.Error("failed to set up retry queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer publisher.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	phoneRepo := &repository.PhoneNumberRepository{DB: database}
	contactRepo := &repository.ContactRepository{DB: database}
	messageRepo := &repository.MessageRepository{DB: database}
	deliveryRepo := &repository.DeliveryStatusRepository{DB: database}
	optOutRepo := &repository.OptOutRepository{DB: database}

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayUsername, cfg.GatewayPassword)
	filter := &eligibility.Filter{OptOuts: optOutRepo, Log: log}

	campaignService := &service.CampaignService{
		Campaigns:  campaignRepo,
		Phones:     phoneRepo,
		Contacts:   contactRepo,
		Messages:   messageRepo,
		Deliveries: deliveryRepo,
		Filter:     filter,
		Gateway:    gw,

		DeliveryCallbackURL: cfg.DeliveryReportURL,
		DispatchDelay:       cfg.DispatchDelay,
		Log:                 log,
	}

	deliveryService := &service.DeliveryService{
		Deliveries: deliveryRepo,
		Messages:   messageRepo,
		OptOuts:    optOutRepo,
		Gateway:    gw,
		Queue:      publisher,
		Log:        log,
	}

	campaignHandler := &handler.CampaignHandler{
		Campaigns:  campaignRepo,
		Deliveries: deliveryRepo,
		OptOuts:    optOutRepo,
		Service:    campaignService,
		Log:        log,
	}
	deliveryWebhook := &webhook.DeliveryHandler{Reports: deliveryService, Log: log}
	inboundWebhook := &webhook.InboundHandler{
		Phones:    phoneRepo,
		Contacts:  contactRepo,
		Messages:  messageRepo,
		OptOuts:   optOutRepo,
		Campaigns: campaignRepo,
		Gateway:   gw,
		Log:       log,
	}

	metrics.Register()

	r := chi.NewRouter()

	r.Post("/campaigns", campaignHandler.CreateCampaignHandler)
	r.Get("/campaigns", campaignHandler.ListCampaignsHandler)
	r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandler)
	r.Post("/campaigns/{id}/cancel", campaignHandler.CancelCampaignHandler)

	r.Post("/bulk/preview-exclusions", campaignHandler.PreviewExclusionsHandler)
	r.Post("/bulk/preview-message", campaignHandler.PreviewMessageHandler)
	r.Post("/bulk/send", campaignHandler.SendBulkHandler)

	r.Get("/opt-outs", campaignHandler.ListOptOutsHandler)
	r.Post("/opt-outs", campaignHandler.RegisterOptOutHandler)
	r.Delete("/opt-outs", campaignHandler.RemoveOptOutHandler)

	r.Method(http.MethodPost, "/webhooks/delivery-reports", deliveryWebhook)
	r.Method(http.MethodPost, "/webhooks/sms", inboundWebhook)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	log.Info("server running", slog.String("addr", cfg.ServerAddr))
	if err := http.ListenAndServe(cfg.ServerAddr, r); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
