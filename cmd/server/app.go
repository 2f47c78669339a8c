package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/twmb/franz-go/pkg/kgo"

	adminhandler "simkyc/internal/admin/handler"
	adminservice "simkyc/internal/admin/service"
	"simkyc/internal/audit"
	auditstore "simkyc/internal/audit/store"
	flowhandler "simkyc/internal/flow/handler"
	flowservice "simkyc/internal/flow/service"
	flowstore "simkyc/internal/flow/store"
	httpapi "simkyc/internal/http"
	kycmetrics "simkyc/internal/kyc/metrics"
	"simkyc/internal/kyc/ports"
	"simkyc/internal/kyc/refresh"
	"simkyc/internal/kyc/resolver"
	"simkyc/internal/kyc/store/servicerequest"
	"simkyc/internal/kyc/store/verification"
	"simkyc/internal/kyc/sweeper"
	"simkyc/internal/metamap/clientconfig"
	"simkyc/internal/metamap/gateway"
	"simkyc/internal/metamap/webhook"
	"simkyc/internal/metamap/webhook/publisher"
	webhookstore "simkyc/internal/metamap/webhook/store"
	"simkyc/internal/otp"
	paymenthandler "simkyc/internal/payment/handler"
	paymentservice "simkyc/internal/payment/service"
	paymentstore "simkyc/internal/payment/store"
	"simkyc/internal/platform/config"
	"simkyc/internal/platform/kafka"
	"simkyc/internal/platform/metrics"
	"simkyc/internal/platform/postgres"
	"simkyc/internal/platform/redis"
	subscriberhandler "simkyc/internal/subscriber/handler"
	subscriberservice "simkyc/internal/subscriber/service"
	subscriberstore "simkyc/internal/subscriber/store"
	"simkyc/pkg/platform/tx"
)

// app holds everything serve needs to run and to release on exit.
type app struct {
	router  http.Handler
	sweeper *sweeper.Sweeper
	storage string
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	requests      ports.ServiceRequestStore
	verifications ports.VerificationStore
	profiles      flowservice.ProfileStore
	subscribers   subscriberservice.Store
	payments      paymentservice.Store
	events        webhook.EventStore
	audit         audit.Store
	tx            tx.Runner
}

func memoryStores() stores {
	return stores{
		requests:      servicerequest.NewInMemory(),
		verifications: verification.NewInMemory(),
		profiles:      flowstore.NewInMemory(),
		subscribers:   subscriberstore.NewInMemory(),
		payments:      paymentstore.NewInMemory(),
		events:        webhookstore.NewInMemory(),
		audit:         auditstore.NewInMemory(),
		tx:            tx.NoopRunner{},
	}
}

func postgresStores(db *postgres.DB) stores {
	return stores{
		requests:      servicerequest.NewPostgres(db.Pool),
		verifications: verification.NewPostgres(db.Pool),
		profiles:      flowstore.NewPostgres(db.Pool),
		subscribers:   subscriberstore.NewPostgres(db.Pool),
		payments:      paymentstore.NewPostgres(db.Pool),
		events:        webhookstore.NewPostgres(db.SQL),
		audit:         auditstore.NewPostgres(db.SQL),
		tx:            tx.NewPoolRunner(db.Pool),
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{storage: "memory"}
	health := map[string]httpapi.HealthCheck{}

	st := memoryStores()
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		health["postgres"] = db.Health
		st = postgresStores(db)
		a.storage = "postgres"
	}

	kycMetrics := kycmetrics.New()

	gatewayOpts := []gateway.Option{gateway.WithLogger(log), gateway.WithMetrics(kycMetrics)}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
		health["redis"] = rc.Health
		gatewayOpts = append(gatewayOpts, gateway.WithTokenCache(gateway.NewRedisTokenCache(rc.Client, cfg.Redis.TokenTTL, log)))
	}
	gw := gateway.New(gateway.Config{
		BaseURL:      cfg.MetaMap.BaseURL,
		ClientID:     cfg.MetaMap.ClientID,
		ClientSecret: cfg.MetaMap.ClientSecret,
		Timeout:      cfg.MetaMap.Timeout,
	}, gatewayOpts...)
	if !gw.Configured() {
		log.Warn("metamap credentials are not configured; provider refresh is disabled")
	}

	res, err := resolver.New(st.requests, st.verifications,
		resolver.WithLogger(log),
		resolver.WithMetrics(kycMetrics),
		resolver.WithFlowIDs(resolver.FlowIDs{Citizen: cfg.MetaMap.CitizenFlowID, NonCitizen: cfg.MetaMap.NonCitizenFlowID}),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	refresher, err := refresh.New(st.requests, st.verifications, gw,
		refresh.WithLogger(log),
		refresh.WithMetrics(kycMetrics),
		refresh.WithTxRunner(st.tx),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	webhookOpts := []webhook.Option{
		webhook.WithLogger(log),
		webhook.WithMetrics(kycMetrics),
		webhook.WithSecret(cfg.MetaMap.WebhookSecret),
		webhook.WithTxRunner(st.tx),
	}
	kc, err := kafkaClient(ctx, cfg.Kafka, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if kc != nil {
		a.closers = append(a.closers, kc.Close)
		webhookOpts = append(webhookOpts, webhook.WithPublisher(publisher.NewKafka(kc, cfg.Kafka.WebhookTopic)))
	}
	webhooks, err := webhook.New(st.events, gw, res, st.requests, st.verifications, webhookOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	auditPublisher, err := audit.NewPublisher(st.audit, audit.WithLogger(log), audit.WithAsyncBuffer(cfg.Audit.AsyncBuffer))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, auditPublisher.Close)

	subscribers, err := subscriberservice.New(st.subscribers,
		subscriberservice.WithLogger(log),
		subscriberservice.WithAllowUnseeded(cfg.Subscribers.AllowUnseeded),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	flows, err := flowservice.New(st.requests, st.verifications, st.profiles, subscribers, refresher,
		flowservice.WithLogger(log),
		flowservice.WithAudit(auditPublisher),
		flowservice.WithTxRunner(st.tx),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	payments, err := paymentservice.New(st.payments, st.requests,
		paymentservice.WithLogger(log),
		paymentservice.WithAudit(auditPublisher),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	reports, err := adminservice.New(st.requests, st.verifications, payments, adminservice.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Sweeper.Enabled {
		a.sweeper, err = sweeper.New(sweeper.Config{
			Schedule:   cfg.Sweeper.Schedule,
			StaleAfter: cfg.Sweeper.StaleAfter,
			BatchSize:  cfg.Sweeper.BatchSize,
		}, st.verifications, refresher, sweeper.WithLogger(log), sweeper.WithMetrics(kycMetrics))
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.router = httpapi.NewRouter(httpapi.Deps{
		Logger:     log,
		Metrics:    metrics.New(),
		AdminToken: cfg.Admin.APIToken,
		Public: []httpapi.Registrar{
			webhook.NewHandler(webhooks, log),
			clientconfig.New(clientconfig.Config{
				ClientID:         cfg.MetaMap.ClientID,
				CitizenFlowID:    cfg.MetaMap.CitizenFlowID,
				NonCitizenFlowID: cfg.MetaMap.NonCitizenFlowID,
			}, log),
			flowhandler.New(flows, log),
			subscriberhandler.New(subscribers, log),
			paymenthandler.New(payments, log),
			otp.New(),
		},
		Admin:  []httpapi.Registrar{adminhandler.New(reports, log)},
		Health: health,
	})
	return a, nil
}

func kafkaClient(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (*kgo.Client, error) {
	kc, err := kafka.New(ctx, cfg)
	if err != nil || kc == nil {
		return kc, err
	}
	if err := publisher.EnsureTopic(ctx, kc, cfg.WebhookTopic, 1, 1); err != nil {
		kc.Close()
		return nil, fmt.Errorf("ensure webhook topic: %w", err)
	}
	log.Info("streaming webhook events to kafka", "topic", cfg.WebhookTopic)
	return kc, nil
}
