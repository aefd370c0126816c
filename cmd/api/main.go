package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safar/go-checkout/internal/checkout"
	"github.com/safar/go-checkout/internal/config"
	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/events"
	"github.com/safar/go-checkout/internal/httpapi"
	"github.com/safar/go-checkout/internal/idempotency"
	"github.com/safar/go-checkout/internal/logging"
	"github.com/safar/go-checkout/internal/payment"
	"github.com/safar/go-checkout/internal/store"
	"github.com/sirupsen/logrus"
)

const serviceName = "checkout-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(config.LogConfig{Level: "info", Format: "json"}, serviceName).Fatalf("Load config: %v", err)
	}

	log := logging.New(cfg.Log, serviceName)

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Info("Connected to database successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "checkout"),
	)

	gateway, err := payment.New(cfg.Payment, log)
	if err != nil {
		log.Fatalf("Payment gateway: %v", err)
	}

	pg := store.NewPostgres(db, cfg.Checkout.ReconcileMaxRetries)

	opts := checkout.Options{
		ReservationMode: checkout.ReservationMode(cfg.Checkout.ReservationMode),
		Currency:        cfg.Checkout.Currency,
		SupportContact:  cfg.Checkout.SupportContact,
		Logger:          log,
		Metrics:         checkout.NewMetrics(registry),
	}

	if cfg.Redis.Addr != "" {
		rdb := idempotency.NewClient(cfg.Redis.Addr)
		defer rdb.Close()
		opts.Locker = idempotency.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		log.WithField("addr", cfg.Redis.Addr).Info("Idempotency lock enabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, serviceName, log)
		defer publisher.Close()
		opts.Publisher = publisher
		log.WithField("topic", cfg.Kafka.Topic).Info("Event publishing enabled")
	}

	svc := checkout.New(pg, gateway, opts)

	router := httpapi.NewRouter(&httpapi.Handler{
		Checkout: svc,
		Orders:   pg,
		Log:      log,
	}, registry, cfg.Server.WriteTimeout)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithFields(logrus.Fields{
			"port":             cfg.Server.Port,
			"reservation_mode": cfg.Checkout.ReservationMode,
			"payment_provider": cfg.Payment.Provider,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
