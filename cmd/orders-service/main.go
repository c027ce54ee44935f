package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rrajo-portfolio/orders-service/internal/auth"
	"github.com/rrajo-portfolio/orders-service/internal/client"
	"github.com/rrajo-portfolio/orders-service/internal/config"
	"github.com/rrajo-portfolio/orders-service/internal/db"
	"github.com/rrajo-portfolio/orders-service/internal/events"
	"github.com/rrajo-portfolio/orders-service/internal/jobs"
	"github.com/rrajo-portfolio/orders-service/internal/metrics"
	"github.com/rrajo-portfolio/orders-service/internal/order"
	"github.com/rrajo-portfolio/orders-service/internal/transport"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "orders-service").Logger()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Orders service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	postgres, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer postgres.Close()

	amqpConn, err := amqp.Dial(cfg.Notification.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
	}
	defer amqpConn.Close()

	notificationPublisher, err := events.NewNotificationPublisher(amqpConn, cfg.Notification)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notification publisher")
	}
	defer notificationPublisher.Close()

	eventPublisher := events.NewOrderEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrdersTopic)
	defer eventPublisher.Close()

	tokenProvider := auth.NewTokenProvider(cfg.ServiceAccount, nil)
	catalogClient := client.NewCatalog(cfg.Catalog, tokenProvider)
	usersClient := client.NewUsers(cfg.Users, tokenProvider)

	ordersMetrics := metrics.NewOrdersMetrics(prometheus.DefaultRegisterer)

	repo := order.NewRepository(postgres.Pool)
	service := order.NewService(repo, catalogClient, usersClient, eventPublisher, notificationPublisher, ordersMetrics)

	paymentConsumer := events.NewPaymentResultConsumer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, cfg.Kafka.PaymentGroup, service)
	defer paymentConsumer.Close()
	go paymentConsumer.Run(ctx)

	backlogReporter := jobs.NewBacklogReporter(repo, cfg.Jobs.BacklogInterval)
	go backlogReporter.Run(ctx)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())
	transport.NewOrderHandler(service).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Orders service stopped")
}
