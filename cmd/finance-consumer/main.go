package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/internal/finance"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/config"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/logger"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/postgres"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/rabbitmq"
)

func main() {
	log := logger.New("finance-consumer")
	defer log.Sync()

	cfg := config.LoadForService("FINANCE")

	db, err := postgres.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "finance", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	manager := rabbitmq.NewConnectionManager(rabbitmq.ConnectionConfig{
		URL:               cfg.RabbitMQURL,
		DialTimeout:       cfg.DialTimeout,
		ReconnectBase:     cfg.ReconnectBase,
		ReconnectMax:      cfg.ReconnectMax,
		ReconnectAttempts: cfg.ReconnectAttempts,
	}, log)
	defer manager.Close()

	if err := manager.Connect(context.Background()); err != nil {
		log.Warn("broker not reachable at startup, continuing", zap.Error(err))
	}

	eventConsumer := finance.NewConsumer(db, log)

	worker := rabbitmq.NewConsumer(manager, rabbitmq.ConsumerConfig{
		Exchange:  cfg.ExchangeName,
		QueueName: finance.QueueName,
		DLQName:   finance.DLQName,
		RoutingKeys: []string{
			string(models.EventUserCreated),
			string(models.EventUserUpdated),
			string(models.EventUserDeleted),
		},
		ConsumerName: "finance-consumer",
		Prefetch:     cfg.PrefetchCount,
	}, eventConsumer.HandleMessage, log)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		worker.Run(consumerCtx)
	}()

	// No API surface here, just health and metrics for the orchestrator.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !worker.Healthy() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{
			"consumer":   worker.State().String(),
			"connection": manager.State().String(),
		})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: mux,
	}

	go func() {
		log.Info("listening", zap.String("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	stopConsumer()
	select {
	case <-consumerDone:
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn("consumer did not stop within shutdown timeout")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("forced shutdown", zap.Error(err))
	}
	log.Info("stopped")
}
