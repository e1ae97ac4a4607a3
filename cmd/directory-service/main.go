package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/internal/directory"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/config"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/logger"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/postgres"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/rabbitmq"
)

// @title           Konecta ERP - Directory Service
// @version         1.0
// @description     Read/update API over the user directory projection. The projection is kept current by a hosted consumer of user events running inside the same process.
// @BasePath        /
// @schemes         http
func main() {
	log := logger.New("directory-service")
	defer log.Sync()

	cfg := config.LoadForService("DIRECTORY")

	db, err := postgres.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "directory", log); err != nil {
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

	publisher := rabbitmq.NewPublisher(manager, cfg.ExchangeName, log)
	defer publisher.Close()

	handler := directory.NewHandler(db, publisher, log)
	eventConsumer := directory.NewConsumer(db, log)

	worker := rabbitmq.NewConsumer(manager, rabbitmq.ConsumerConfig{
		Exchange:  cfg.ExchangeName,
		QueueName: directory.QueueName,
		DLQName:   directory.DLQName,
		RoutingKeys: []string{
			string(models.EventUserCreated),
			string(models.EventUserUpdated),
			string(models.EventUserDeleted),
		},
		ConsumerName: "directory-service",
		Prefetch:     cfg.PrefetchCount,
	}, eventConsumer.HandleMessage, log)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		worker.Run(consumerCtx)
	}()

	router := directory.NewRouter(handler, func() gin.H {
		return gin.H{
			"status":     "ok",
			"consumer":   worker.State().String(),
			"connection": manager.State().String(),
		}
	})

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
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

	// Stop taking new messages first so in-flight applies finish before the
	// AMQP channel goes away, then drain the HTTP side.
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
