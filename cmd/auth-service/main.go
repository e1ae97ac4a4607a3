package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/internal/auth"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/config"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/logger"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/postgres"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/rabbitmq"
)

// @title           Konecta ERP - Authentication Service
// @version         1.0
// @description     Registration, login and token validation. Registration publishes a user.created event for the directory and finance services.
// @BasePath        /
// @schemes         http
func main() {
	log := logger.New("auth-service")
	defer log.Sync()

	cfg := config.LoadForService("AUTH")

	db, err := postgres.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, "auth", log); err != nil {
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

	// A broker outage at boot is tolerated: the publisher reconnects lazily on
	// the first publish.
	if err := manager.Connect(context.Background()); err != nil {
		log.Warn("broker not reachable at startup, continuing", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(manager, cfg.ExchangeName, log)
	defer publisher.Close()

	handler := auth.NewHandler(db, publisher, auth.NewJWTService(cfg.JWTSecret, cfg.JWTTTL), log)
	router := auth.NewRouter(handler)

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
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("forced shutdown", zap.Error(err))
	}
	log.Info("stopped")
}
