package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
)

func TestPublishWithBrokerDown(t *testing.T) {
	pub := NewPublisher(newTestManager(2), "erp.events", zap.NewNop())

	event := models.NewUserEvent(models.EventUserCreated, "corr-1", models.UserPayload{
		ID:       "u1",
		Email:    "a@x.com",
		FullName: "A B",
		Role:     "Employee",
	})

	err := pub.Publish(context.Background(), event)
	if !errors.Is(err, ErrBrokerUnreachable) {
		t.Fatalf("expected ErrBrokerUnreachable, got %v", err)
	}
}

func TestPublishRespectsContext(t *testing.T) {
	pub := NewPublisher(newTestManager(1000), "erp.events", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	event := models.NewUserEvent(models.EventUserUpdated, "corr-2", models.UserPayload{ID: "u1"})

	start := time.Now()
	err := pub.Publish(ctx, event)
	if err == nil {
		t.Fatal("expected an error with the broker down")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("publish must give up once the context expires, not run out the attempt ceiling")
	}
}

func TestPublisherCloseIdempotent(t *testing.T) {
	pub := NewPublisher(newTestManager(1), "erp.events", zap.NewNop())

	if err := pub.Close(); err != nil {
		t.Errorf("closing a never-opened publisher should be a no-op: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("double close should be a no-op: %v", err)
	}
}
