package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCorrelationIDGenerated(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = GetCorrelationID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if seen == "" {
		t.Fatal("expected a generated correlation ID")
	}
	if got := w.Header().Get(CorrelationIDHeader); got != seen {
		t.Errorf("response header %q should match context value %q", got, seen)
	}
}

func TestCorrelationIDPropagated(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = GetCorrelationID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationIDHeader, "corr-fixed")
	r.ServeHTTP(w, req)

	if seen != "corr-fixed" {
		t.Errorf("expected propagated correlation ID, got %q", seen)
	}
	if got := w.Header().Get(CorrelationIDHeader); got != "corr-fixed" {
		t.Errorf("expected header echoed back, got %q", got)
	}
}

func TestGetCorrelationIDFallback(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if id := GetCorrelationID(c); id == "" {
		t.Error("expected a fallback correlation ID when middleware did not run")
	}
}
