package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockPublisher implements EventPublisher for testing.
type mockPublisher struct {
	published []models.UserEvent
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, event models.UserEvent) error {
	m.published = append(m.published, event)
	return m.err
}

func newTestRouter(t *testing.T, pub EventPublisher) (*gin.Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	h := NewHandler(db, pub, zap.NewNop())
	router := NewRouter(h, func() gin.H { return gin.H{"status": "ok"} })
	return router, mock, func() { db.Close() }
}

func TestGetUser_Found(t *testing.T) {
	router, mock, closeDB := newTestRouter(t, &mockPublisher{})
	defer closeDB()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, email").
		WithArgs("u1").
		WillReturnRows(userRow(models.User{
			ID: "u1", Email: "a@x.com", FullName: "A B", Role: "Employee",
			Status: "Active", CreatedAt: now, UpdatedAt: now,
		}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users/u1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var user models.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if user.Email != "a@x.com" {
		t.Errorf("unexpected email: %s", user.Email)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	router, mock, closeDB := newTestRouter(t, &mockPublisher{})
	defer closeDB()

	mock.ExpectQuery("SELECT id, email").
		WithArgs("ghost").
		WillReturnRows(noUserRow())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users/ghost", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestListUsers_Paged(t *testing.T) {
	router, mock, closeDB := newTestRouter(t, &mockPublisher{})
	defer closeDB()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery("SELECT id, email").
		WillReturnRows(userRow(models.User{
			ID: "u1", Email: "a@x.com", FullName: "A B", Role: "Employee",
			Status: "Active", CreatedAt: now, UpdatedAt: now,
		}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users?page=2&page_size=10&role=Employee", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var page models.PagedUsers
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if page.TotalItems != 42 || page.Page != 2 || page.PageSize != 10 {
		t.Errorf("unexpected paging metadata: %+v", page)
	}
	if len(page.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(page.Items))
	}
}

func TestUpdateUser_PublishesEvent(t *testing.T) {
	pub := &mockPublisher{}
	router, mock, closeDB := newTestRouter(t, pub)
	defer closeDB()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, email").
		WithArgs("u1").
		WillReturnRows(userRow(models.User{
			ID: "u1", Email: "a@x.com", FullName: "A B", Role: "Employee",
			Status: "Active", CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectExec("UPDATE users SET").
		WithArgs("a@x.com", "A B", "Manager", "Active", "", sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/users/u1", bytes.NewBufferString(`{"role":"Manager"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.published))
	}
	event := pub.published[0]
	if event.EventType != models.EventUserUpdated {
		t.Errorf("unexpected event type: %s", event.EventType)
	}
	if event.Data.Role != "Manager" {
		t.Errorf("event must carry the updated role, got %q", event.Data.Role)
	}
}

// A broker outage during the update must not surface to the API caller.
func TestUpdateUser_PublishFailureStillSucceeds(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker unreachable")}
	router, mock, closeDB := newTestRouter(t, pub)
	defer closeDB()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, email").
		WithArgs("u1").
		WillReturnRows(userRow(models.User{
			ID: "u1", Email: "a@x.com", FullName: "A B", Role: "Employee",
			Status: "Active", CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectExec("UPDATE users SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/users/u1", bytes.NewBufferString(`{"role":"Manager"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("publish failure must not fail the request, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeleteUser_PublishesEvent(t *testing.T) {
	pub := &mockPublisher{}
	router, mock, closeDB := newTestRouter(t, pub)
	defer closeDB()

	mock.ExpectExec("UPDATE users SET is_deleted").
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/users/u1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(pub.published) != 1 || pub.published[0].EventType != models.EventUserDeleted {
		t.Errorf("expected a user.deleted event, got %+v", pub.published)
	}
}

func TestDeleteUser_NotFound(t *testing.T) {
	pub := &mockPublisher{}
	router, mock, closeDB := newTestRouter(t, pub)
	defer closeDB()

	mock.ExpectExec("UPDATE users SET is_deleted").
		WithArgs(sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/users/ghost", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
	if len(pub.published) != 0 {
		t.Error("no event may be published when nothing was deleted")
	}
}

func TestGetSummary(t *testing.T) {
	router, mock, closeDB := newTestRouter(t, &mockPublisher{})
	defer closeDB()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "active", "deleted"}).AddRow(10, 7, 2))
	mock.ExpectQuery("SELECT role, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"role", "count"}).
			AddRow("Employee", 6).AddRow("Manager", 2))
	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("Active", 7).AddRow("Suspended", 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/users/summary", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var summary models.UserSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if summary.TotalUsers != 10 || summary.ByRole["Employee"] != 6 || summary.ByStatus["Active"] != 7 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _, closeDB := newTestRouter(t, &mockPublisher{})
	defer closeDB()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
