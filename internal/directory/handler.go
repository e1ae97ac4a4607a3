package directory

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/middleware"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
)

// EventPublisher defines the interface for publishing domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event models.UserEvent) error
}

// Handler serves the user directory HTTP API.
type Handler struct {
	DB        *sql.DB
	Publisher EventPublisher
	Log       *zap.Logger
}

// NewHandler creates a directory Handler.
func NewHandler(db *sql.DB, pub EventPublisher, log *zap.Logger) *Handler {
	return &Handler{DB: db, Publisher: pub, Log: log.Named("directory-api")}
}

const userColumns = "id, email, full_name, role, status, COALESCE(department, ''), is_deleted, created_at, updated_at, deleted_at"

func scanUser(row interface{ Scan(...interface{}) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Status, &u.Department,
		&u.IsDeleted, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	return u, err
}

// GetUser godoc
// @Summary      Get a directory entry by ID
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  models.User
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	row := h.DB.QueryRow("SELECT "+userColumns+" FROM users WHERE id = $1", c.Param("id"))
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// ListUsers godoc
// @Summary      List directory entries
// @Description  Paged listing with role and free-text filters
// @Tags         users
// @Produce      json
// @Param        page             query     int     false  "Page (1-based)"
// @Param        page_size        query     int     false  "Page size"
// @Param        role             query     string  false  "Filter by role"
// @Param        search           query     string  false  "Match against email, name and department"
// @Param        include_deleted  query     bool    false  "Include soft-deleted entries"
// @Success      200  {object}  models.PagedUsers
// @Router       /users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	where := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if c.Query("include_deleted") != "true" {
		where = append(where, "is_deleted = FALSE")
	}
	if role := c.Query("role"); role != "" {
		where = append(where, "role = "+arg(role))
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		p := arg("%" + search + "%")
		where = append(where, fmt.Sprintf(
			"(email ILIKE %s OR full_name ILIKE %s OR COALESCE(department, '') ILIKE %s)", p, p, p))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := h.DB.QueryRow("SELECT COUNT(*) FROM users"+clause, args...).Scan(&total); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}

	query := "SELECT " + userColumns + " FROM users" + clause +
		" ORDER BY full_name, email" +
		" LIMIT " + arg(pageSize) + " OFFSET " + arg((page-1)*pageSize)

	rows, err := h.DB.Query(query, args...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			continue
		}
		users = append(users, u)
	}

	c.JSON(http.StatusOK, models.PagedUsers{
		Items:      users,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
	})
}

// UpdateUser godoc
// @Summary      Update a directory entry
// @Description  Updates directory fields and publishes a user.updated event
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "User ID"
// @Param        request  body      models.UpdateUserRequest  true  "Fields to update"
// @Success      200      {object}  models.User
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Router       /users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	userID := c.Param("id")

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	row := h.DB.QueryRow("SELECT "+userColumns+" FROM users WHERE id = $1 AND is_deleted = FALSE", userID)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}

	if req.Email != "" {
		user.Email = req.Email
	}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Role != "" {
		user.Role = req.Role
	}
	if req.Status != "" {
		user.Status = req.Status
	}
	if req.Department != "" {
		user.Department = req.Department
	}
	user.UpdatedAt = time.Now().UTC()

	_, err = h.DB.Exec(
		`UPDATE users SET email = $1, full_name = $2, role = $3, status = $4, department = NULLIF($5, ''), updated_at = $6
		 WHERE id = $7`,
		user.Email, user.FullName, user.Role, user.Status, user.Department, user.UpdatedAt, user.ID)
	if err != nil {
		h.Log.Error("failed to update user", zap.Error(err), zap.String("correlation_id", correlationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	// Best-effort after commit; finance and any other subscriber catch up
	// through the broker.
	event := models.NewUserEvent(models.EventUserUpdated, correlationID, models.UserPayload{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Role:       user.Role,
		Status:     user.Status,
		Department: user.Department,
	})
	if err := h.Publisher.Publish(c.Request.Context(), event); err != nil {
		h.Log.Error("user.updated publish failed after commit",
			zap.String("event_id", event.EventID),
			zap.String("user_id", user.ID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, user)
}

// DeleteUser godoc
// @Summary      Soft-delete a directory entry
// @Description  Marks the entry deleted and publishes a user.deleted event
// @Tags         users
// @Produce      json
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)
	userID := c.Param("id")

	now := time.Now().UTC()
	res, err := h.DB.Exec(
		"UPDATE users SET is_deleted = TRUE, status = 'Deleted', deleted_at = $1, updated_at = $1 WHERE id = $2 AND is_deleted = FALSE",
		now, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	event := models.NewUserEvent(models.EventUserDeleted, correlationID, models.UserPayload{ID: userID})
	if err := h.Publisher.Publish(c.Request.Context(), event); err != nil {
		h.Log.Error("user.deleted publish failed after commit",
			zap.String("event_id", event.EventID),
			zap.String("user_id", userID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// GetSummary godoc
// @Summary      Directory summary counts
// @Tags         users
// @Produce      json
// @Success      200  {object}  models.UserSummary
// @Router       /users/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	var summary models.UserSummary
	err := h.DB.QueryRow(
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE NOT is_deleted AND status = 'Active'),
		        COUNT(*) FILTER (WHERE is_deleted)
		 FROM users`,
	).Scan(&summary.TotalUsers, &summary.ActiveUsers, &summary.DeletedUsers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}

	summary.ByRole = map[string]int{}
	summary.ByStatus = map[string]int{}

	rows, err := h.DB.Query("SELECT role, COUNT(*) FROM users WHERE NOT is_deleted GROUP BY role")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err == nil {
			summary.ByRole[role] = count
		}
	}

	statusRows, err := h.DB.Query("SELECT status, COUNT(*) FROM users WHERE NOT is_deleted GROUP BY status")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var count int
		if err := statusRows.Scan(&status, &count); err == nil {
			summary.ByStatus[status] = count
		}
	}

	c.JSON(http.StatusOK, summary)
}
