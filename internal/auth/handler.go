package auth

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/middleware"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
)

// DefaultRole is assigned to every self-registered user.
const DefaultRole = "Employee"

// EventPublisher defines the interface for publishing domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event models.UserEvent) error
}

// RegisterRequest is the request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email" example:"jane@konecta.io"`
	FullName string `json:"full_name" binding:"required" example:"Jane Doe"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ValidateTokenRequest is the request body for token validation.
type ValidateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// Handler serves the authentication endpoints.
type Handler struct {
	DB        *sql.DB
	Publisher EventPublisher
	JWT       *JWTService
	Log       *zap.Logger
}

// NewHandler creates an auth Handler.
func NewHandler(db *sql.DB, pub EventPublisher, jwtSvc *JWTService, log *zap.Logger) *Handler {
	return &Handler{DB: db, Publisher: pub, JWT: jwtSvc, Log: log.Named("auth")}
}

// Register godoc
// @Summary      Register a new user
// @Description  Creates credentials and publishes a user.created event for downstream services
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      RegisterRequest  true  "Registration request"
// @Success      201      {object}  map[string]string
// @Failure      400      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var exists bool
	err := h.DB.QueryRow("SELECT EXISTS(SELECT 1 FROM credentials WHERE email = $1)", req.Email).Scan(&exists)
	if err != nil {
		h.Log.Error("failed to check existing email", zap.Error(err), zap.String("correlation_id", correlationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}
	if exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	userID := uuid.New().String()
	_, err = h.DB.Exec(
		"INSERT INTO credentials (user_id, email, full_name, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		userID, req.Email, req.FullName, string(hash), DefaultRole, time.Now().UTC(),
	)
	if err != nil {
		h.Log.Error("failed to insert credentials", zap.Error(err), zap.String("correlation_id", correlationID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	// The registration is committed; publication is best-effort from here on.
	// A broker outage delays directory/finance materialization but must not
	// fail the request.
	event := models.NewUserEvent(models.EventUserCreated, correlationID, models.UserPayload{
		ID:       userID,
		Email:    req.Email,
		FullName: req.FullName,
		Role:     DefaultRole,
	})
	if err := h.Publisher.Publish(c.Request.Context(), event); err != nil {
		h.Log.Error("user.created publish failed after commit",
			zap.String("event_id", event.EventID),
			zap.String("user_id", userID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}

	h.Log.Info("user registered",
		zap.String("user_id", userID),
		zap.String("email", req.Email),
		zap.String("correlation_id", correlationID))
	c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully", "user_id": userID})
}

// Login godoc
// @Summary      Log in
// @Description  Verifies credentials and issues a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Login request"
// @Success      200      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Router       /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID, hash, role string
	err := h.DB.QueryRow(
		"SELECT user_id, password_hash, role FROM credentials WHERE email = $1", req.Email,
	).Scan(&userID, &hash, &role)
	if err == sql.ErrNoRows {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log in"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := h.JWT.GenerateToken(userID, req.Email, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// ValidateToken godoc
// @Summary      Validate a token
// @Description  Checks a JWT and returns the subject email
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      ValidateTokenRequest  true  "Token to validate"
// @Success      200      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Router       /auth/validate-token [post]
func (h *Handler) ValidateToken(c *gin.Context) {
	var req ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := h.JWT.ValidateToken(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token is valid", "email": claims.Email})
}
