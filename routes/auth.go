package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sql-rag-platform/internal/config"
	"sql-rag-platform/middleware"
	"sql-rag-platform/models"
	"sql-rag-platform/utils"
)

type AuthHandler struct {
	config *config.Config
	users  *models.UserStore
	audit  *models.AuditLogger
}

func NewAuthHandler(cfg *config.Config, users *models.UserStore, audit *models.AuditLogger) *AuthHandler {
	return &AuthHandler{config: cfg, users: users, audit: audit}
}

func (h *AuthHandler) Register(rg *gin.RouterGroup, auth *middleware.AuthMiddleware, roles *middleware.RoleMiddleware) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/register", auth.RequireAuth(), roles.AdminGuard(), h.CreateUser)
	rg.GET("/auth/me", auth.RequireAuth(), h.Me)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid login request", err.Error())
		return
	}

	user, err := h.users.FindByUsername(c.Request.Context(), req.Username)
	if err != nil || !utils.CheckPassword(req.Password, user.PasswordHash) {
		utils.RespondWithUnauthorized(c, "Invalid username or password")
		return
	}

	expiresIn, err := time.ParseDuration(h.config.JWTExpiresIn)
	if err != nil {
		expiresIn = 24 * time.Hour
	}
	token, err := utils.GenerateJWT(user.ID.Hex(), user.Username, user.Role, h.config.JWTSecret, expiresIn)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to issue token", nil)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(expiresIn),
		Username:  user.Username,
		Role:      user.Role,
	})
}

func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,min=3,max=50"`
		Name     string `json:"name"`
		Password string `json:"password" binding:"required,min=8"`
		Role     string `json:"role" binding:"omitempty,oneof=admin user"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid user payload", err.Error())
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	hash, err := utils.HashPassword(req.Password, h.config.BcryptCost)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to hash password", nil)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		utils.RespondWithBadRequest(c, "Could not create user", err.Error())
		return
	}

	h.audit.Log(c.Request.Context(), middleware.GetUsername(c), "create", "users",
		map[string]any{"username": user.Username, "role": user.Role})

	c.JSON(http.StatusCreated, gin.H{"username": user.Username, "role": user.Role})
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id":  middleware.GetUserID(c),
		"username": middleware.GetUsername(c),
		"role":     middleware.GetRole(c),
	})
}
