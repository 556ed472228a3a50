package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lootbox-backend/internal/models"
	"lootbox-backend/internal/services"
)

type AuthHandler struct {
	redisService *services.RedisService
	jwtService   *services.JWTService
	logger       zerolog.Logger
}

func NewAuthHandler(redisService *services.RedisService, jwtService *services.JWTService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		redisService: redisService,
		jwtService:   jwtService,
		logger:       logger,
	}
}

type authRequest struct {
	Address string `json:"address" binding:"required"`
}

// Authenticate opens a session for a wallet address. Proving ownership of the
// address is left to the signer in front of this service.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	address, err := models.NormalizeAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid address",
			"details": err.Error(),
		})
		return
	}

	now := time.Now()
	session := &models.UserSession{
		Address:      address,
		SessionID:    models.GenerateSessionID(),
		CreatedAt:    now,
		LastAccessed: now,
	}

	if err := h.redisService.StoreUserSession(c.Request.Context(), session, h.jwtService.Expiry()); err != nil {
		h.logger.Error().Err(err).Str("owner", address).Msg("failed to store session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	token, err := h.jwtService.GenerateToken(address, session.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("owner", address).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"address":    address,
		"session_id": session.SessionID,
		"expires_in": int(h.jwtService.Expiry().Seconds()),
	})
}

type UserHandler struct {
	redisService *services.RedisService
	readModels   *services.ReadModels
}

func NewUserHandler(redisService *services.RedisService, readModels *services.ReadModels) *UserHandler {
	return &UserHandler{
		redisService: redisService,
		readModels:   readModels,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	address := c.GetString("address")
	sessionID := c.GetString("session_id")
	if address == "" || sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	session, err := h.redisService.GetUserSession(c.Request.Context(), address, sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	wallet := gin.H{"available": false}
	if bal, err := h.readModels.Balance(c.Request.Context(), address); err == nil {
		wallet = gin.H{
			"available": true,
			"mist":      bal.Mist,
			"sui":       bal.Sui,
			"display":   models.FormatSui(bal.Mist),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"address": session.Address,
		"session": gin.H{
			"session_id":    session.SessionID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"wallet": wallet,
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	address := c.GetString("address")
	sessionID := c.GetString("session_id")
	if address == "" || sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if err := h.redisService.DeleteUserSession(c.Request.Context(), address, sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
