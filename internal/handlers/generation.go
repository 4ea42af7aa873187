package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"npcforge/internal/generation"
	"npcforge/internal/ledger"
	"npcforge/internal/middleware"
)

// GenerationHandler is the HTTP face of the generation orchestrator.
type GenerationHandler struct {
	Orchestrator *generation.Orchestrator
	Log          *zap.Logger
}

func NewGenerationHandler(orchestrator *generation.Orchestrator, log *zap.Logger) *GenerationHandler {
	return &GenerationHandler{Orchestrator: orchestrator, Log: log}
}

// GenerateNPC runs one metered generation attempt for the
// authenticated user.
func (h *GenerationHandler) GenerateNPC(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var brief generation.Brief
	if err := c.ShouldBindJSON(&brief); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	details, err := h.Orchestrator.Generate(c.Request.Context(), userID, brief)
	if err != nil {
		var validationErr *generation.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Please fill in Name, Challenge Rating, and Description to generate NPC details"})
		case errors.Is(err, ledger.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient tokens, purchase more to keep generating"})
		case errors.Is(err, ledger.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, generation.ErrParse):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Error generating NPC details"})
		default:
			h.Log.Error("generation failed", zap.String("user", userID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Error generating NPC details"})
		}
		return
	}

	c.JSON(http.StatusOK, details)
}
