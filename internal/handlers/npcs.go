package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"npcforge/internal/middleware"
	"npcforge/internal/models"
	"npcforge/internal/search"
	"npcforge/internal/storage"
)

// NPCHandler serves the NPC record CRUD surface plus search, trending
// and the view counter.
type NPCHandler struct {
	DB     *sqlx.DB
	Index  search.Index
	Images *storage.ImageStore
	Log    *zap.Logger
}

func NewNPCHandler(db *sqlx.DB, index search.Index, images *storage.ImageStore, log *zap.Logger) *NPCHandler {
	return &NPCHandler{DB: db, Index: index, Images: images, Log: log}
}

type CreateNPCRequest struct {
	NPCName          string           `json:"npcName" binding:"required"`
	NPCDescription   string           `json:"npcDescription" binding:"required"`
	Challenge        float64          `json:"challenge"`
	ArmorClass       int              `json:"armorClass" binding:"required"`
	HitPoints        int              `json:"hitPoints" binding:"required"`
	Speed            int              `json:"speed" binding:"required"`
	ProficiencyBonus int              `json:"proficiencyBonus" binding:"required"`
	Str              int              `json:"str" binding:"required"`
	Dex              int              `json:"dex" binding:"required"`
	Con              int              `json:"con" binding:"required"`
	Int              int              `json:"int" binding:"required"`
	Wis              int              `json:"wis" binding:"required"`
	Cha              int              `json:"cha" binding:"required"`
	Skills           models.TraitList `json:"skills"`
	Senses           models.TraitList `json:"senses"`
	Languages        models.TraitList `json:"languages"`
	SpecialTraits    models.TraitList `json:"specialTraits"`
	Actions          models.TraitList `json:"actions"`
	ImageURL         string           `json:"imageUrl"`
	ImageObjectKey   string           `json:"imageObjectKey"`
}

// CreateNPC persists a new record owned by the authenticated user,
// copying the author display fields from the user row.
func (h *NPCHandler) CreateNPC(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var req CreateNPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	var user models.User
	err := h.DB.Get(&user, `SELECT * FROM users WHERE clerk_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to load author", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	var npc models.NPC
	query := `INSERT INTO npcs
	            (npc_name, npc_description, challenge, armor_class, hit_points, speed,
	             proficiency_bonus, str, dex, con, int, wis, cha,
	             skills, senses, languages, special_traits, actions,
	             image_url, image_object_key, author, author_id, author_image_url, views)
	          VALUES
	            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	             $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, 0)
	          RETURNING *`
	err = h.DB.Get(&npc, query,
		req.NPCName, req.NPCDescription, req.Challenge, req.ArmorClass, req.HitPoints, req.Speed,
		req.ProficiencyBonus, req.Str, req.Dex, req.Con, req.Int, req.Wis, req.Cha,
		req.Skills, req.Senses, req.Languages, req.SpecialTraits, req.Actions,
		req.ImageURL, req.ImageObjectKey, user.Name, user.ClerkID, user.ImageURL,
	)
	if err != nil {
		h.Log.Error("failed to insert npc", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusCreated, npc)
}

// GetNPC returns one record by id.
func (h *NPCHandler) GetNPC(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("npcId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid NPC id"})
		return
	}

	var npc models.NPC
	err = h.DB.Get(&npc, `SELECT * FROM npcs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NPC not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to load npc", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, npc)
}

// ListNPCs returns every record newest first.
func (h *NPCHandler) ListNPCs(c *gin.Context) {
	npcs, err := h.Index.Latest(c.Request.Context())
	if err != nil {
		h.Log.Error("failed to list npcs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, npcs)
}

// SearchNPCs applies the author -> name -> description fallback chain.
func (h *NPCHandler) SearchNPCs(c *gin.Context) {
	npcs, err := search.Select(c.Request.Context(), h.Index, c.Query("q"))
	if err != nil {
		h.Log.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, npcs)
}

// TrendingNPCs lists records by view count, ties kept in storage order.
func (h *NPCHandler) TrendingNPCs(c *gin.Context) {
	npcs := []models.NPC{}
	if err := h.DB.Select(&npcs, `SELECT * FROM npcs ORDER BY id ASC`); err != nil {
		h.Log.Error("failed to load npcs for trending", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, search.Trending(npcs))
}

// GetNPCsByAuthor lists an author's records plus their combined view
// total.
func (h *NPCHandler) GetNPCsByAuthor(c *gin.Context) {
	authorID := c.Param("authorId")

	npcs := []models.NPC{}
	err := h.DB.Select(&npcs, `SELECT * FROM npcs WHERE author_id = $1 ORDER BY created_at DESC`, authorID)
	if err != nil {
		h.Log.Error("failed to load author npcs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	totalViews := 0
	for _, npc := range npcs {
		totalViews += npc.Views
	}
	c.JSON(http.StatusOK, gin.H{"npcs": npcs, "views": totalViews})
}

// IncrementViews bumps the view counter exactly once per detail-page
// visit. The counter only ever grows.
func (h *NPCHandler) IncrementViews(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("npcId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid NPC id"})
		return
	}

	var views int
	err = h.DB.Get(&views, `UPDATE npcs SET views = views + 1 WHERE id = $1 RETURNING views`, id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NPC not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to increment views", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"views": views})
}

// DeleteNPC removes an owned record and its stored portrait.
func (h *NPCHandler) DeleteNPC(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	id, err := strconv.Atoi(c.Param("npcId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid NPC id"})
		return
	}

	var npc models.NPC
	err = h.DB.Get(&npc, `SELECT * FROM npcs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NPC not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to load npc", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	if npc.AuthorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the author can delete this NPC"})
		return
	}

	if err := h.Images.Remove(npc.ImageObjectKey); err != nil {
		// The record still goes away; an orphaned object is the lesser
		// problem.
		h.Log.Warn("failed to remove portrait", zap.String("key", npc.ImageObjectKey), zap.Error(err))
	}

	if _, err := h.DB.Exec(`DELETE FROM npcs WHERE id = $1`, id); err != nil {
		h.Log.Error("failed to delete npc", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// UploadPortrait stores an uploaded image and returns its URL and
// object key for the subsequent create call.
func (h *NPCHandler) UploadPortrait(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image file"})
		return
	}
	defer file.Close()

	objectKey, publicURL, err := h.Images.Upload(header.Filename, file)
	if err != nil {
		h.Log.Error("portrait upload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imageUrl": publicURL, "imageObjectKey": objectKey})
}
