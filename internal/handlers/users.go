package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"npcforge/internal/middleware"
	"npcforge/internal/models"
)

// StartingTokens is the balance granted on first sign-in.
const StartingTokens = 30

// UserHandler syncs accounts from the identity provider and serves
// profile reads.
type UserHandler struct {
	DB            *sqlx.DB
	WebhookSecret string
	Log           *zap.Logger
}

func NewUserHandler(db *sqlx.DB, webhookSecret string, log *zap.Logger) *UserHandler {
	return &UserHandler{DB: db, WebhookSecret: webhookSecret, Log: log}
}

// identityEvent is the payload the identity provider posts on account
// lifecycle changes.
type identityEvent struct {
	Type string `json:"type"`
	Data struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		ImageURL string `json:"image_url"`
	} `json:"data"`
}

// HandleIdentityWebhook processes signed user.created / user.updated /
// user.deleted events. The signature is HMAC-SHA256 over the raw body.
func (h *UserHandler) HandleIdentityWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read body"})
		return
	}

	if !verifySignature(payload, c.GetHeader("X-Identity-Signature"), h.WebhookSecret) {
		h.Log.Warn("identity webhook with bad signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var event identityEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}
	if event.Data.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event is missing the user id"})
		return
	}

	switch event.Type {
	case "user.created":
		err = h.createUser(event)
	case "user.updated":
		err = h.updateUser(event)
	case "user.deleted":
		err = h.deleteUser(event)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err != nil {
		h.Log.Error("identity sync failed",
			zap.String("type", event.Type),
			zap.String("user", event.Data.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *UserHandler) createUser(event identityEvent) error {
	query := `INSERT INTO users (clerk_id, name, email, image_url, tokens)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (clerk_id) DO NOTHING`
	_, err := h.DB.Exec(query,
		event.Data.ID, event.Data.Name, event.Data.Email, event.Data.ImageURL,
		float64(StartingTokens),
	)
	return err
}

// updateUser re-syncs the profile and the author fields denormalized
// onto the user's NPCs.
func (h *UserHandler) updateUser(event identityEvent) error {
	tx, err := h.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `UPDATE users SET name = $1, email = $2, image_url = $3, updated_at = NOW()
	          WHERE clerk_id = $4`
	if _, err := tx.Exec(query, event.Data.Name, event.Data.Email, event.Data.ImageURL, event.Data.ID); err != nil {
		return err
	}

	query = `UPDATE npcs SET author = $1, author_image_url = $2, updated_at = NOW()
	         WHERE author_id = $3`
	if _, err := tx.Exec(query, event.Data.Name, event.Data.ImageURL, event.Data.ID); err != nil {
		return err
	}

	return tx.Commit()
}

func (h *UserHandler) deleteUser(event identityEvent) error {
	_, err := h.DB.Exec(`DELETE FROM users WHERE clerk_id = $1`, event.Data.ID)
	return err
}

// GetMe returns the authenticated user's profile with balance.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var user models.User
	err := h.DB.Get(&user, `SELECT * FROM users WHERE clerk_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to load profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetUser returns a public profile by external id.
func (h *UserHandler) GetUser(c *gin.Context) {
	clerkID := c.Param("clerkId")

	var user models.User
	err := h.DB.Get(&user, `SELECT * FROM users WHERE clerk_id = $1`, clerkID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.JSON(http.StatusOK, user)
}

type topAuthor struct {
	models.User
	TotalNPCs int          `db:"total_npcs" json:"totalNPCs"`
	NPCs      []authorNPC  `db:"-" json:"npcs"`
}

type authorNPC struct {
	ID      int    `db:"id" json:"npcId"`
	NPCName string `db:"npc_name" json:"npcName"`
}

// GetTopAuthors ranks users by how many NPCs they have created; each
// entry carries the author's NPCs sorted by views.
func (h *UserHandler) GetTopAuthors(c *gin.Context) {
	authors := []topAuthor{}
	query := `SELECT u.*, COUNT(n.id) AS total_npcs
	          FROM users u
	          LEFT JOIN npcs n ON n.author_id = u.clerk_id
	          GROUP BY u.id
	          ORDER BY total_npcs DESC`
	if err := h.DB.Select(&authors, query); err != nil {
		h.Log.Error("failed to rank authors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	for i := range authors {
		npcs := []authorNPC{}
		query := `SELECT id, npc_name FROM npcs WHERE author_id = $1 ORDER BY views DESC, id ASC`
		if err := h.DB.Select(&npcs, query, authors[i].ClerkID); err != nil {
			h.Log.Error("failed to load author npcs", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
			return
		}
		authors[i].NPCs = npcs
	}

	c.JSON(http.StatusOK, authors)
}

func verifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
