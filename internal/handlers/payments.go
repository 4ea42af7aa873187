package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"npcforge/internal/ledger"
	"npcforge/internal/middleware"
	"npcforge/internal/models"
	ws "npcforge/internal/websocket"
)

// ErrPaymentUnverified means the payment provider does not report the
// charge as succeeded, so no tokens are credited.
var ErrPaymentUnverified = errors.New("payment not verified by provider")

// IntentClient is the slice of the provider API the handler uses:
// create an intent, re-read its status.
type IntentClient interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// PaymentHandler sells token packs. A purchase row is created pending
// before the provider is contacted; tokens are credited only after the
// charge is verified server-side, by the signed webhook or by the
// confirm endpoint checking the intent status itself.
type PaymentHandler struct {
	DB            *sqlx.DB
	Ledger        ledger.TxLedger
	Intents       IntentClient
	Hub           *ws.Hub
	WebhookSecret string
	Log           *zap.Logger
}

func NewPaymentHandler(db *sqlx.DB, l ledger.TxLedger, stripeKey, webhookSecret string, hub *ws.Hub, log *zap.Logger) *PaymentHandler {
	sc := &client.API{}
	sc.Init(stripeKey, nil)

	return &PaymentHandler{
		DB:            db,
		Ledger:        l,
		Intents:       sc.PaymentIntents,
		Hub:           hub,
		WebhookSecret: webhookSecret,
		Log:           log,
	}
}

type CreateIntentRequest struct {
	AmountCents int64   `json:"amount" binding:"required,gt=0"`
	Currency    string  `json:"currency" binding:"required,len=3"`
	Tokens      float64 `json:"tokens" binding:"required,gt=0"`
}

// CreateIntent records a pending purchase, then creates the payment
// intent at the provider and returns the client secret the payment UI
// needs. The row goes in first so a crash between the two calls leaves
// a pending order we know about, never a paid charge we don't.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	orderID := "TOKENS-" + strconv.FormatInt(time.Now().Unix(), 10) + "-" + uuid.NewString()[:8]

	query := `INSERT INTO purchases (order_id, clerk_id, amount_cents, currency, tokens, status)
	          VALUES ($1, $2, $3, $4, $5, 'pending')`
	if _, err := h.DB.Exec(query, orderID, userID, req.AmountCents, req.Currency, req.Tokens); err != nil {
		h.Log.Error("failed to record pending purchase", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
	}
	params.AddMetadata("order_id", orderID)
	params.AddMetadata("clerk_id", userID)
	params.AddMetadata("tokens", strconv.FormatFloat(req.Tokens, 'f', -1, 64))

	intent, err := h.Intents.New(params)
	if err != nil {
		h.Log.Error("failed to create payment intent", zap.String("order", orderID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway error."})
		return
	}

	// Settlement keys off the order metadata, so a failure here only
	// costs the confirm endpoint its lookup id.
	_, err = h.DB.Exec(`UPDATE purchases SET payment_intent_id = $1, updated_at = NOW() WHERE order_id = $2`, intent.ID, orderID)
	if err != nil {
		h.Log.Warn("failed to attach intent to purchase", zap.String("order", orderID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"clientSecret": intent.ClientSecret,
		"orderId":      orderID,
	})
}

// HandleWebhook processes signed provider events. payment_intent.succeeded
// is the credit trigger; anything else is acknowledged and dropped.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read body"})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		h.Log.Warn("webhook with bad signature", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	if event.Type != "payment_intent.succeeded" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		h.Log.Error("failed to parse payment intent from event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		h.Log.Warn("succeeded intent without order metadata", zap.String("intent", intent.ID))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	credited, err := h.settle(c.Request.Context(), orderID)
	if err != nil {
		h.Log.Error("failed to settle purchase", zap.String("order", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	if !credited {
		c.JSON(http.StatusOK, gin.H{"status": "ok (duplicate)"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type ConfirmRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// Confirm lets the payment UI report completion, but the report is
// never trusted: the intent status is re-read from the provider before
// any credit. Racing the webhook is safe, the settle step credits at
// most once.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	var purchase models.Purchase
	err := h.DB.Get(&purchase, `SELECT * FROM purchases WHERE order_id = $1 AND clerk_id = $2`, req.OrderID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		return
	}
	if err != nil {
		h.Log.Error("failed to load purchase", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	intent, err := h.Intents.Get(purchase.PaymentIntentID, nil)
	if err != nil {
		h.Log.Error("failed to verify payment intent", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment gateway error."})
		return
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		h.Log.Warn("confirm for unsettled payment",
			zap.String("order", req.OrderID),
			zap.String("status", string(intent.Status)),
		)
		c.JSON(http.StatusConflict, gin.H{"error": ErrPaymentUnverified.Error()})
		return
	}

	credited, err := h.settle(c.Request.Context(), req.OrderID)
	if err != nil {
		h.Log.Error("failed to settle purchase", zap.String("order", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	if !credited {
		c.JSON(http.StatusOK, gin.H{"status": "ok (already settled)"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// settle flips the purchase from pending to settled and credits the
// tokens in one transaction. The conditional UPDATE is the dedupe:
// whichever of the webhook and the confirm call lands second changes
// no row and credits nothing. If the credit fails the flip rolls back
// with it, so a provider retry still finds the row pending.
func (h *PaymentHandler) settle(ctx context.Context, orderID string) (bool, error) {
	tx, err := h.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var purchase models.Purchase
	query := `UPDATE purchases SET status = 'settled', updated_at = NOW()
	          WHERE order_id = $1 AND status = 'pending'
	          RETURNING *`
	err = tx.GetContext(ctx, &purchase, query, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	balance, err := h.Ledger.CreditInTx(ctx, tx, purchase.ClerkID, purchase.Tokens, "purchase", orderID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	h.Log.Info("purchase settled",
		zap.String("order", orderID),
		zap.String("user", purchase.ClerkID),
		zap.Float64("tokens", purchase.Tokens),
	)

	h.Hub.BroadcastAlert <- ws.CreditAlert{
		TargetUserID: purchase.ClerkID,
		OrderID:      orderID,
		Tokens:       purchase.Tokens,
		Balance:      balance,
	}
	return true, nil
}
