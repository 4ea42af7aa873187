package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"npcforge/internal/generation"
	"npcforge/internal/ledger"
	"npcforge/internal/middleware"
)

func newGenerationRouter(t *testing.T, providerContent string, providerStatus int, balance float64) (*gin.Engine, *ledger.MemoryLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if providerStatus != http.StatusOK {
			w.WriteHeader(providerStatus)
			return
		}
		json.NewEncoder(w).Encode(generation.ChatResponse{
			Choices: []generation.ChatChoice{{Message: generation.Message{Role: "assistant", Content: providerContent}}},
		})
	}))
	t.Cleanup(provider.Close)

	l := ledger.NewMemoryLedger()
	l.Seed("user_1", balance)

	orchestrator := generation.NewOrchestrator(
		l,
		generation.NewChatClient(provider.URL, "test-key"),
		"test-model",
		5*time.Second,
		zap.NewNop(),
	)
	h := NewGenerationHandler(orchestrator, zap.NewNop())

	r := gin.New()
	r.POST("/api/generate", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "user_1")
	}, h.GenerateNPC)
	return r, l
}

func postGenerate(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateEndpointSuccess(t *testing.T) {
	r, l := newGenerationRouter(t, `{"npcDescription": "A grim ferryman."}`, http.StatusOK, 5)

	w := postGenerate(r, `{"npcName": "Ferryman", "challenge": 2, "npcDescription": "works the river"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var details generation.Details
	if err := json.Unmarshal(w.Body.Bytes(), &details); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if details.NPCDescription != "A grim ferryman." {
		t.Errorf("unexpected description %q", details.NPCDescription)
	}
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 4 {
		t.Errorf("expected one token consumed, balance %v", balance)
	}
}

func TestGenerateEndpointValidation(t *testing.T) {
	r, l := newGenerationRouter(t, `{"npcDescription": "d"}`, http.StatusOK, 5)

	w := postGenerate(r, `{"npcName": "", "challenge": 3, "npcDescription": "x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 5 {
		t.Errorf("validation failure must not consume tokens, balance %v", balance)
	}
}

func TestGenerateEndpointInsufficientTokens(t *testing.T) {
	r, _ := newGenerationRouter(t, `{"npcDescription": "d"}`, http.StatusOK, 0)

	w := postGenerate(r, `{"npcName": "Ferryman", "challenge": 2, "npcDescription": "works the river"}`)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", w.Code)
	}
}

func TestGenerateEndpointParseFailure(t *testing.T) {
	r, l := newGenerationRouter(t, `{}`, http.StatusOK, 5)

	w := postGenerate(r, `{"npcName": "Ferryman", "challenge": 2, "npcDescription": "works the river"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	// The failed attempt stays charged.
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 4 {
		t.Errorf("expected token kept consumed, balance %v", balance)
	}
}

func TestGenerateEndpointProviderDown(t *testing.T) {
	r, _ := newGenerationRouter(t, "", http.StatusInternalServerError, 5)

	w := postGenerate(r, `{"npcName": "Ferryman", "challenge": 2, "npcDescription": "works the river"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}
