package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"npcforge/internal/ledger"
)

// fakeProvider is an OpenAI-compatible endpoint that answers every
// completion request with the configured content.
type fakeProvider struct {
	server *httptest.Server
	calls  atomic.Int64

	status  int
	content string
}

func newFakeProvider(t *testing.T, status int, content string) *fakeProvider {
	t.Helper()
	p := &fakeProvider{status: status, content: content}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.calls.Add(1)
		if p.status != http.StatusOK {
			w.WriteHeader(p.status)
			return
		}
		resp := ChatResponse{
			Choices: []ChatChoice{{Message: Message{Role: "assistant", Content: p.content}}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func newTestOrchestrator(provider *fakeProvider, l ledger.Ledger) *Orchestrator {
	client := NewChatClient(provider.server.URL, "test-key")
	return NewOrchestrator(l, client, "test-model", 5*time.Second, nil)
}

func validBrief() Brief {
	return Brief{NPCName: "Grizzled Innkeeper", Challenge: 3, NPCDescription: "a retired soldier"}
}

func TestGenerateMissingFieldFailsBeforeAnySideEffect(t *testing.T) {
	cases := []struct {
		name  string
		brief Brief
	}{
		{"empty name", Brief{NPCName: "", Challenge: 3, NPCDescription: "x"}},
		{"zero challenge", Brief{NPCName: "x", Challenge: 0, NPCDescription: "x"}},
		{"empty description", Brief{NPCName: "x", Challenge: 3, NPCDescription: ""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := newFakeProvider(t, http.StatusOK, `{"npcDescription": "d"}`)
			l := ledger.NewMemoryLedger()
			l.Seed("user_1", 5)

			_, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", tc.brief)

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if n := provider.calls.Load(); n != 0 {
				t.Errorf("expected no provider call, got %d", n)
			}
			if balance, _ := l.Balance(context.Background(), "user_1"); balance != 5 {
				t.Errorf("expected no token consumed, balance %v", balance)
			}
		})
	}
}

func TestGenerateSuccessConsumesExactlyOneToken(t *testing.T) {
	content := `{"npcName": "Mira", "npcDescription": "A sharp-eyed scout.", "challenge": 3, "armorClass": 14, "hitPoints": 22, "speed": 30, "proficiencyBonus": 2, "str": 10, "dex": 16, "con": 12, "int": 11, "wis": 14, "cha": 9, "skills": [{"name": "Stealth", "description": "+5"}], "senses": [], "languages": [{"name": "Common"}], "specialTraits": [], "actions": []}`
	provider := newFakeProvider(t, http.StatusOK, content)
	l := ledger.NewMemoryLedger()
	l.Seed("user_1", 5)

	details, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", validBrief())
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if details.NPCDescription != "A sharp-eyed scout." {
		t.Errorf("unexpected description %q", details.NPCDescription)
	}
	if len(details.Skills) != 1 || details.Skills[0].Name != "Stealth" {
		t.Errorf("unexpected skills %+v", details.Skills)
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("expected exactly one provider call, got %d", n)
	}
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 4 {
		t.Errorf("expected exactly one token consumed, balance %v", balance)
	}
}

func TestGenerateMinimalResponseStillSucceeds(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `{"npcDescription": "Just a description."}`)
	l := ledger.NewMemoryLedger()
	l.Seed("user_1", 1)

	details, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", validBrief())
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if details.NPCDescription != "Just a description." {
		t.Errorf("unexpected description %q", details.NPCDescription)
	}
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 0 {
		t.Errorf("expected balance 0, got %v", balance)
	}
}

func TestGenerateMissingDescriptionIsParseErrorAndNoRefund(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `{}`)
	l := ledger.NewMemoryLedger()
	l.Seed("user_1", 5)

	_, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", validBrief())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	// The attempt is charged either way.
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 4 {
		t.Errorf("expected token kept consumed, balance %v", balance)
	}
}

func TestGenerateInvalidJSONIsParseError(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `not json at all`)
	l := ledger.NewMemoryLedger()
	l.Seed("user_1", 5)

	_, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", validBrief())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestGenerateInsufficientBalanceSkipsProvider(t *testing.T) {
	provider := newFakeProvider(t, http.StatusOK, `{"npcDescription": "d"}`)
	l := ledger.NewMemoryLedger()
	l.Seed("user_1", 0)

	_, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", validBrief())
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if n := provider.calls.Load(); n != 0 {
		t.Errorf("expected no provider call, got %d", n)
	}
}

func TestGenerateProviderFailureKeepsDebit(t *testing.T) {
	provider := newFakeProvider(t, http.StatusInternalServerError, "")
	l := ledger.NewMemoryLedger()
	l.Seed("user_1", 5)

	_, err := newTestOrchestrator(provider, l).Generate(context.Background(), "user_1", validBrief())
	if err == nil {
		t.Fatal("expected provider error")
	}
	if errors.Is(err, ErrParse) {
		t.Fatalf("provider failure should not be a parse error: %v", err)
	}
	if n := provider.calls.Load(); n != 1 {
		t.Errorf("expected exactly one provider call, got %d", n)
	}
	if balance, _ := l.Balance(context.Background(), "user_1"); balance != 4 {
		t.Errorf("expected token kept consumed, balance %v", balance)
	}
}
