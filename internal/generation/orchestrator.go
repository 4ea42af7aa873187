// Package generation turns a partial NPC brief into a fully structured
// record via an external completion provider, metered by the token
// ledger.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"npcforge/internal/ledger"
	"npcforge/internal/models"
)

// ErrParse means the provider returned something that is not the
// requested JSON object, or the object is missing the description.
var ErrParse = errors.New("generation: malformed provider response")

// ValidationError reports a missing or empty required brief field. It
// is raised before any token is consumed or network call made.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "generation: required field " + e.Field + " is missing"
}

// Brief is the minimal user input needed to request a generation.
type Brief struct {
	NPCName        string  `json:"npcName"`
	Challenge      float64 `json:"challenge"`
	NPCDescription string  `json:"npcDescription"`
}

// Details is the structured object the provider must return, shaped
// for direct merge into an NPC record.
type Details struct {
	NPCName          string            `json:"npcName"`
	NPCDescription   string            `json:"npcDescription"`
	Challenge        float64           `json:"challenge"`
	ArmorClass       int               `json:"armorClass"`
	HitPoints        int               `json:"hitPoints"`
	Speed            int               `json:"speed"`
	ProficiencyBonus int               `json:"proficiencyBonus"`
	Str              int               `json:"str"`
	Dex              int               `json:"dex"`
	Con              int               `json:"con"`
	Int              int               `json:"int"`
	Wis              int               `json:"wis"`
	Cha              int               `json:"cha"`
	Skills           []models.Trait    `json:"skills"`
	Senses           []models.Trait    `json:"senses"`
	Languages        []models.Trait    `json:"languages"`
	SpecialTraits    []models.Trait    `json:"specialTraits"`
	Actions          []models.Trait    `json:"actions"`
}

const systemPrompt = `You are a helpful D&D Dungeon Master assistant. Provide the D&D 5e NPC details in JSON format.
The JSON object should have the following structure:

{
  "npcName": "string",
  "npcDescription": "string",
  "challenge": "number",
  "armorClass": "number",
  "hitPoints": "number",
  "speed": "number",
  "proficiencyBonus": "number",
  "str": "number",
  "dex": "number",
  "con": "number",
  "int": "number",
  "wis": "number",
  "cha": "number",
  "skills": [
    { "name": "string", "description": "string" }
  ],
  "senses": [
    { "name": "string", "description": "string" }
  ],
  "languages": [
    { "name": "string" }
  ],
  "specialTraits": [
    { "name": "string", "description": "string" }
  ],
  "actions": [
    { "name": "string", "description": "string" }
  ]
}

The 'npcDescription' field should be replaced with a new description composing of a 1 sentence title, and 2 to 4 paragraph background based on the input provided by the user.`

// Orchestrator runs the metered generation workflow: validate the
// brief, debit one token, call the provider once, parse the result.
// The debit is taken per attempt and is not rolled back when the
// provider call or parse fails.
type Orchestrator struct {
	ledger  ledger.Ledger
	client  *ChatClient
	model   string
	timeout time.Duration
	log     *zap.Logger
}

func NewOrchestrator(l ledger.Ledger, client *ChatClient, model string, timeout time.Duration, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{
		ledger:  l,
		client:  client,
		model:   model,
		timeout: timeout,
		log:     log,
	}
}

// GenerationCost is the token price of one generation attempt.
const GenerationCost = 1

// Generate runs one generation attempt for the given user. Exactly one
// token is consumed per attempt (success or provider failure) and at
// most one network call is made.
func (o *Orchestrator) Generate(ctx context.Context, userID string, brief Brief) (*Details, error) {
	if err := validate(brief); err != nil {
		return nil, err
	}

	balance, err := o.ledger.Consume(ctx, userID, GenerationCost, "generation", brief.NPCName)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(brief)
	if err != nil {
		return nil, fmt.Errorf("generation: encode brief: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(callCtx, ChatRequest{
		Model: o.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(input)},
		},
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		o.log.Warn("generation provider call failed",
			zap.String("user", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	details, err := parseDetails(resp)
	if err != nil {
		o.log.Warn("generation response rejected",
			zap.String("user", userID),
			zap.Error(err),
		)
		return nil, err
	}

	o.log.Info("npc details generated",
		zap.String("user", userID),
		zap.String("npc", details.NPCName),
		zap.Float64("balance", balance),
	)
	return details, nil
}

func validate(brief Brief) error {
	if brief.NPCName == "" {
		return &ValidationError{Field: "npcName"}
	}
	if brief.Challenge <= 0 {
		return &ValidationError{Field: "challenge"}
	}
	if brief.NPCDescription == "" {
		return &ValidationError{Field: "npcDescription"}
	}
	return nil
}

func parseDetails(resp *ChatResponse) (*Details, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: response content is empty", ErrParse)
	}
	var details Details
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &details); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrParse, err)
	}
	if details.NPCDescription == "" {
		return nil, fmt.Errorf("%w: npcDescription is missing", ErrParse)
	}
	return &details, nil
}
