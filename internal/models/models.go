package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// We use 'db' tags for sqlx to automatically map
// the database column names (snake_case) to our Go fields (CamelCase).

// User is an account synced from the external identity provider.
// ClerkID is the stable external identifier; Tokens is the generation
// balance governed by the ledger.
type User struct {
	ID        int       `db:"id" json:"id"`
	ClerkID   string    `db:"clerk_id" json:"clerk_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	ImageURL  string    `db:"image_url" json:"image_url"`
	Tokens    float64   `db:"tokens" json:"tokens"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Trait is one entry of an NPC sub-list (a skill, sense, language,
// special trait, or action).
type Trait struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TraitList persists as a JSONB array. Older rows carried the list as a
// JSON string (sometimes encoded twice), so Scan tries one parse and,
// if the column holds a JSON string, exactly one more.
type TraitList []Trait

func (t TraitList) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

func (t *TraitList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("traitlist: cannot scan %T", src)
	}
	if len(raw) == 0 {
		*t = nil
		return nil
	}
	if err := json.Unmarshal(raw, (*[]Trait)(t)); err == nil {
		return nil
	}
	// Legacy form: the column holds a JSON string whose contents are the
	// real list.
	var nested string
	if err := json.Unmarshal(raw, &nested); err != nil {
		return fmt.Errorf("traitlist: invalid JSON: %w", err)
	}
	return json.Unmarshal([]byte(nested), (*[]Trait)(t))
}

// NPC is the authored content entity. Author fields are denormalized
// from the User at creation time and re-synced on profile update.
type NPC struct {
	ID               int       `db:"id" json:"id"`
	NPCName          string    `db:"npc_name" json:"npcName"`
	NPCDescription   string    `db:"npc_description" json:"npcDescription"`
	Challenge        float64   `db:"challenge" json:"challenge"`
	ArmorClass       int       `db:"armor_class" json:"armorClass"`
	HitPoints        int       `db:"hit_points" json:"hitPoints"`
	Speed            int       `db:"speed" json:"speed"`
	ProficiencyBonus int       `db:"proficiency_bonus" json:"proficiencyBonus"`
	Str              int       `db:"str" json:"str"`
	Dex              int       `db:"dex" json:"dex"`
	Con              int       `db:"con" json:"con"`
	Int              int       `db:"int" json:"int"`
	Wis              int       `db:"wis" json:"wis"`
	Cha              int       `db:"cha" json:"cha"`
	Skills           TraitList `db:"skills" json:"skills,omitempty"`
	Senses           TraitList `db:"senses" json:"senses,omitempty"`
	Languages        TraitList `db:"languages" json:"languages,omitempty"`
	SpecialTraits    TraitList `db:"special_traits" json:"specialTraits,omitempty"`
	Actions          TraitList `db:"actions" json:"actions,omitempty"`
	ImageURL         string    `db:"image_url" json:"imageUrl"`
	ImageObjectKey   string    `db:"image_object_key" json:"-"`
	Author           string    `db:"author" json:"author"`
	AuthorID         string    `db:"author_id" json:"authorId"`
	AuthorImageURL   string    `db:"author_image_url" json:"authorImageUrl"`
	Views            int       `db:"views" json:"views"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Purchase is one token pack bought through the payment provider. The
// row is created pending and settled exactly once by a verified
// webhook or confirm call.
type Purchase struct {
	ID              int       `db:"id" json:"id"`
	OrderID         string    `db:"order_id" json:"order_id"`
	ClerkID         string    `db:"clerk_id" json:"clerk_id"`
	AmountCents     int64     `db:"amount_cents" json:"amount_cents"`
	Currency        string    `db:"currency" json:"currency"`
	Tokens          float64   `db:"tokens" json:"tokens"`
	PaymentIntentID string    `db:"payment_intent_id" json:"-"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TokenTransaction is one ledger entry. Delta is negative for debits.
type TokenTransaction struct {
	ID        int       `db:"id" json:"id"`
	ClerkID   string    `db:"clerk_id" json:"clerk_id"`
	Delta     float64   `db:"delta" json:"delta"`
	Balance   float64   `db:"balance" json:"balance"`
	Reason    string    `db:"reason" json:"reason"`
	Reference string    `db:"reference" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
