package search

import (
	"context"

	"github.com/jmoiron/sqlx"

	"npcforge/internal/models"
)

// PostgresIndex backs the search stages with Postgres full-text
// queries over the npcs table.
type PostgresIndex struct {
	db *sqlx.DB
}

func NewPostgresIndex(db *sqlx.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

func (i *PostgresIndex) ByAuthor(ctx context.Context, term string, limit int) ([]models.NPC, error) {
	return i.stage(ctx, "author", term, limit)
}

func (i *PostgresIndex) ByName(ctx context.Context, term string, limit int) ([]models.NPC, error) {
	return i.stage(ctx, "npc_name", term, limit)
}

func (i *PostgresIndex) ByDescription(ctx context.Context, term string, limit int) ([]models.NPC, error) {
	return i.stage(ctx, "npc_description", term, limit)
}

func (i *PostgresIndex) Latest(ctx context.Context) ([]models.NPC, error) {
	npcs := []models.NPC{}
	err := i.db.SelectContext(ctx, &npcs, `SELECT * FROM npcs ORDER BY created_at DESC`)
	return npcs, err
}

// stage runs one scoped full-text query. The column name comes from a
// fixed set above, never from user input.
func (i *PostgresIndex) stage(ctx context.Context, column, term string, limit int) ([]models.NPC, error) {
	npcs := []models.NPC{}
	query := `SELECT * FROM npcs
	          WHERE to_tsvector('english', ` + column + `) @@ websearch_to_tsquery('english', $1)
	          ORDER BY ts_rank(to_tsvector('english', ` + column + `), websearch_to_tsquery('english', $1)) DESC
	          LIMIT $2`
	err := i.db.SelectContext(ctx, &npcs, query, term, limit)
	return npcs, err
}
