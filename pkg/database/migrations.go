package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These enable efficient search over entity names/content and shard content.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_entities_content_gin
		ON entities USING gin(to_tsvector('english', name || ' ' || COALESCE(content, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create entity content GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_shards_content_gin
		ON shards USING gin(to_tsvector('english', content))`)
	if err != nil {
		return fmt.Errorf("failed to create shard content GIN index: %w", err)
	}

	return nil
}
