package store

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "insights: retrievable units with serialized token sets",
		SQL: `
CREATE TABLE insights (
    id             TEXT PRIMARY KEY,
    content        TEXT NOT NULL CHECK (length(trim(content)) > 0),

    -- token sets, "|a|b|" form, "" when empty
    entities       TEXT NOT NULL DEFAULT '',
    themes         TEXT NOT NULL DEFAULT '',

    created_at     INTEGER NOT NULL, -- unix nanoseconds
    effectiveness  REAL NOT NULL DEFAULT 0.5 CHECK (effectiveness >= 0.0 AND effectiveness <= 1.0),
    growth_stage   TEXT NOT NULL DEFAULT 'foundational' CHECK (growth_stage IN ('foundational', 'evolved', 'superseded')),
    layer          TEXT NOT NULL DEFAULT 'surface' CHECK (layer IN ('surface', 'mid', 'deep')),
    insight_type   TEXT NOT NULL DEFAULT 'observation' CHECK (insight_type IN ('anchor', 'breakthrough', 'strategy', 'observation')),

    -- supersession chain
    supersedes     TEXT NOT NULL DEFAULT '[]', -- JSON array of ids
    superseded_by  TEXT,

    -- provenance
    source         TEXT NOT NULL DEFAULT '',
    context        TEXT NOT NULL DEFAULT '',
    updated_at     INTEGER NOT NULL,

    FOREIGN KEY (superseded_by) REFERENCES insights(id)
);

CREATE INDEX idx_insights_rank ON insights(effectiveness DESC, created_at DESC);
CREATE INDEX idx_insights_type ON insights(insight_type);
`,
	},
	{
		Version:     2,
		Description: "insight_entities: exact-membership index over entity sets",
		SQL: `
CREATE TABLE insight_entities (
    entity     TEXT NOT NULL,
    insight_id TEXT NOT NULL,
    PRIMARY KEY (entity, insight_id),
    FOREIGN KEY (insight_id) REFERENCES insights(id) ON DELETE CASCADE
) WITHOUT ROWID;

CREATE INDEX idx_insight_entities_insight ON insight_entities(insight_id);
`,
	},
	{
		Version:     3,
		Description: "insight_themes: exact-membership index over theme sets",
		SQL: `
CREATE TABLE insight_themes (
    theme      TEXT NOT NULL,
    insight_id TEXT NOT NULL,
    PRIMARY KEY (theme, insight_id),
    FOREIGN KEY (insight_id) REFERENCES insights(id) ON DELETE CASCADE
) WITHOUT ROWID;

CREATE INDEX idx_insight_themes_insight ON insight_themes(insight_id);
`,
	},
}

// migrate brings the schema up to date. Each version is checked and applied
// inside its own write transaction, so concurrent openers of the same file
// serialize and the second one finds the work already done.
func migrate(ctx context.Context, c *Conn) error {
	_, err := c.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		if err := applyMigration(ctx, c, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, c *Conn, m migration) error {
	tx, err := c.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
		return fmt.Errorf("check migration %d: %w", m.Version, err)
	}
	if count > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_versions (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.pool.WithConn(ctx, func(c *Conn) error {
		return c.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	})
	return version, err
}
