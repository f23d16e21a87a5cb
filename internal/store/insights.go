package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/insight"
)

const insightColumns = `i.id, i.content, i.entities, i.themes, i.created_at, i.effectiveness,
	i.growth_stage, i.layer, i.insight_type, i.supersedes, i.superseded_by, i.source, i.context`

// rankOrder is the order lookups return: most effective first, then newest.
const rankOrder = `ORDER BY i.effectiveness DESC, i.created_at DESC, i.id ASC`

// EntityStat summarizes the insights filed under one entity.
type EntityStat struct {
	Entity string    `json:"entity"`
	Count  int       `json:"count"`
	Latest time.Time `json:"latest"`
}

// InsertOrReplace stores in under its id, replacing any previous record
// with that id. Replacement overwrites every field, created_at included.
// The insight row and its membership rows change in one transaction.
func (s *Store) InsertOrReplace(ctx context.Context, in insight.Insight) error {
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertInsight(ctx, tx, &in)
	})
	if err != nil {
		return errs.Storage("insert_or_replace", err)
	}
	return nil
}

func upsertInsight(ctx context.Context, tx *sql.Tx, in *insight.Insight) error {
	supersedes, err := json.Marshal(nonNil(in.Supersedes))
	if err != nil {
		return fmt.Errorf("marshal supersedes: %w", err)
	}
	var supersededBy sql.NullString
	if in.SupersededBy != "" {
		supersededBy = sql.NullString{String: in.SupersededBy, Valid: true}
	}

	now := time.Now().UnixNano()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO insights (id, content, entities, themes, created_at, effectiveness,
			growth_stage, layer, insight_type, supersedes, superseded_by, source, context, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content       = excluded.content,
			entities      = excluded.entities,
			themes        = excluded.themes,
			created_at    = excluded.created_at,
			effectiveness = excluded.effectiveness,
			growth_stage  = excluded.growth_stage,
			layer         = excluded.layer,
			insight_type  = excluded.insight_type,
			supersedes    = excluded.supersedes,
			superseded_by = excluded.superseded_by,
			source        = excluded.source,
			context       = excluded.context,
			updated_at    = excluded.updated_at
	`, in.ID, in.Content, in.Entities.Encode(), in.Themes.Encode(), in.Timestamp.UnixNano(),
		in.Effectiveness, string(in.GrowthStage), string(in.Layer), string(in.Type),
		string(supersedes), supersededBy, in.Source, in.Context, now)
	if err != nil {
		return fmt.Errorf("upsert insight %s: %w", in.ID, err)
	}

	if err := replaceMembers(ctx, tx, "insight_entities", "entity", in.ID, in.Entities); err != nil {
		return err
	}
	return replaceMembers(ctx, tx, "insight_themes", "theme", in.ID, in.Themes)
}

func replaceMembers(ctx context.Context, tx *sql.Tx, table, column, id string, set insight.Set) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE insight_id = ?", id); err != nil {
		return fmt.Errorf("clear %s for %s: %w", table, id, err)
	}
	for _, tok := range insight.NewSet(set...) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" ("+column+", insight_id) VALUES (?, ?)", tok, id,
		); err != nil {
			return fmt.Errorf("index %s %q for %s: %w", column, tok, id, err)
		}
	}
	return nil
}

// LookupByEntity returns every insight tagged with the canonical entity
// name, most effective first and newest among equals. No match is an empty
// result, not an error.
func (s *Store) LookupByEntity(ctx context.Context, entity string) ([]insight.Insight, error) {
	return s.queryInsights(ctx, "lookup_by_entity", `
		SELECT `+insightColumns+`
		FROM insight_entities e
		JOIN insights i ON i.id = e.insight_id
		WHERE e.entity = ?
		`+rankOrder, entity)
}

// LookupByTheme is LookupByEntity over the theme set.
func (s *Store) LookupByTheme(ctx context.Context, theme string) ([]insight.Insight, error) {
	return s.queryInsights(ctx, "lookup_by_theme", `
		SELECT `+insightColumns+`
		FROM insight_themes t
		JOIN insights i ON i.id = t.insight_id
		WHERE t.theme = ?
		`+rankOrder, theme)
}

// Recent returns the newest insights, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]insight.Insight, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryInsights(ctx, "recent", `
		SELECT `+insightColumns+`
		FROM insights i
		ORDER BY i.created_at DESC, i.id ASC
		LIMIT ?`, limit)
}

// Get returns the insight with the given id, or nil if there is none.
func (s *Store) Get(ctx context.Context, id string) (*insight.Insight, error) {
	list, err := s.queryInsights(ctx, "get", `
		SELECT `+insightColumns+`
		FROM insights i
		WHERE i.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// Count returns the number of stored insights.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.WithConn(ctx, func(c *Conn) error {
		return c.QueryRowContext(ctx, "SELECT COUNT(*) FROM insights").Scan(&n)
	})
	if err != nil {
		return 0, errs.Storage("count", err)
	}
	return n, nil
}

// EntityStats returns per-entity counts and the newest timestamp, ordered
// by entity name.
func (s *Store) EntityStats(ctx context.Context) ([]EntityStat, error) {
	var stats []EntityStat
	err := s.pool.WithConn(ctx, func(c *Conn) error {
		rows, err := c.QueryContext(ctx, `
			SELECT e.entity, COUNT(*), MAX(i.created_at)
			FROM insight_entities e
			JOIN insights i ON i.id = e.insight_id
			GROUP BY e.entity
			ORDER BY e.entity`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var st EntityStat
			var latest int64
			if err := rows.Scan(&st.Entity, &st.Count, &latest); err != nil {
				return err
			}
			st.Latest = time.Unix(0, latest).UTC()
			stats = append(stats, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errs.Storage("entity_stats", err)
	}
	return stats, nil
}

// Supersede stores replacement and marks oldID as replaced by it, in one
// transaction. A missing oldID is a NotFound error and nothing is written.
func (s *Store) Supersede(ctx context.Context, oldID string, replacement insight.Insight) error {
	err := s.pool.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM insights WHERE id = ?", oldID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check %s: %w", oldID, err)
		}
		if exists == 0 {
			return errs.NotFound("supersede", oldID)
		}

		if err := upsertInsight(ctx, tx, &replacement); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE insights
			SET superseded_by = ?, growth_stage = ?, updated_at = ?
			WHERE id = ?`,
			replacement.ID, string(insight.StageSuperseded), time.Now().UnixNano(), oldID)
		if err != nil {
			return fmt.Errorf("mark %s superseded: %w", oldID, err)
		}
		return nil
	})
	if err != nil {
		return errs.Storage("supersede", err)
	}
	return nil
}

func (s *Store) queryInsights(ctx context.Context, op, query string, args ...any) ([]insight.Insight, error) {
	var out []insight.Insight
	err := s.pool.WithConn(ctx, func(c *Conn) error {
		rows, err := c.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanInsights(rows)
		return err
	})
	if err != nil {
		return nil, errs.Storage(op, err)
	}
	return out, nil
}

func scanInsights(rows *sql.Rows) ([]insight.Insight, error) {
	var list []insight.Insight
	for rows.Next() {
		var in insight.Insight
		var entities, themes, supersedes, stage, layer, typ string
		var createdAt int64
		var supersededBy sql.NullString
		if err := rows.Scan(&in.ID, &in.Content, &entities, &themes, &createdAt, &in.Effectiveness,
			&stage, &layer, &typ, &supersedes, &supersededBy, &in.Source, &in.Context); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}

		in.Entities = insight.DecodeSet(entities)
		in.Themes = insight.DecodeSet(themes)
		in.Timestamp = time.Unix(0, createdAt).UTC()
		in.GrowthStage = insight.GrowthStage(stage)
		in.Layer = insight.Layer(layer)
		in.Type = insight.Type(typ)
		in.SupersededBy = supersededBy.String

		if err := json.Unmarshal([]byte(supersedes), &in.Supersedes); err != nil {
			return nil, fmt.Errorf("decode supersedes for %s: %w", in.ID, err)
		}
		if len(in.Supersedes) == 0 {
			in.Supersedes = nil
		}
		list = append(list, in)
	}
	return list, rows.Err()
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
