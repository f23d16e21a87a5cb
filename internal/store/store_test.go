package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/insight"
)

func testStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "recall.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sample(id string, entities ...string) insight.Insight {
	return insight.Insight{
		ID:            id,
		Content:       "content of " + id,
		Entities:      insight.NewSet(entities...),
		Themes:        insight.NewSet("trust"),
		Timestamp:     time.Date(2025, 8, 19, 10, 30, 0, 123456789, time.UTC),
		Effectiveness: 0.5,
		GrowthStage:   insight.StageFoundational,
		Layer:         insight.LayerSurface,
		Type:          insight.TypeObservation,
	}
}

func assertSameInsight(t *testing.T, want, got insight.Insight) {
	t.Helper()
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp: want %v got %v", want.Timestamp, got.Timestamp)
	want.Timestamp, got.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recall.db")
	ctx := context.Background()

	s, err := Open(ctx, path, Options{Size: 1})
	require.NoError(t, err)
	require.NoError(t, s.InsertOrReplace(ctx, sample("keep", "A")))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, Options{Size: 1})
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "reopening must not lose data")
}

func TestTablesExist(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	for _, table := range []string{"schema_versions", "insights", "insight_entities", "insight_themes"} {
		err := s.pool.WithConn(ctx, func(c *Conn) error {
			var name string
			return c.QueryRowContext(ctx,
				"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
			).Scan(&name)
		})
		assert.NoError(t, err, "table %q", table)
	}
}

func TestRoundTrip(t *testing.T) {
	s := testStore(t, Options{Size: 2})
	ctx := context.Background()

	prior := sample("prior", "A")
	require.NoError(t, s.InsertOrReplace(ctx, prior))

	in := insight.Insight{
		ID:            "3f2a",
		Content:       "His word is enough. Trusting A is a choice I keep making.",
		Entities:      insight.NewSet("trauma_responses", "A"),
		Themes:        insight.NewSet("trust", "relationships"),
		Timestamp:     time.Date(2025, 7, 28, 21, 4, 5, 987654321, time.UTC),
		Effectiveness: 0.85,
		GrowthStage:   insight.StageEvolved,
		Layer:         insight.LayerMid,
		Type:          insight.TypeAnchor,
		Supersedes:    []string{"prior"},
		Source:        "7-28.2-25.md",
		Context:       "segment 4",
	}
	require.NoError(t, s.InsertOrReplace(ctx, in))

	got, err := s.Get(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assertSameInsight(t, in, *got)

	byEntity, err := s.LookupByEntity(ctx, "trauma_responses")
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
	assertSameInsight(t, in, byEntity[0])
}

func TestGetMissing(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertOrReplaceSameID(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	first := sample("dup", "A", "N")
	first.Content = "first version"
	require.NoError(t, s.InsertOrReplace(ctx, first))

	second := sample("dup", "A")
	second.Content = "second version"
	second.Timestamp = first.Timestamp.Add(48 * time.Hour)
	require.NoError(t, s.InsertOrReplace(ctx, second))
	require.NoError(t, s.InsertOrReplace(ctx, second))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.LookupByEntity(ctx, "A")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second version", got[0].Content)
	assert.True(t, second.Timestamp.Equal(got[0].Timestamp), "created_at follows the replacement")

	gone, err := s.LookupByEntity(ctx, "N")
	require.NoError(t, err)
	assert.Empty(t, gone, "entity membership follows the replacement")
}

func TestReplaceWithEarlierTimestamp(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	require.NoError(t, s.InsertOrReplace(ctx, sample("dup", "A")))

	older := sample("dup", "A")
	older.Timestamp = time.Date(2024, 7, 15, 10, 30, 0, 123456789, time.UTC)
	require.NoError(t, s.InsertOrReplace(ctx, older))

	got, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	require.NotNil(t, got)
	assertSameInsight(t, older, *got)
}

func TestLookupByEntityOrdering(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := []struct {
		id    string
		score float64
		age   time.Duration
	}{
		{"low", 0.2, 0},
		{"high-old", 0.9, 72 * time.Hour},
		{"high-new", 0.9, 0},
		{"mid", 0.5, 24 * time.Hour},
	}
	for _, r := range rows {
		in := sample(r.id, "A")
		in.Effectiveness = r.score
		in.Timestamp = base.Add(-r.age)
		require.NoError(t, s.InsertOrReplace(ctx, in))
	}

	got, err := s.LookupByEntity(ctx, "A")
	require.NoError(t, err)
	var ids []string
	for _, in := range got {
		ids = append(ids, in.ID)
	}
	assert.Equal(t, []string{"high-new", "high-old", "mid", "low"}, ids)
}

func TestLookupMatchesWholeTokens(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	require.NoError(t, s.InsertOrReplace(ctx, sample("an", "AN")))
	require.NoError(t, s.InsertOrReplace(ctx, sample("n", "N")))

	got, err := s.LookupByEntity(ctx, "N")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n", got[0].ID)

	none, err := s.LookupByEntity(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLookupByTheme(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	in := sample("t1", "A")
	in.Themes = insight.NewSet("boundaries")
	require.NoError(t, s.InsertOrReplace(ctx, in))
	require.NoError(t, s.InsertOrReplace(ctx, sample("t2", "A")))

	got, err := s.LookupByTheme(ctx, "boundaries")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
}

func TestConstraintViolationIsStorageError(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	in := sample("orphan", "A")
	in.SupersededBy = "does-not-exist"
	err := s.InsertOrReplace(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStorage)

	bad := sample("bad-score", "A")
	bad.Effectiveness = 2
	assert.ErrorIs(t, s.InsertOrReplace(ctx, bad), errs.ErrStorage)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed writes leave nothing behind")
}

func TestSupersede(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	require.NoError(t, s.InsertOrReplace(ctx, sample("old", "A")))

	repl := sample("new", "A")
	repl.Supersedes = []string{"old"}
	repl.GrowthStage = insight.StageEvolved
	require.NoError(t, s.Supersede(ctx, "old", repl))

	old, err := s.Get(ctx, "old")
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, "new", old.SupersededBy)
	assert.Equal(t, insight.StageSuperseded, old.GrowthStage)
	assert.False(t, old.Current())

	err = s.Supersede(ctx, "missing", sample("newer", "A"))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	got, err := s.Get(ctx, "newer")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing is written when the old record is missing")
}

func TestEntityStatsAndRecent(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	ctx := context.Background()

	a1 := sample("a1", "A")
	a2 := sample("a2", "A", "N")
	a2.Timestamp = a1.Timestamp.Add(time.Hour)
	require.NoError(t, s.InsertOrReplace(ctx, a1))
	require.NoError(t, s.InsertOrReplace(ctx, a2))

	stats, err := s.EntityStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "A", stats[0].Entity)
	assert.Equal(t, 2, stats[0].Count)
	assert.True(t, a2.Timestamp.Equal(stats[0].Latest))
	assert.Equal(t, "N", stats[1].Entity)
	assert.Equal(t, 1, stats[1].Count)

	recent, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a2", recent[0].ID)
}

func TestConcurrentInsertsBeyondBurstCap(t *testing.T) {
	s := testStore(t, Options{Size: 2, BurstFactor: 2, AcquireTimeout: 30 * time.Second})
	ctx := context.Background()

	const n = 40 // well past the burst cap of 4
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errCh <- s.InsertOrReplace(ctx, sample(fmt.Sprintf("c-%02d", i), "A"))
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	got, err := s.LookupByEntity(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, got, n)

	stats := s.Pool().Stats()
	assert.LessOrEqual(t, stats.Open, stats.MaxOpen)
	assert.Equal(t, 0, stats.InUse)
}

func TestPing(t *testing.T) {
	s := testStore(t, Options{Size: 1})
	assert.NoError(t, s.Ping(context.Background()))
}
