package tracker

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/silentengine/silentengine/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func usage(key, model string, in, out int, cost float64, at time.Time) models.UsageRecord {
	return models.UsageRecord{
		APIKey: key, Provider: "groq", Model: model, TaskType: models.TaskCode,
		InputTokens: in, OutputTokens: out, TotalTokens: in + out,
		Cost: cost, CreatedAt: at,
	}
}

func TestRecordAndQuery(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := tr.Record(ctx, usage("key1", "llama-3.1-70b", 100, 50, 0.01, now)); err != nil {
		t.Fatal(err)
	}

	records, err := tr.QueryByKey(ctx, "key1", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.TotalTokens != 150 || r.TaskType != models.TaskCode || r.Provider != "groq" {
		t.Errorf("unexpected record: %+v", r)
	}
	if math.Abs(r.Cost-0.01) > 1e-9 {
		t.Errorf("expected cost 0.01, got %f", r.Cost)
	}
}

func TestEmptyTaskTypeStoredAsGeneral(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := usage("key1", "m", 1, 1, 0, now)
	rec.TaskType = ""
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	records, err := tr.QueryByKey(ctx, "key1", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if records[0].TaskType != models.TaskGeneral {
		t.Errorf("expected general, got %q", records[0].TaskType)
	}
}

func TestTotalByKey(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 3 {
		_ = tr.Record(ctx, usage("key1", "m", 100, 50, 0.5, now.Add(time.Duration(i)*time.Second)))
	}
	_ = tr.Record(ctx, usage("key1", "m", 100, 50, 0.5, now.Add(-time.Hour)))

	tokens, cost, err := tr.TotalByKey(ctx, "key1", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if tokens != 450 {
		t.Errorf("expected 450, got %d", tokens)
	}
	if math.Abs(cost-1.5) > 1e-9 {
		t.Errorf("expected 1.5, got %f", cost)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Record(ctx, usage("key1", "gpt-4o", 100, 50, 0.1, now))
	_ = tr.Record(ctx, usage("key1", "gpt-4o", 200, 100, 0.2, now))
	_ = tr.Record(ctx, usage("key2", "llama-3.1-70b", 10, 5, 0, now))

	all, err := tr.Summary(ctx, "", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(all))
	}
	s := all[0]
	if s.APIKey != "key1" || s.RequestCount != 2 || s.TotalInput != 300 || s.TotalOutput != 150 || s.TotalTokens != 450 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if math.Abs(s.TotalCost-0.3) > 1e-9 {
		t.Errorf("expected cost 0.3, got %f", s.TotalCost)
	}

	filtered, err := tr.Summary(ctx, "key2", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Model != "llama-3.1-70b" {
		t.Errorf("unexpected filtered summary: %+v", filtered)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	tr1, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = tr1.Close()

	tr2, err := New(dbPath)
	if err != nil {
		t.Fatal("second New() failed:", err)
	}
	_ = tr2.Close()
}

func TestMigrationAddsColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(createTable); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	for _, col := range []string{"task_type", "cost"} {
		if !columnExists(tr.db, "usage_records", col) {
			t.Errorf("column %s missing after migration", col)
		}
	}
}
