package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/silentengine/silentengine/pkg/models"
)

// Tracker records and queries per-key usage.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// QueryByKey returns usage records for an API key since a given time, newest first.
	QueryByKey(ctx context.Context, apiKey string, since time.Time) ([]models.UsageRecord, error)
	// TotalByKey returns total tokens and cost for an API key since a given time.
	TotalByKey(ctx context.Context, apiKey string, since time.Time) (tokens int64, cost float64, err error)
	// Summary returns usage grouped by key and model since a given time,
	// optionally filtered by API key.
	Summary(ctx context.Context, apiKey string, since time.Time) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	api_key TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_key_time ON usage_records(api_key, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	// Columns added after the first release.
	for _, col := range []struct{ name, ddl string }{
		{"task_type", `ALTER TABLE usage_records ADD COLUMN task_type TEXT NOT NULL DEFAULT 'general'`},
		{"cost", `ALTER TABLE usage_records ADD COLUMN cost REAL NOT NULL DEFAULT 0`},
	} {
		if columnExists(db, "usage_records", col.name) {
			continue
		}
		if _, err := db.Exec(col.ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("add %s column: %w", col.name, err)
		}
	}

	return &SQLiteTracker{db: db}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Record stores a usage record.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (api_key, provider, model, task_type, input_tokens, output_tokens, total_tokens, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.APIKey, rec.Provider, rec.Model, string(rec.TaskType.OrDefault()),
		rec.InputTokens, rec.OutputTokens, rec.TotalTokens, rec.Cost, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// QueryByKey returns usage records for an API key since a given time.
func (t *SQLiteTracker) QueryByKey(ctx context.Context, apiKey string, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, api_key, provider, model, task_type, input_tokens, output_tokens, total_tokens, cost, created_at
		 FROM usage_records WHERE api_key = ? AND created_at >= ? ORDER BY created_at DESC, id DESC`,
		apiKey, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		var task string
		if err := rows.Scan(&r.ID, &r.APIKey, &r.Provider, &r.Model, &task, &r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.Cost, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		r.TaskType = models.TaskType(task)
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalByKey returns total tokens and cost used by an API key since a given time.
func (t *SQLiteTracker) TotalByKey(ctx context.Context, apiKey string, since time.Time) (int64, float64, error) {
	var tokens int64
	var cost float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0) FROM usage_records WHERE api_key = ? AND created_at >= ?`,
		apiKey, since,
	).Scan(&tokens, &cost)
	if err != nil {
		return 0, 0, fmt.Errorf("total usage: %w", err)
	}
	return tokens, cost, nil
}

// Summary returns aggregated usage grouped by API key and model.
func (t *SQLiteTracker) Summary(ctx context.Context, apiKey string, since time.Time) ([]models.UsageSummary, error) {
	query := `SELECT api_key, model, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(cost)
		 FROM usage_records WHERE created_at >= ?`
	args := []any{since}
	if apiKey != "" {
		query += ` AND api_key = ?`
		args = append(args, apiKey)
	}
	query += ` GROUP BY api_key, model ORDER BY api_key, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.APIKey, &s.Model, &s.RequestCount, &s.TotalInput, &s.TotalOutput, &s.TotalTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
