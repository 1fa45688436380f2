package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ilm/backend/internal/agent"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200

	// Fixed-width so created_at sorts lexically in time order.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// Entry is one answered query. The log is diagnostics only; nothing in the
// pipeline reads it back.
type Entry struct {
	ID          string `json:"id"`
	Query       string `json:"query"`
	Language    string `json:"language"`
	Rewritten   string `json:"rewritten"`
	Invocations int    `json:"invocations"`
	Records     int    `json:"records"`
	Stage       string `json:"stage"`
	Methodology string `json:"methodology"`
	Staged      bool   `json:"staged"`
	Parallel    bool   `json:"parallel"`
	ElapsedMS   int64  `json:"elapsedMs"`
	CreatedAt   string `json:"createdAt"`
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) Store {
	return Store{db: db}
}

func (s Store) Record(ctx context.Context, query agent.Query, opts agent.RunOptions, resp agent.SystemResponse) (Entry, error) {
	entry := Entry{
		ID:          uuid.NewString(),
		Query:       query.Text,
		Language:    query.Language,
		Invocations: len(resp.Invocations),
		Records:     len(resp.Records),
		Stage:       string(resp.Stage),
		Methodology: resp.Answer.Methodology,
		Staged:      opts.Staged,
		Parallel:    opts.Parallel,
		ElapsedMS:   resp.Elapsed.Milliseconds(),
		CreatedAt:   time.Now().UTC().Format(timestampLayout),
	}
	if entry.Language == "" {
		entry.Language = agent.DefaultLanguage
	}
	if resp.Rewritten != nil {
		entry.Rewritten = resp.Rewritten.Rewritten
	}

	statement := `
INSERT INTO query_log (id, query_text, language, rewritten_query, invocations, records, stage, methodology, staged, parallel, elapsed_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	if _, err := s.db.ExecContext(ctx, statement,
		entry.ID,
		entry.Query,
		entry.Language,
		entry.Rewritten,
		entry.Invocations,
		entry.Records,
		entry.Stage,
		entry.Methodology,
		boolToInt(entry.Staged),
		boolToInt(entry.Parallel),
		entry.ElapsedMS,
		entry.CreatedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("insert query log entry: %w", err)
	}

	return entry, nil
}

func (s Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, query_text, language, rewritten_query, invocations, records, stage, methodology, staged, parallel, elapsed_ms, created_at
FROM query_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query log: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			entry    Entry
			staged   int
			parallel int
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Query,
			&entry.Language,
			&entry.Rewritten,
			&entry.Invocations,
			&entry.Records,
			&entry.Stage,
			&entry.Methodology,
			&staged,
			&parallel,
			&entry.ElapsedMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query log row: %w", err)
		}
		entry.Staged = staged != 0
		entry.Parallel = parallel != 0
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query log: %w", err)
	}
	return entries, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
