package llmcall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createCallsTable = `
CREATE TABLE IF NOT EXISTS llm_calls (
  id TEXT PRIMARY KEY,
  ts TIMESTAMPTZ NOT NULL,
  latency_ms INTEGER NOT NULL DEFAULT 0,
  operation TEXT,
  template TEXT,
  class TEXT,
  prompt_key TEXT,
  prompt_cid TEXT,
  provider TEXT NOT NULL,
  model TEXT,
  temperature DOUBLE PRECISION,
  input_tokens INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  response TEXT,
  cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
  success BOOLEAN NOT NULL,
  error TEXT
)`

const callColumns = `id, ts, latency_ms, COALESCE(operation,''), COALESCE(template,''), COALESCE(class,''),
  COALESCE(prompt_key,''), COALESCE(prompt_cid,''), provider, COALESCE(model,''), temperature,
  input_tokens, output_tokens, cost_usd, COALESCE(response,''), cache_hit, success, COALESCE(error,'')`

// PostgresSink keeps the call audit trail in Postgres.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and creates the llm_calls table.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createCallsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create llm_calls table: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, c *Call) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO llm_calls(id, ts, latency_ms, operation, template, class, prompt_key, prompt_cid,
  provider, model, temperature, input_tokens, output_tokens, cost_usd, response, cache_hit, success, error)
VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''),
  $9, NULLIF($10,''), $11, $12, $13, $14, $15, $16, $17, NULLIF($18,''))`,
		c.ID, c.Timestamp, c.LatencyMs, c.Operation, c.Template, c.Class, c.PromptKey, c.PromptCID,
		c.Provider, c.Model, c.Temperature, c.InputTokens, c.OutputTokens, c.CostUSD, c.Response, c.CacheHit, c.Success, c.Error)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	Operation string
	Template  string
	Class     string
	PromptKey string
	Provider  string
	Model     string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// buildListQuery renders filter as a parameterised SELECT.
func buildListQuery(filter QueryFilter) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Operation != "" {
		add("operation = $%d", filter.Operation)
	}
	if filter.Template != "" {
		add("template = $%d", filter.Template)
	}
	if filter.Class != "" {
		add("class = $%d", filter.Class)
	}
	if filter.PromptKey != "" {
		add("prompt_key = $%d", filter.PromptKey)
	}
	if filter.Provider != "" {
		add("provider = $%d", filter.Provider)
	}
	if filter.Model != "" {
		add("model = $%d", filter.Model)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if filter.After != nil {
		add("ts > $%d", *filter.After)
	}
	if filter.Before != nil {
		add("ts < $%d", *filter.Before)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(callColumns)
	b.WriteString(" FROM llm_calls")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY ts DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

// List retrieves LLM calls matching the filter, newest first.
func (s *PostgresSink) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	query, args := buildListQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query llm calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.LatencyMs, &c.Operation, &c.Template, &c.Class,
			&c.PromptKey, &c.PromptCID, &c.Provider, &c.Model, &c.Temperature,
			&c.InputTokens, &c.OutputTokens, &c.CostUSD, &c.Response, &c.CacheHit, &c.Success, &c.Error); err != nil {
			return nil, fmt.Errorf("scan llm call: %w", err)
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// CountByPromptKey returns call counts grouped by prompt key for one template.
func (s *PostgresSink) CountByPromptKey(ctx context.Context, template string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(prompt_key,''), COUNT(*) FROM llm_calls WHERE ($1 = '' OR template = $1) GROUP BY 1`,
		template)
	if err != nil {
		return nil, fmt.Errorf("count llm calls: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan llm call count: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// Close closes the pool.
func (s *PostgresSink) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

var _ Sink = (*PostgresSink)(nil)
