package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/quote-cli/internal/db"
	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_quote":           quoteSelect + ` WHERE id = $1`,
	"get_quote_by_source": quoteSelect + ` WHERE source_sha256 = $1`,
	"load_items":          `SELECT data FROM quote_items WHERE quote_id = $1 ORDER BY idx`,
	"get_manifest":        `SELECT data FROM manifests WHERE source_sha256 = $1`,
	"update_risks":        `UPDATE quotes SET risks = $1, updated_at = $2 WHERE id = $3`,
}

const quoteSelect = `SELECT id, supplier_name, file_name, source_sha256, document_type, totals, confidence, warnings, risks, created_at, updated_at FROM quotes`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk archive loads).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS quotes (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	supplier_name TEXT NOT NULL,
	file_name     TEXT NOT NULL DEFAULT '',
	source_sha256 TEXT NOT NULL UNIQUE,
	document_type TEXT NOT NULL DEFAULT 'pdf',
	totals        JSONB,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	warnings      JSONB,
	risks         JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quote_items (
	id       TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	quote_id TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
	idx      INTEGER NOT NULL,
	data     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS manifests (
	source_sha256 TEXT PRIMARY KEY,
	quote_id      TEXT NOT NULL,
	data          JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS failed_chunks (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	quote_id       TEXT NOT NULL,
	source_sha256  TEXT NOT NULL,
	chunk_id       TEXT NOT NULL,
	chunk_number   INTEGER NOT NULL,
	backend        TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quotes_supplier ON quotes(supplier_name);
CREATE INDEX IF NOT EXISTS idx_quote_items_quote_id ON quote_items(quote_id, idx);
CREATE INDEX IF NOT EXISTS idx_failed_chunks_quote ON failed_chunks(quote_id);
CREATE INDEX IF NOT EXISTS idx_failed_chunks_error_type ON failed_chunks(error_type);
CREATE INDEX IF NOT EXISTS idx_failed_chunks_next_retry ON failed_chunks(next_retry_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateQuote(ctx context.Context, q *model.ParsedQuote) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now

	totalsJSON, err := json.Marshal(q.Totals)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal totals")
	}
	var warningsJSON, risksJSON []byte
	if len(q.Warnings) > 0 {
		if warningsJSON, err = json.Marshal(q.Warnings); err != nil {
			return eris.Wrap(err, "postgres: marshal warnings")
		}
	}
	if q.Risks != nil {
		if risksJSON, err = json.Marshal(q.Risks); err != nil {
			return eris.Wrap(err, "postgres: marshal risks")
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create quote")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO quotes (id, supplier_name, file_name, source_sha256, document_type, totals, confidence, warnings, risks, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.SupplierName, q.FileName, q.SourceSHA256, string(q.DocumentType),
		totalsJSON, q.Confidence, warningsJSON, risksJSON, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert quote")
	}

	if err := copyItemsTx(ctx, tx, q.ID, q.Items); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create quote")
}

func (s *PostgresStore) GetQuote(ctx context.Context, id string) (*model.ParsedQuote, error) {
	return s.getQuoteRow(ctx, quoteSelect+` WHERE id = $1`, id)
}

func (s *PostgresStore) GetQuoteBySource(ctx context.Context, sourceSHA256 string) (*model.ParsedQuote, error) {
	return s.getQuoteRow(ctx, quoteSelect+` WHERE source_sha256 = $1`, sourceSHA256)
}

func (s *PostgresStore) getQuoteRow(ctx context.Context, query string, arg any) (*model.ParsedQuote, error) {
	q, err := scanPgQuote(s.pool.QueryRow(ctx, query, arg))
	if err != nil || q == nil {
		return q, err
	}

	rows, err := s.pool.Query(ctx, `SELECT data FROM quote_items WHERE quote_id = $1 ORDER BY idx`, q.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load items")
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		var item model.LineItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal item")
		}
		q.Items = append(q.Items, item)
	}
	return q, eris.Wrap(rows.Err(), "postgres: iterate items")
}

func (s *PostgresStore) ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.ParsedQuote, error) {
	query := quoteSelect + ` WHERE 1=1`
	var args []any
	arg := 0

	if filter.SupplierName != "" {
		arg++
		query += ` AND supplier_name = $1`
		args = append(args, filter.SupplierName)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	arg++
	query += ` LIMIT $` + strconv.Itoa(arg)
	args = append(args, limit)

	if filter.Offset > 0 {
		arg++
		query += ` OFFSET $` + strconv.Itoa(arg)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quotes")
	}
	defer rows.Close()

	var quotes []model.ParsedQuote
	for rows.Next() {
		q, err := scanPgQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, eris.Wrap(rows.Err(), "postgres: list quotes iterate")
}

func (s *PostgresStore) DeleteQuote(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete quote %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quote not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ReplaceQuoteItems(ctx context.Context, quoteID string, items []model.LineItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace items")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID); err != nil {
		return eris.Wrapf(err, "postgres: clear items for quote %s", quoteID)
	}
	if err := copyItemsTx(ctx, tx, quoteID, items); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE quotes SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), quoteID); err != nil {
		return eris.Wrapf(err, "postgres: touch quote %s", quoteID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace items")
}

func (s *PostgresStore) UpdateQuoteSummary(ctx context.Context, quoteID string, totals model.QuoteTotals, confidence float64, warnings []string) error {
	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal totals")
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal warnings")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET totals = $1, confidence = $2, warnings = $3, updated_at = $4 WHERE id = $5`,
		totalsJSON, confidence, warningsJSON, time.Now().UTC(), quoteID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote summary %s", quoteID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quote not found: %s", quoteID)
	}
	return nil
}

func (s *PostgresStore) UpdateQuoteRisks(ctx context.Context, quoteID string, risks *model.RiskReport) error {
	risksJSON, err := json.Marshal(risks)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal risks")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE quotes SET risks = $1, updated_at = $2 WHERE id = $3`,
		risksJSON, time.Now().UTC(), quoteID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quote risks %s", quoteID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quote not found: %s", quoteID)
	}
	return nil
}

func (s *PostgresStore) SaveManifest(ctx context.Context, quoteID string, m *model.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal manifest")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO manifests (source_sha256, quote_id, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (source_sha256) DO UPDATE SET quote_id = EXCLUDED.quote_id, data = EXCLUDED.data`,
		m.Original.SHA256, quoteID, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save manifest")
}

func (s *PostgresStore) GetManifest(ctx context.Context, sourceSHA256 string) (*model.Manifest, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM manifests WHERE source_sha256 = $1`, sourceSHA256).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get manifest")
	}

	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal manifest")
	}
	return &m, nil
}

func (s *PostgresStore) EnqueueFailedChunk(ctx context.Context, fc resilience.FailedChunk) (*resilience.FailedChunk, error) {
	if fc.ID == "" {
		fc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if fc.CreatedAt.IsZero() {
		fc.CreatedAt = now
	}
	fc.LastFailedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO failed_chunks (id, quote_id, source_sha256, chunk_id, chunk_number, backend, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		fc.ID, fc.QuoteID, fc.SourceSHA256, fc.ChunkID, fc.ChunkNumber, fc.Backend,
		fc.Error, fc.ErrorType, fc.RetryCount, fc.MaxRetries, fc.NextRetryAt, fc.CreatedAt, fc.LastFailedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue failed chunk")
	}
	return &fc, nil
}

func (s *PostgresStore) ListFailedChunks(ctx context.Context, filter resilience.FailedChunkFilter) ([]resilience.FailedChunk, error) {
	query := `SELECT id, quote_id, source_sha256, chunk_id, chunk_number, backend, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM failed_chunks WHERE 1=1`
	var args []any
	arg := 0

	if filter.QuoteID != "" {
		arg++
		query += ` AND quote_id = $` + strconv.Itoa(arg)
		args = append(args, filter.QuoteID)
	}
	if filter.ErrorType != "" {
		arg++
		query += ` AND error_type = $` + strconv.Itoa(arg)
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	arg++
	query += ` LIMIT $` + strconv.Itoa(arg)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failed chunks")
	}
	defer rows.Close()

	var out []resilience.FailedChunk
	for rows.Next() {
		var fc resilience.FailedChunk
		if err := rows.Scan(&fc.ID, &fc.QuoteID, &fc.SourceSHA256, &fc.ChunkID, &fc.ChunkNumber, &fc.Backend,
			&fc.Error, &fc.ErrorType, &fc.RetryCount, &fc.MaxRetries, &fc.NextRetryAt, &fc.CreatedAt, &fc.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failed chunk")
		}
		out = append(out, fc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate failed chunks")
}

func (s *PostgresStore) MarkChunkRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE failed_chunks SET retry_count = retry_count + 1, next_retry_at = $1, last_failed_at = $2 WHERE id = $3`,
		nextRetryAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark chunk retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("failed chunk not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ResolveFailedChunk(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM failed_chunks WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve failed chunk %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("failed chunk not found: %s", id)
	}
	return nil
}

// helpers

// copyItemsTx bulk-loads line items with the COPY protocol; schedules
// routinely run to thousands of rows.
func copyItemsTx(ctx context.Context, tx pgx.Tx, quoteID string, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(items))
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		data, err := json.Marshal(item)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal item")
		}
		rows = append(rows, []any{item.ID, quoteID, i, data})
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"quote_items"}, []string{"id", "quote_id", "idx", "data"}, pgx.CopyFromRows(rows))
	return eris.Wrap(err, "postgres: copy items")
}

func scanPgQuote(row pgx.Row) (*model.ParsedQuote, error) {
	var q model.ParsedQuote
	var docType string
	var totalsJSON, warningsJSON, risksJSON []byte

	err := row.Scan(&q.ID, &q.SupplierName, &q.FileName, &q.SourceSHA256, &docType,
		&totalsJSON, &q.Confidence, &warningsJSON, &risksJSON, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan quote")
	}

	q.DocumentType = model.DocumentType(docType)
	if len(totalsJSON) > 0 {
		if err := json.Unmarshal(totalsJSON, &q.Totals); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal totals")
		}
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &q.Warnings); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal warnings")
		}
	}
	if len(risksJSON) > 0 {
		q.Risks = &model.RiskReport{}
		if err := json.Unmarshal(risksJSON, q.Risks); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal risks")
		}
	}
	return &q, nil
}
