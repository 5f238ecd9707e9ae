package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS quotes (
	id            TEXT PRIMARY KEY,
	supplier_name TEXT NOT NULL,
	file_name     TEXT NOT NULL DEFAULT '',
	source_sha256 TEXT NOT NULL UNIQUE,
	document_type TEXT NOT NULL DEFAULT 'pdf',
	totals        TEXT,
	confidence    REAL NOT NULL DEFAULT 0,
	warnings      TEXT,
	risks         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS quote_items (
	id       TEXT PRIMARY KEY,
	quote_id TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
	idx      INTEGER NOT NULL,
	data     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS manifests (
	source_sha256 TEXT PRIMARY KEY,
	quote_id      TEXT NOT NULL,
	data          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS failed_chunks (
	id             TEXT PRIMARY KEY,
	quote_id       TEXT NOT NULL,
	source_sha256  TEXT NOT NULL,
	chunk_id       TEXT NOT NULL,
	chunk_number   INTEGER NOT NULL,
	backend        TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_quotes_supplier ON quotes(supplier_name);
CREATE INDEX IF NOT EXISTS idx_quotes_source ON quotes(source_sha256);
CREATE INDEX IF NOT EXISTS idx_quote_items_quote_id ON quote_items(quote_id, idx);
CREATE INDEX IF NOT EXISTS idx_failed_chunks_quote ON failed_chunks(quote_id);
CREATE INDEX IF NOT EXISTS idx_failed_chunks_error_type ON failed_chunks(error_type);
CREATE INDEX IF NOT EXISTS idx_failed_chunks_next_retry ON failed_chunks(next_retry_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateQuote(ctx context.Context, q *model.ParsedQuote) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now

	totalsJSON, warningsJSON, risksJSON, err := marshalQuoteColumns(q)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create quote")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO quotes (id, supplier_name, file_name, source_sha256, document_type, totals, confidence, warnings, risks, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SupplierName, q.FileName, q.SourceSHA256, string(q.DocumentType),
		totalsJSON, q.Confidence, warningsJSON, risksJSON, now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert quote")
	}

	if err := insertItemsTx(ctx, tx, q.ID, q.Items); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create quote")
}

func (s *SQLiteStore) GetQuote(ctx context.Context, id string) (*model.ParsedQuote, error) {
	return s.getQuoteWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetQuoteBySource(ctx context.Context, sourceSHA256 string) (*model.ParsedQuote, error) {
	return s.getQuoteWhere(ctx, "source_sha256 = ?", sourceSHA256)
}

func (s *SQLiteStore) getQuoteWhere(ctx context.Context, where string, arg any) (*model.ParsedQuote, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, supplier_name, file_name, source_sha256, document_type, totals, confidence, warnings, risks, created_at, updated_at
		 FROM quotes WHERE `+where, arg,
	)
	q, err := scanQuote(row)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, nil
	}

	q.Items, err = s.loadItems(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, quoteID string) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM quote_items WHERE quote_id = ? ORDER BY idx`, quoteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load items")
	}
	defer rows.Close()

	var items []model.LineItem
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		var item model.LineItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate items")
}

func (s *SQLiteStore) ListQuotes(ctx context.Context, filter QuoteFilter) ([]model.ParsedQuote, error) {
	query := `SELECT id, supplier_name, file_name, source_sha256, document_type, totals, confidence, warnings, risks, created_at, updated_at
	          FROM quotes WHERE 1=1`
	var args []any

	if filter.SupplierName != "" {
		query += ` AND supplier_name = ?`
		args = append(args, filter.SupplierName)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quotes")
	}
	defer rows.Close()

	var quotes []model.ParsedQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, eris.Wrap(rows.Err(), "sqlite: list quotes iterate")
}

func (s *SQLiteStore) DeleteQuote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete quote %s", id)
	}
	return checkRowsAffected(res, "quote", id)
}

func (s *SQLiteStore) ReplaceQuoteItems(ctx context.Context, quoteID string, items []model.LineItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace items")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM quote_items WHERE quote_id = ?`, quoteID); err != nil {
		return eris.Wrapf(err, "sqlite: clear items for quote %s", quoteID)
	}
	if err := insertItemsTx(ctx, tx, quoteID, items); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE quotes SET updated_at = ? WHERE id = ?`, time.Now().UTC(), quoteID); err != nil {
		return eris.Wrapf(err, "sqlite: touch quote %s", quoteID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace items")
}

func (s *SQLiteStore) UpdateQuoteSummary(ctx context.Context, quoteID string, totals model.QuoteTotals, confidence float64, warnings []string) error {
	totalsJSON, err := json.Marshal(totals)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal totals")
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal warnings")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET totals = ?, confidence = ?, warnings = ?, updated_at = ? WHERE id = ?`,
		string(totalsJSON), confidence, string(warningsJSON), time.Now().UTC(), quoteID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote summary %s", quoteID)
	}
	return checkRowsAffected(res, "quote", quoteID)
}

func (s *SQLiteStore) UpdateQuoteRisks(ctx context.Context, quoteID string, risks *model.RiskReport) error {
	risksJSON, err := json.Marshal(risks)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal risks")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET risks = ?, updated_at = ? WHERE id = ?`,
		string(risksJSON), time.Now().UTC(), quoteID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quote risks %s", quoteID)
	}
	return checkRowsAffected(res, "quote", quoteID)
}

func (s *SQLiteStore) SaveManifest(ctx context.Context, quoteID string, m *model.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal manifest")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO manifests (source_sha256, quote_id, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_sha256) DO UPDATE SET quote_id = excluded.quote_id, data = excluded.data`,
		m.Original.SHA256, quoteID, string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save manifest")
}

func (s *SQLiteStore) GetManifest(ctx context.Context, sourceSHA256 string) (*model.Manifest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM manifests WHERE source_sha256 = ?`, sourceSHA256,
	)

	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get manifest")
	}

	var m model.Manifest
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal manifest")
	}
	return &m, nil
}

func (s *SQLiteStore) EnqueueFailedChunk(ctx context.Context, fc resilience.FailedChunk) (*resilience.FailedChunk, error) {
	if fc.ID == "" {
		fc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if fc.CreatedAt.IsZero() {
		fc.CreatedAt = now
	}
	fc.LastFailedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_chunks (id, quote_id, source_sha256, chunk_id, chunk_number, backend, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fc.ID, fc.QuoteID, fc.SourceSHA256, fc.ChunkID, fc.ChunkNumber, fc.Backend,
		fc.Error, fc.ErrorType, fc.RetryCount, fc.MaxRetries, fc.NextRetryAt, fc.CreatedAt, fc.LastFailedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue failed chunk")
	}
	return &fc, nil
}

func (s *SQLiteStore) ListFailedChunks(ctx context.Context, filter resilience.FailedChunkFilter) ([]resilience.FailedChunk, error) {
	query := `SELECT id, quote_id, source_sha256, chunk_id, chunk_number, backend, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at
	          FROM failed_chunks WHERE 1=1`
	var args []any

	if filter.QuoteID != "" {
		query += ` AND quote_id = ?`
		args = append(args, filter.QuoteID)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failed chunks")
	}
	defer rows.Close()

	var out []resilience.FailedChunk
	for rows.Next() {
		var fc resilience.FailedChunk
		if err := rows.Scan(&fc.ID, &fc.QuoteID, &fc.SourceSHA256, &fc.ChunkID, &fc.ChunkNumber, &fc.Backend,
			&fc.Error, &fc.ErrorType, &fc.RetryCount, &fc.MaxRetries, &fc.NextRetryAt, &fc.CreatedAt, &fc.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failed chunk")
		}
		out = append(out, fc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate failed chunks")
}

func (s *SQLiteStore) MarkChunkRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE failed_chunks SET retry_count = retry_count + 1, next_retry_at = ?, last_failed_at = ? WHERE id = ?`,
		nextRetryAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark chunk retry %s", id)
	}
	return checkRowsAffected(res, "failed chunk", id)
}

func (s *SQLiteStore) ResolveFailedChunk(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM failed_chunks WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve failed chunk %s", id)
	}
	return checkRowsAffected(res, "failed chunk", id)
}

// helpers

func insertItemsTx(ctx context.Context, tx *sql.Tx, quoteID string, items []model.LineItem) error {
	for i, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		data, err := json.Marshal(item)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal item")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quote_items (id, quote_id, idx, data) VALUES (?, ?, ?, ?)`,
			item.ID, quoteID, i, string(data),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert item %d", i)
		}
	}
	return nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanQuote(row scannable) (*model.ParsedQuote, error) {
	var q model.ParsedQuote
	var docType string
	var totalsJSON, warningsJSON, risksJSON sql.NullString

	err := row.Scan(&q.ID, &q.SupplierName, &q.FileName, &q.SourceSHA256, &docType,
		&totalsJSON, &q.Confidence, &warningsJSON, &risksJSON, &q.CreatedAt, &q.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan quote")
	}

	q.DocumentType = model.DocumentType(docType)
	if totalsJSON.Valid && totalsJSON.String != "" {
		if err := json.Unmarshal([]byte(totalsJSON.String), &q.Totals); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal totals")
		}
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &q.Warnings); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal warnings")
		}
	}
	if risksJSON.Valid && risksJSON.String != "" {
		q.Risks = &model.RiskReport{}
		if err := json.Unmarshal([]byte(risksJSON.String), q.Risks); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal risks")
		}
	}
	return &q, nil
}

func marshalQuoteColumns(q *model.ParsedQuote) (totals, warnings, risks sql.NullString, err error) {
	totalsBytes, err := json.Marshal(q.Totals)
	if err != nil {
		return totals, warnings, risks, eris.Wrap(err, "sqlite: marshal totals")
	}
	totals = sql.NullString{String: string(totalsBytes), Valid: true}

	if len(q.Warnings) > 0 {
		b, err := json.Marshal(q.Warnings)
		if err != nil {
			return totals, warnings, risks, eris.Wrap(err, "sqlite: marshal warnings")
		}
		warnings = sql.NullString{String: string(b), Valid: true}
	}
	if q.Risks != nil {
		b, err := json.Marshal(q.Risks)
		if err != nil {
			return totals, warnings, risks, eris.Wrap(err, "sqlite: marshal risks")
		}
		risks = sql.NullString{String: string(b), Valid: true}
	}
	return totals, warnings, risks, nil
}
