package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema bootstraps the documents and document_chunks tables.
// embeddingDim must match the embedding model; the chunks table is created
// with a fixed-width vector column.
func (r *DocumentRepository) EnsureSchema(ctx context.Context, embeddingDim int) error {
	if embeddingDim <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", embeddingDim)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	query := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	title TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	search_vector tsvector GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(content, '')), 'B')
	) STORED
);

CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
CREATE INDEX IF NOT EXISTS idx_documents_search ON documents USING GIN (search_vector);

CREATE TABLE IF NOT EXISTS document_chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	tenant_id TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	PRIMARY KEY (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_tenant ON document_chunks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
	ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDim)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, tenant_id, title, mime_type, storage_path, content, url, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.TenantID, doc.Title, doc.MimeType, doc.StoragePath, doc.Content, doc.URL,
		string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, title, mime_type, storage_path, url, status, error_message, created_at, updated_at
FROM documents
WHERE tenant_id = $1 AND id = $2
`, tenantID, id)
	return scanDocument(row)
}

// GetForIndexing loads a document by id alone; the worker consumes bare
// document ids from the queue and learns the tenant from the row.
func (r *DocumentRepository) GetForIndexing(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, title, mime_type, storage_path, url, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)
	return scanDocument(row)
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
	}
	return nil
}

// FetchMetadata resolves title/content for a batch of document ids in one
// query. Used by hybrid search to backfill semantic-only hits.
func (r *DocumentRepository) FetchMetadata(ctx context.Context, tenantID string, ids []string) ([]domain.DocumentMetadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, left(content, 600)
FROM documents
WHERE tenant_id = $1 AND id = ANY($2)
`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch document metadata: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DocumentMetadata, 0, len(ids))
	for rows.Next() {
		var m domain.DocumentMetadata
		if err := rows.Scan(&m.ID, &m.Title, &m.Content); err != nil {
			return nil, fmt.Errorf("scan document metadata: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document metadata: %w", err)
	}
	return out, nil
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var status string

	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Title, &doc.MimeType, &doc.StoragePath,
		&doc.URL, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "fetch document", err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}
