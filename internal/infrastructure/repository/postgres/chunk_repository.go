package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

// ChunkRepository owns the pgvector side: chunk storage and tenant-scoped
// cosine nearest-neighbor lookups.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// IndexChunks replaces the chunk set of a document and persists the
// extracted content on the documents row, all in one transaction so
// lexical and semantic search never observe half-indexed documents.
func (r *ChunkRepository) IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET content = $2, updated_at = $3 WHERE id = $1
`, doc.ID, doc.Content, time.Now().UTC()); err != nil {
		return fmt.Errorf("update document content: %w", err)
	}

	for i, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (document_id, chunk_index, tenant_id, content, embedding)
VALUES ($1, $2, $3, $4, $5)
`, doc.ID, i, doc.TenantID, chunk, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) NearestNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		k = 10
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, chunk_index, content, embedding <=> $2 AS distance
FROM document_chunks
WHERE tenant_id = $1
ORDER BY embedding <=> $2
LIMIT $3
`, tenantID, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor query: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Candidate, 0, k)
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.DocumentID, &c.ChunkIndex, &c.Content, &c.Distance); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Similarity = 1 - c.Distance
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}
