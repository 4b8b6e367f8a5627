package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

// SearchRepository serves the lexical half of hybrid search: tenant-scoped
// full-text search over the generated tsvector column with stable ranking.
type SearchRepository struct {
	db *sql.DB
}

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

func (r *SearchRepository) SearchLexical(ctx context.Context, tenantID, query string, limit, offset int) (*domain.LexicalResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := r.db.QueryRowContext(ctx, `
SELECT count(*)
FROM documents
WHERE tenant_id = $1
  AND search_vector @@ websearch_to_tsquery('english', $2)
`, tenantID, query).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count lexical matches: %w", err)
	}

	// Secondary order by id keeps ranking stable across identical ranks,
	// which pagination depends on.
	rows, err := r.db.QueryContext(ctx, `
SELECT id,
       title,
       ts_headline('english', content, websearch_to_tsquery('english', $2),
                   'MaxWords=35, MinWords=10, MaxFragments=1') AS snippet,
       ts_rank(search_vector, websearch_to_tsquery('english', $2)) AS score,
       url
FROM documents
WHERE tenant_id = $1
  AND search_vector @@ websearch_to_tsquery('english', $2)
ORDER BY score DESC, id ASC
LIMIT $3 OFFSET $4
`, tenantID, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("lexical search query: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SearchResultItem, 0, limit)
	for rows.Next() {
		var item domain.SearchResultItem
		if err := rows.Scan(&item.ID, &item.Title, &item.Snippet, &item.Score, &item.URL); err != nil {
			return nil, fmt.Errorf("scan lexical result: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lexical results: %w", err)
	}

	return &domain.LexicalResult{Total: total, Items: items}, nil
}
